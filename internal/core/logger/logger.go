// Package logger builds the slog logger used across pyro.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"go.trai.ch/zerr"
)

// New returns a logger writing human-readable records to w (stderr when nil).
// Debug records are only emitted when verbose is set.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(NewHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops every record. Used by tests and library callers.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Handler prints "warning: message key=value" lines, colored by level.
type Handler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewHandler creates a Handler writing to w.
func NewHandler(w io.Writer, opts *slog.HandlerOptions) *Handler {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &Handler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes the record.
//
//nolint:gocritic // slog.Handler requires slog.Record by value
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var prefix string
	switch {
	case r.Level >= slog.LevelError:
		prefix = color.New(color.FgRed, color.Bold).Sprint("error:")
	case r.Level >= slog.LevelWarn:
		prefix = color.YellowString("warning:")
	case r.Level >= slog.LevelInfo:
		prefix = ""
	default:
		prefix = color.New(color.Faint).Sprint("debug:")
	}

	parts := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		parts = append(parts, formatAttr(h.group, a)...)
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, formatAttr(h.group, a)...)
		return true
	})

	line := r.Message
	if prefix != "" {
		line = prefix + " " + line
	}
	if len(parts) > 0 {
		line += " " + color.New(color.Faint).Sprint(strings.Join(parts, " "))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, line)
	return err
}

// WithAttrs returns a handler carrying extra attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &n
}

// WithGroup returns a handler that prefixes attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	n := *h
	if n.group != "" {
		n.group += "." + name
	} else {
		n.group = name
	}
	return &n
}

func formatAttr(group string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return nil
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		var out []string
		for _, sub := range a.Value.Group() {
			out = append(out, formatAttr(key, sub)...)
		}
		return out
	}
	v := a.Value.String()
	if strings.ContainsAny(v, " \t\"=") {
		v = fmt.Sprintf("%q", v)
	}
	return []string{key + "=" + v}
}

// Err returns an attribute for err that also carries the structured
// metadata attached along its chain.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	attrs := []any{slog.String("msg", err.Error())}
	meta := map[string]any{}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if z, ok := e.(*zerr.Error); ok {
			for k, v := range z.Metadata() {
				if _, seen := meta[k]; !seen {
					meta[k] = v
				}
			}
		}
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, meta[k]))
	}
	return slog.Group("error", attrs...)
}
