package pep508_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightconcept/pyrope-go/internal/core/pep508"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
		want pep508.Requirement
	}{
		{
			name: "bare name",
			line: "gitdb2",
			want: pep508.Requirement{Name: "gitdb2"},
		},
		{
			name: "pinned",
			line: "six==1.11.0",
			want: pep508.Requirement{Name: "six", Specifier: "==1.11.0"},
		},
		{
			name: "parenthesised with spaces",
			line: "chardet (<3.1.0, >=3.0.2)",
			want: pep508.Requirement{Name: "chardet", Specifier: "<3.1.0,>=3.0.2"},
		},
		{
			name: "extras and marker",
			line: `requests[socks, Security]>=2.0; python_version >= "3.8"`,
			want: pep508.Requirement{
				Name:      "requests",
				Extras:    []string{"security", "socks"},
				Specifier: ">=2.0",
				Marker:    `python_version >= "3.8"`,
			},
		},
		{
			name: "direct reference",
			line: "pip @ https://example.com/pip-1.0.zip",
			want: pep508.Requirement{Name: "pip", URL: "https://example.com/pip-1.0.zip"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pep508.Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	for _, line := range []string{"", "   ", ">=1.0", "pkg[extra", "pkg @ ", "pkg 1.0"} {
		_, err := pep508.Parse(line)
		assert.Error(t, err, "line %q", line)
	}
}

func TestActiveFor(t *testing.T) {
	t.Parallel()
	plain, err := pep508.Parse(`idna<3,>=2.5`)
	require.NoError(t, err)
	assert.True(t, plain.ActiveFor(nil))

	socks, err := pep508.Parse(`PySocks!=1.5.7,>=1.5.6; extra == "socks"`)
	require.NoError(t, err)
	assert.False(t, socks.ActiveFor(nil))
	assert.False(t, socks.ActiveFor([]string{"security"}))
	assert.True(t, socks.ActiveFor([]string{"SOCKS"}))
	assert.Equal(t, "", socks.CarriedMarker())

	mixed, err := pep508.Parse(`win-inet-pton; sys_platform == "win32" and extra == "socks"`)
	require.NoError(t, err)
	assert.Equal(t, `sys_platform == "win32"`, mixed.CarriedMarker())
}

func TestString(t *testing.T) {
	t.Parallel()
	r, err := pep508.Parse(`requests[socks]>=2.0;python_version>"3"`)
	require.NoError(t, err)
	assert.Equal(t, `requests[socks]>=2.0; python_version>"3"`, r.String())
}
