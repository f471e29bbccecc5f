package distmeta_test

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightconcept/pyrope-go/internal/core/distmeta"
)

const pkgInfo = "Metadata-Version: 2.1\nName: Requests\nVersion: 2.31.0\nRequires-Dist: idna<4,>=2.5\nRequires-Dist: PySocks!=1.5.7,>=1.5.6; extra == \"socks\"\n\nLong description here.\n"

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func tarGzArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestNameFromFilename(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"requests-2.31.0-py3-none-any.whl":         "requests",
		"https://example.com/dl/Django-4.2.tar.gz": "Django",
		"six-1.16.0.zip":                           "six",
		"python-dateutil-2.8.2.tar.gz":             "python-dateutil",
		"/tmp/pkgs/zope.interface-6.0.tgz":         "zope.interface",
		"six.git":                                  "",
		"six":                                      "",
		"broken.whl":                               "",
		"archive.zip":                              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, distmeta.NameFromFilename(in), in)
	}
}

func TestIsArchive(t *testing.T) {
	t.Parallel()
	assert.True(t, distmeta.IsArchive("pkg-1.0.TAR.GZ"))
	assert.True(t, distmeta.IsArchive("pkg-1.0-py3-none-any.whl"))
	assert.False(t, distmeta.IsArchive("repo.git"))
}

func TestFromArchive_Wheel(t *testing.T) {
	t.Parallel()
	content := zipArchive(t, map[string]string{
		"requests/__init__.py":               "",
		"requests-2.31.0.dist-info/METADATA": pkgInfo,
		"requests-2.31.0.dist-info/RECORD":   "",
	})

	md, err := distmeta.FromArchive("requests-2.31.0-py3-none-any.whl", content)
	require.NoError(t, err)
	assert.Equal(t, "Requests", md.Name)
	assert.Equal(t, "2.31.0", md.Version)
	assert.Equal(t, []string{"idna<4,>=2.5", `PySocks!=1.5.7,>=1.5.6; extra == "socks"`}, md.RequiresDist)
}

func TestFromArchive_SdistPrefersTopLevelPKGInfo(t *testing.T) {
	t.Parallel()
	content := tarGzArchive(t, map[string]string{
		"demo-1.0/demo.egg-info/PKG-INFO": "Name: wrong\nVersion: 0\n",
		"demo-1.0/PKG-INFO":               "Name: demo\nVersion: 1.0\nRequires-Dist: six\n",
	})

	md, err := distmeta.FromArchive("demo-1.0.tar.gz", content)
	require.NoError(t, err)
	assert.Equal(t, "demo", md.Name)
	assert.Equal(t, []string{"six"}, md.RequiresDist)
}

func TestFromArchive_PyProjectOnly(t *testing.T) {
	t.Parallel()
	content := zipArchive(t, map[string]string{
		"demo-main/pyproject.toml": "[project]\nname = \"demo\"\ndependencies = [\"attrs>=22\"]\n",
	})

	md, err := distmeta.FromArchive("main.zip", content)
	require.NoError(t, err)
	assert.Equal(t, "demo", md.Name)
	assert.Equal(t, []string{"attrs>=22"}, md.RequiresDist)
}

func TestFromArchive_NoMetadata(t *testing.T) {
	t.Parallel()
	content := zipArchive(t, map[string]string{"README": "hi"})

	_, err := distmeta.FromArchive("thing-1.0.zip", content)
	require.ErrorIs(t, err, distmeta.ErrNoMetadata)
}

func TestFromArchive_Garbage(t *testing.T) {
	t.Parallel()
	_, err := distmeta.FromArchive("thing", []byte("not an archive"))
	require.ErrorIs(t, err, distmeta.ErrNoMetadata)
}

func TestFromDir(t *testing.T) {
	t.Parallel()

	t.Run("pyproject", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"),
			[]byte("[project]\nname = \"localpkg\"\nversion = \"0.1\"\n"), 0o644))
		md, err := distmeta.FromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, "localpkg", md.Name)
	})

	t.Run("poetry fallback", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"),
			[]byte("[tool.poetry]\nname = \"poetic\"\n"), 0o644))
		md, err := distmeta.FromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, "poetic", md.Name)
	})

	t.Run("pkg-info when pyproject has no name", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte("[build-system]\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "PKG-INFO"), []byte("Name: legacy\n"), 0o644))
		md, err := distmeta.FromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, "legacy", md.Name)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, err := distmeta.FromDir(t.TempDir())
		require.ErrorIs(t, err, distmeta.ErrNoMetadata)
	})
}
