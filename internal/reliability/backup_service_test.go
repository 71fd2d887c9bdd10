package reliability

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFileAndChecksum(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")
	require.NoError(t, os.WriteFile(src, []byte("sqlite payload"), 0644))

	require.NoError(t, copyFile(src, dst))

	srcSum, err := checksumFile(src)
	require.NoError(t, err)
	dstSum, err := checksumFile(dst)
	require.NoError(t, err)
	assert.Equal(t, srcSum, dstSum)
	assert.Contains(t, srcSum, "sha256:")
}

func TestCreateArchive_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "portfolio.db"), []byte("holdings"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshots.db"), []byte("history"), 0644))

	archivePath := filepath.Join(dir, "backup.tar.gz")
	require.NoError(t, createArchive(archivePath, dir, []string{"portfolio.db", "snapshots.db"}))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	contents := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}

	assert.Equal(t, "holdings", contents["portfolio.db"])
	assert.Equal(t, "history", contents["snapshots.db"])
}

func TestWriteMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup-metadata.json")

	metadata := BackupMetadata{
		Databases: []DatabaseMetadata{
			{Name: "portfolio", Filename: "portfolio.db", SizeBytes: 8, Checksum: "sha256:abc"},
		},
	}
	require.NoError(t, writeMetadata(path, metadata))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"portfolio.db"`)
	assert.Contains(t, string(data), `"sha256:abc"`)
}
