package filesystem

import (
	"crypto/md5"
	"crypto/sha256"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/config"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), DefaultHashAlgorithm)
	require.NoError(t, err)
	return store
}

func writeFile(t *testing.T, store *Store, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), name), []byte(content), config.FilePerms))
}

func TestEnsureDirectoryExists(t *testing.T) {
	testDir := filepath.Join(t.TempDir(), "nested", "dir")

	err := EnsureDirectoryExists(testDir)
	assert.NoError(t, err)

	info, err := os.Stat(testDir)
	assert.NoError(t, err)
	assert.True(t, info.IsDir())

	// existing directory
	assert.NoError(t, EnsureDirectoryExists(testDir))
}

func TestGetFileInfo(t *testing.T) {
	tmpFile, err := os.CreateTemp(t.TempDir(), "info_*.txt")
	require.NoError(t, err)

	content := "test content for file info"
	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	tmpFile.Close()

	info, err := GetFileInfo(tmpFile.Name())
	assert.NoError(t, err)
	assert.False(t, info.IsDir)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.NotZero(t, info.Modified)

	_, err = GetFileInfo("non_existent_file.txt")
	assert.True(t, stderrors.Is(err, errors.ErrFileSystem))
}

func TestUploadDigestAlgorithms(t *testing.T) {
	content := "test content for hash calculation"

	tests := []struct {
		algorithm HashAlgorithm
		expected  string
	}{
		{HashMD5, fmt.Sprintf("%x", md5.Sum([]byte(content)))},
		{HashSHA256, fmt.Sprintf("%x", sha256.Sum256([]byte(content)))},
	}

	for _, tt := range tests {
		t.Run(string(tt.algorithm), func(t *testing.T) {
			store, err := NewStore(t.TempDir(), tt.algorithm)
			require.NoError(t, err)

			upload, err := store.Create("hashed.txt")
			require.NoError(t, err)
			_, err = io.WriteString(upload, content)
			require.NoError(t, err)
			require.NoError(t, upload.Commit())

			assert.Equal(t, tt.expected, upload.Digest())
		})
	}
}

func TestNewStoreRejectsUnknownHash(t *testing.T) {
	_, err := NewStore(t.TempDir(), "crc32")
	assert.True(t, stderrors.Is(err, errors.ErrValidation))
}

func TestNewStoreCreatesStaging(t *testing.T) {
	root := filepath.Join(t.TempDir(), "server_files")
	store, err := NewStore(root, DefaultHashAlgorithm)
	require.NoError(t, err)
	assert.Equal(t, HashBLAKE2b, store.HashAlgorithm())

	assert.True(t, filepath.IsAbs(store.Root()))
	info, err := os.Stat(filepath.Join(root, config.StagingDirName))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStoreList(t *testing.T) {
	store := newTestStore(t)

	files, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Empty(t, FormatListing(files, config.ListingLong))

	writeFile(t, store, "b.txt", "bbbb")
	writeFile(t, store, "a.txt", "a")
	require.NoError(t, os.Mkdir(filepath.Join(store.Root(), "subdir"), config.LogDirPerms))

	files, err = store.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].Name)
	assert.Equal(t, int64(1), files[0].Size)
	assert.Equal(t, "b.txt", files[1].Name)
	assert.Equal(t, int64(4), files[1].Size)
}

func TestFormatListing(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	files := []FileInfo{
		{Name: "a.txt", Size: 1000, Modified: mtime},
		{Name: "b.txt", Size: 1000000, Modified: mtime},
	}

	assert.Equal(t, "a.txt 1000 1700000000\nb.txt 1000000 1700000000\n", string(FormatListing(files, config.ListingLong)))
	assert.Equal(t, "a.txt\nb.txt\n", string(FormatListing(files, config.ListingShort)))
}

func TestStoreOpen(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, "a.txt", "hello")

	file, info, err := store.Open("a.txt")
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, int64(5), info.Size)

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	tests := []struct {
		name   string
		target error
	}{
		{"missing.txt", errors.ErrNotFound},
		{config.StagingDirName, errors.ErrValidation},
		{"../a.txt", errors.ErrValidation},
		{"..", errors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := store.Open(tt.name)
			assert.True(t, stderrors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestUploadCommit(t *testing.T) {
	store := newTestStore(t)
	writeFile(t, store, "doc.txt", "old contents")

	upload, err := store.Create("doc.txt")
	require.NoError(t, err)

	_, err = io.Copy(upload, strings.NewReader("new"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), upload.Written())

	// the previous version stays visible until commit
	data, err := os.ReadFile(filepath.Join(store.Root(), "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old contents", string(data))

	require.NoError(t, upload.Commit())
	assert.NoError(t, upload.Abort())

	data, err = os.ReadFile(filepath.Join(store.Root(), "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	staged, err := os.ReadDir(filepath.Join(store.Root(), config.StagingDirName))
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestUploadAbortLeavesNoArtifact(t *testing.T) {
	store := newTestStore(t)

	upload, err := store.Create("partial.bin")
	require.NoError(t, err)
	_, err = upload.Write([]byte("only some"))
	require.NoError(t, err)

	require.NoError(t, upload.Abort())

	_, err = os.Stat(filepath.Join(store.Root(), "partial.bin"))
	assert.True(t, os.IsNotExist(err))

	staged, err := os.ReadDir(filepath.Join(store.Root(), config.StagingDirName))
	require.NoError(t, err)
	assert.Empty(t, staged)

	files, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUploadEmptyFile(t *testing.T) {
	store := newTestStore(t)

	upload, err := store.Create("empty.dat")
	require.NoError(t, err)
	require.NoError(t, upload.Commit())

	info, err := store.Stat("empty.dat")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size)
}

func TestUploadDigest(t *testing.T) {
	store := newTestStore(t)

	upload, err := store.Create("d.bin")
	require.NoError(t, err)
	upload.Write([]byte("abc"))
	require.NoError(t, upload.Commit())

	file, _, err := store.Open("d.bin")
	require.NoError(t, err)
	defer file.Close()

	want, err := CalculateFileHashWithAlgorithm(file, DefaultHashAlgorithm)
	require.NoError(t, err)
	assert.Equal(t, want, upload.Digest())
}

func TestCreateRejectsInvalidName(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("../escape")
	assert.True(t, stderrors.Is(err, errors.ErrValidation))
}

func TestCleanStaging(t *testing.T) {
	store := newTestStore(t)
	stale := filepath.Join(store.Root(), config.StagingDirName, "x.part")
	require.NoError(t, os.WriteFile(stale, []byte("x"), config.FilePerms))

	require.NoError(t, store.CleanStaging())

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}
