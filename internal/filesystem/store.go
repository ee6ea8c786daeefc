package filesystem

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/config"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/protocol"
)

// Store is the managed root directory. Only regular files directly under the
// root are visible; uploads are staged in a hidden subdirectory and renamed
// into place once complete.
type Store struct {
	root    string
	staging string
	hash    HashAlgorithm
}

// NewStore opens the managed root, creating it and its staging area if needed.
// Uploads are fingerprinted with algorithm.
func NewStore(root string, algorithm HashAlgorithm) (*Store, error) {
	if _, err := NewHasher(algorithm); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewFileSystemError("abs", root, err)
	}

	staging := filepath.Join(abs, config.StagingDirName)
	if err := EnsureDirectoryExists(staging); err != nil {
		return nil, err
	}

	return &Store{root: abs, staging: staging, hash: algorithm}, nil
}

// HashAlgorithm returns the digest used for uploads
func (s *Store) HashAlgorithm() HashAlgorithm {
	return s.hash
}

// Root returns the absolute managed root
func (s *Store) Root() string {
	return s.root
}

// Path resolves name inside the root after validating it
func (s *Store) Path(name string) (string, error) {
	if err := protocol.ValidateFilename(name); err != nil {
		return "", err
	}
	if name == config.StagingDirName {
		return "", errors.NewValidationError("filename", name, "filename is reserved")
	}
	return filepath.Join(s.root, name), nil
}

// Stat returns the entry for name, or a NotFoundError when it is absent or not a regular file
func (s *Store) Stat(name string) (*FileInfo, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError(name)
		}
		return nil, errors.NewFileSystemError("stat", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.NewNotFoundError(name)
	}

	return &FileInfo{
		Name:     info.Name(),
		Size:     info.Size(),
		Path:     path,
		Modified: info.ModTime(),
	}, nil
}

// Open opens name for reading and reports its size at open time
func (s *Store) Open(name string) (*os.File, *FileInfo, error) {
	info, err := s.Stat(name)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(info.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.NewNotFoundError(name)
		}
		return nil, nil, errors.NewFileSystemError("open", info.Path, err)
	}

	// the size announced to the client is the size of the handle we stream from
	if stat, err := file.Stat(); err == nil {
		info.Size = stat.Size()
		info.Modified = stat.ModTime()
	}

	return file, info, nil
}

// List returns the regular files under the root sorted by name
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.NewFileSystemError("readdir", s.root, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, FileInfo{
			Name:     entry.Name(),
			Size:     info.Size(),
			Path:     filepath.Join(s.root, entry.Name()),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// FormatListing renders entries as the LS payload, one file per line
func FormatListing(files []FileInfo, format string) []byte {
	var buf bytes.Buffer
	for _, f := range files {
		if format == config.ListingShort {
			fmt.Fprintf(&buf, "%s\n", f.Name)
			continue
		}
		fmt.Fprintf(&buf, "%s %d %d\n", f.Name, f.Size, f.Modified.Unix())
	}
	return buf.Bytes()
}

// Upload is an in-progress PUT. Bytes land in a private staging file that is
// either committed into the root or removed.
type Upload struct {
	name      string
	file      *os.File
	tmpPath   string
	finalPath string
	hasher    hash.Hash
	written   int64
	done      bool
}

// Create starts an upload for name
func (s *Store) Create(name string) (*Upload, error) {
	finalPath, err := s.Path(name)
	if err != nil {
		return nil, err
	}

	hasher, err := NewHasher(s.hash)
	if err != nil {
		return nil, err
	}

	tmpPath := filepath.Join(s.staging, uuid.NewString()+".part")
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, config.FilePerms)
	if err != nil {
		return nil, errors.NewFileSystemError("create", tmpPath, err)
	}

	return &Upload{
		name:      name,
		file:      file,
		tmpPath:   tmpPath,
		finalPath: finalPath,
		hasher:    hasher,
	}, nil
}

// Write appends p to the staging file
func (u *Upload) Write(p []byte) (int, error) {
	n, err := u.file.Write(p)
	u.hasher.Write(p[:n])
	u.written += int64(n)
	if err != nil {
		return n, errors.NewFileSystemError("write", u.tmpPath, err)
	}
	return n, nil
}

// Written returns the number of bytes accepted so far
func (u *Upload) Written() int64 {
	return u.written
}

// Digest returns the hex digest of the bytes written so far
func (u *Upload) Digest() string {
	return hex.EncodeToString(u.hasher.Sum(nil))
}

// Commit moves the staged file into the root, replacing any previous version
func (u *Upload) Commit() error {
	if u.done {
		return nil
	}
	u.done = true

	if err := u.file.Close(); err != nil {
		os.Remove(u.tmpPath)
		return errors.NewFileSystemError("close", u.tmpPath, err)
	}

	if err := os.Rename(u.tmpPath, u.finalPath); err != nil {
		os.Remove(u.tmpPath)
		return errors.NewFileSystemError("rename", u.finalPath, err)
	}
	return nil
}

// Abort discards the staged file. It is a no-op after Commit.
func (u *Upload) Abort() error {
	if u.done {
		return nil
	}
	u.done = true

	u.file.Close()
	if err := os.Remove(u.tmpPath); err != nil && !os.IsNotExist(err) {
		return errors.NewFileSystemError("remove", u.tmpPath, err)
	}
	return nil
}

// CleanStaging removes staged uploads left behind by an earlier process
func (s *Store) CleanStaging() error {
	entries, err := os.ReadDir(s.staging)
	if err != nil {
		return errors.NewFileSystemError("readdir", s.staging, err)
	}

	for _, entry := range entries {
		path := filepath.Join(s.staging, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove stale upload", "path", path, "error", err)
			continue
		}
		slog.Debug("Removed stale upload", "path", path)
	}
	return nil
}
