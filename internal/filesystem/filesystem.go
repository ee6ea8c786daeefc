package filesystem

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/config"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/errors"
)

// HashAlgorithm names a digest used to fingerprint stored files
type HashAlgorithm string

const (
	HashMD5     HashAlgorithm = config.HashMD5
	HashSHA256  HashAlgorithm = config.HashSHA256
	HashBLAKE2b HashAlgorithm = config.HashBLAKE2b

	DefaultHashAlgorithm HashAlgorithm = config.DefaultHashAlgorithm

	hashBufferSize = 1024 * 1024
)

// FileInfo describes one entry of the managed root
type FileInfo struct {
	Name     string
	Size     int64
	Path     string
	IsDir    bool
	Modified time.Time
}

// GetFileInfo returns information about a file
func GetFileInfo(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewFileSystemError("stat", path, err)
	}

	return &FileInfo{
		Name:     stat.Name(),
		Size:     stat.Size(),
		Path:     path,
		IsDir:    stat.IsDir(),
		Modified: stat.ModTime(),
	}, nil
}

// EnsureDirectoryExists creates a directory if it doesn't exist
func EnsureDirectoryExists(dir string) error {
	if err := os.MkdirAll(dir, config.LogDirPerms); err != nil {
		return errors.NewFileSystemError("mkdir", dir, err)
	}
	return nil
}

// NewHasher returns a streaming hash for algorithm
func NewHasher(algorithm HashAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case HashMD5:
		return md5.New(), nil
	case HashSHA256:
		return sha256.New(), nil
	case HashBLAKE2b:
		h, err := blake2b.New256(nil)
		if err != nil {
			return nil, errors.NewValidationError("hash_algorithm", algorithm, err.Error())
		}
		return h, nil
	}
	return nil, errors.NewValidationError("hash_algorithm", algorithm, fmt.Sprintf("unsupported algorithm: %s", algorithm))
}

// CalculateFileHashWithAlgorithm hashes the whole file from its start
func CalculateFileHashWithAlgorithm(file *os.File, algorithm HashAlgorithm) (string, error) {
	h, err := NewHasher(algorithm)
	if err != nil {
		return "", err
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", errors.NewFileSystemError("seek", file.Name(), err)
	}

	buffer := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(h, file, buffer); err != nil {
		return "", errors.NewFileSystemError("read_hash", file.Name(), err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
