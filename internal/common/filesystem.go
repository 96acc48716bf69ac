// Package common provides shared interfaces and utilities used across the
// scan supervision packages.
package common

import (
	"errors"
	"io/fs"
	"os"
)

// Error definitions for static error handling
var (
	ErrEmptyPath = errors.New("path cannot be empty")
)

// FileSystem defines the interface for the file system operations the core
// needs. The interface allows for easy mocking in tests and keeps path
// checks consistent across packages.
type FileSystem interface {
	// ReadFile reads the named file and returns its contents
	ReadFile(path string) ([]byte, error)

	// Lstat returns file information without following symlinks
	Lstat(path string) (fs.FileInfo, error)

	// FileExists checks if a file or directory exists
	FileExists(path string) (bool, error)

	// IsDir checks if the path is a directory
	IsDir(path string) (bool, error)
}

// DefaultFileSystem implements FileSystem using standard os package functions
type DefaultFileSystem struct{}

// NewDefaultFileSystem creates a new DefaultFileSystem
func NewDefaultFileSystem() *DefaultFileSystem {
	return &DefaultFileSystem{}
}

// ReadFile reads the named file and returns its contents
func (f *DefaultFileSystem) ReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return os.ReadFile(path) // #nosec G304 - callers validate paths before reading
}

// Lstat returns file information without following symlinks
func (f *DefaultFileSystem) Lstat(path string) (fs.FileInfo, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return os.Lstat(path)
}

// FileExists checks if a file or directory exists
func (f *DefaultFileSystem) FileExists(path string) (bool, error) {
	_, err := f.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// IsDir checks if the path is a directory
func (f *DefaultFileSystem) IsDir(path string) (bool, error) {
	info, err := f.Lstat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
