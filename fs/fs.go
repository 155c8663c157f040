// Package fs defines the filesystem abstraction the script engine reads
// scripts from and assembles the target tree through.
package fs

import (
	"os"
	"path"
	"strings"
)

// Filesystem is the set of file operations the engine performs. Paths are
// absolute and slash-separated. Implementations either act on a real or
// in-memory tree, or describe the operation without performing it.
type Filesystem interface {
	// ReadFile returns the contents of the named file.
	ReadFile(name string) ([]byte, error)
	// WriteFile replaces the named file, creating parent directories as needed.
	WriteFile(name string, data []byte, perm os.FileMode) error
	// AppendFile appends data to the named file, creating it if needed.
	AppendFile(name string, data []byte, perm os.FileMode) error
	// CopyFile copies src to dst.
	CopyFile(src, dst string, perm os.FileMode) error
	// MkdirAll creates a directory and all missing parents.
	MkdirAll(name string, perm os.FileMode) error
	// Exists reports whether name exists. Dangling symlinks exist.
	Exists(name string) (bool, error)
	// Stat returns file info for name, following symlinks.
	Stat(name string) (os.FileInfo, error)
	// ReadDir lists the entries of a directory.
	ReadDir(name string) ([]os.FileInfo, error)
	// Symlink creates link pointing at target.
	Symlink(target, link string) error
	// Readlink returns the target of a symlink.
	Readlink(link string) (string, error)
	// Rename moves from to to.
	Rename(from, to string) error
	// Remove deletes a file or empty directory.
	Remove(name string) error
}

// Under joins p onto root, keeping the result inside root even when p is
// absolute or contains "..".
func Under(root, p string) string {
	clean := path.Clean("/" + p)
	if root == "" || root == "/" {
		return clean
	}
	return path.Join(root, clean)
}

// Dir returns the parent directory of an absolute path.
func Dir(p string) string {
	return path.Dir(p)
}

// IsAbs reports whether p is an absolute, canonical path.
func IsAbs(p string) bool {
	return strings.HasPrefix(p, "/") && path.Clean(p) == p
}
