// Package billy implements the engine filesystem on top of go-billy, backed
// either by the host operating system or by memory.
package billy

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	parentfs "github.com/horizon-installer/hscript/fs"
)

var _ parentfs.Filesystem = (*FS)(nil)

// FS implements the Filesystem interface using go-billy.
type FS struct {
	fs billy.Filesystem
}

// AppendFile implements Filesystem.AppendFile.
func (b *FS) AppendFile(name string, data []byte, perm os.FileMode) error {
	if err := b.fs.MkdirAll(parentfs.Dir(name), 0o755); err != nil {
		return fmt.Errorf("billy: append %q: %w", name, err)
	}
	f, err := b.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return fmt.Errorf("billy: append %q: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("billy: append %q: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("billy: append %q: %w", name, err)
	}
	return nil
}

// CopyFile implements Filesystem.CopyFile.
func (b *FS) CopyFile(src, dst string, perm os.FileMode) error {
	data, err := util.ReadFile(b.fs, src)
	if err != nil {
		return fmt.Errorf("billy: copy %q: %w", src, err)
	}
	if err := b.WriteFile(dst, data, perm); err != nil {
		return fmt.Errorf("billy: copy %q: %w", src, err)
	}
	return nil
}

// Exists implements Filesystem.Exists.
func (b *FS) Exists(path string) (bool, error) {
	_, err := b.fs.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("billy: stat %q: %w", path, err)
	}
}

// MkdirAll implements Filesystem.MkdirAll.
func (b *FS) MkdirAll(path string, perm os.FileMode) error {
	if err := b.fs.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("billy: mkdirall %q: %w", path, err)
	}
	return nil
}

// ReadDir implements Filesystem.ReadDir.
func (b *FS) ReadDir(dirname string) ([]os.FileInfo, error) {
	list, err := b.fs.ReadDir(dirname)
	if err != nil {
		return nil, fmt.Errorf("billy: readdir %q: %w", dirname, err)
	}
	return list, nil
}

// ReadFile implements Filesystem.ReadFile.
func (b *FS) ReadFile(path string) ([]byte, error) {
	bts, err := util.ReadFile(b.fs, path)
	if err != nil {
		return nil, fmt.Errorf("billy: readfile %q: %w", path, err)
	}
	return bts, nil
}

// Readlink implements Filesystem.Readlink.
func (b *FS) Readlink(link string) (string, error) {
	target, err := b.fs.Readlink(link)
	if err != nil {
		return "", fmt.Errorf("billy: readlink %q: %w", link, err)
	}
	return target, nil
}

// Remove implements Filesystem.Remove.
func (b *FS) Remove(name string) error {
	if err := b.fs.Remove(name); err != nil {
		return fmt.Errorf("billy: remove %q: %w", name, err)
	}
	return nil
}

// Rename implements Filesystem.Rename.
func (b *FS) Rename(from, to string) error {
	if err := b.fs.Rename(from, to); err != nil {
		return fmt.Errorf("billy: rename %q: %w", from, err)
	}
	return nil
}

// Stat implements Filesystem.Stat.
func (b *FS) Stat(name string) (os.FileInfo, error) {
	info, err := b.fs.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("billy: stat %q: %w", name, err)
	}
	return info, nil
}

// Symlink implements Filesystem.Symlink.
func (b *FS) Symlink(target, link string) error {
	if err := b.fs.MkdirAll(parentfs.Dir(link), 0o755); err != nil {
		return fmt.Errorf("billy: symlink %q: %w", link, err)
	}
	if err := b.fs.Symlink(target, link); err != nil {
		return fmt.Errorf("billy: symlink %q: %w", link, err)
	}
	return nil
}

// WriteFile implements Filesystem.WriteFile.
func (b *FS) WriteFile(filename string, data []byte, perm os.FileMode) error {
	if err := b.fs.MkdirAll(parentfs.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("billy: writefile %q: %w", filename, err)
	}
	if err := util.WriteFile(b.fs, filename, data, perm); err != nil {
		return fmt.Errorf("billy: writefile %q: %w", filename, err)
	}
	return nil
}

// Raw returns the underlying go-billy filesystem.
//
//nolint:ireturn // returning interface here is intentional to expose the adapter target.
func (b *FS) Raw() billy.Filesystem {
	return b.fs
}

// NewFS creates a new FS using the given go-billy filesystem.
func NewFS(fsys billy.Filesystem) *FS {
	return &FS{
		fs: fsys,
	}
}

// NewInMemoryFS creates a new in-memory filesystem.
func NewInMemoryFS() *FS {
	return &FS{
		fs: memfs.New(),
	}
}

// NewOSFS creates a new OS filesystem rooted at path.
func NewOSFS(path string) *FS {
	return &FS{
		fs: osfs.New(path),
	}
}
