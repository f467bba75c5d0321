// Package realfs backs ports.FileSystem with the os package.
package realfs

import (
	"io/fs"
	"os"

	"github.com/acolita/qemu-e2e/internal/ports"
)

type FS struct{}

func New() *FS {
	return &FS{}
}

func (*FS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (*FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (*FS) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

// OpenFile returns the *os.File as a ports.FileHandle.
func (*FS) OpenFile(name string, flag int, perm fs.FileMode) (ports.FileHandle, error) {
	return os.OpenFile(name, flag, perm)
}

var _ ports.FileSystem = (*FS)(nil)
