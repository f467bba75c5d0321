package ports

import (
	"io"
	"io/fs"
)

// FileHandle is an open file that recordings are streamed into.
type FileHandle interface {
	io.Writer
	io.Closer
}

// FileSystem covers the file access of config loading, `init` and the
// recording manager.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	MkdirAll(path string, perm fs.FileMode) error
	OpenFile(name string, flag int, perm fs.FileMode) (FileHandle, error)
}
