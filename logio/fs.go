// Package logio implements the two append-only log halves spec.md §4.4
// requires: a buffered Sink for writers and a random-access, mmap-backed
// Source for readers. FS is the injected filesystem seam spec.md §1/§6
// keeps out of the core (the CLI/benchmark harness owns the concrete
// choice); the default implementation wraps os directly, matching the
// teacher's unmediated os.* calls in file/mmap.go.
package logio

import "os"

// FS is the minimal filesystem surface the core needs.
type FS interface {
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	Remove(name string) error
	Stat(name string) (os.FileInfo, error)
}

// OSFilesystem is the default FS, a thin pass-through to the os package.
type OSFilesystem struct{}

func (OSFilesystem) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}
func (OSFilesystem) Remove(name string) error            { return os.Remove(name) }
func (OSFilesystem) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
