package logio

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"ftlog/errs"
)

// Source is a read-only, memory-mapped view over a log file, giving
// Directory Reader random access via ReadAt (spec.md §4.4). It is a
// direct generalization of the teacher's utils/mmap package
// (mmap/munmap via golang.org/x/sys/unix) plus file/mmap.go's
// MmapFile.Bytes, trimmed to the read-only half the reader needs.
type Source struct {
	mu   sync.RWMutex
	fd   *os.File
	data []byte
	size int64
}

// OpenSource mmaps path read-only for random access.
func OpenSource(path string) (*Source, error) {
	fd, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.KindNotFound, err, "logio: source path does not exist")
		}
		return nil, errors.Wrapf(err, "logio: opening source %s", path)
	}
	s := &Source{fd: fd}
	if err := s.mmap(); err != nil {
		fd.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) mmap() error {
	stat, err := s.fd.Stat()
	if err != nil {
		return errors.Wrapf(err, "logio: stat source %s", s.fd.Name())
	}
	size := stat.Size()
	if size == 0 {
		s.data = nil
		s.size = 0
		return nil
	}
	data, err := unix.Mmap(int(s.fd.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrapf(err, "logio: mmap source %s", s.fd.Name())
	}
	s.data = data
	s.size = size
	return nil
}

// ReadAt returns a size-byte slice at offset (spec.md §4.4). The returned
// slice aliases the mapped file and must not be retained past the next
// Rebind/Close.
func (s *Source) ReadAt(offset, size int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 || size < 0 || offset+size > s.size {
		return nil, errs.New(errs.KindCorruption, "logio: read [%d,%d) exceeds source size %d", offset, offset+size, s.size)
	}
	return s.data[offset : offset+size], nil
}

// Size reports the mapped file's current length.
func (s *Source) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Rebind remaps the source at path, used when a compacted/merged
// artifact replaces the file a Directory Reader was opened against
// (spec.md §4.4 "Data source may be rebound after the directory has
// opened").
func (s *Source) Rebind(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) > 0 {
		if err := unix.Munmap(s.data); err != nil {
			return errors.Wrap(err, "logio: munmap before rebind")
		}
	}
	if err := s.fd.Close(); err != nil {
		return errors.Wrap(err, "logio: closing source before rebind")
	}
	fd, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "logio: reopening source %s", path)
	}
	s.fd = fd
	return s.mmap()
}

// Close unmaps and closes the underlying file.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) > 0 {
		if err := unix.Munmap(s.data); err != nil {
			return errors.Wrap(err, "logio: munmap on close")
		}
		s.data = nil
	}
	return s.fd.Close()
}
