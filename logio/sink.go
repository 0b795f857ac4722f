package logio

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Sink is a buffered, append-only writer over a single log file
// (spec.md §4.4). It batches writes in memory and flushes to the
// underlying file once the buffered size reaches minBuffer, generalizing
// the teacher's file.WalFile.Write (buffer-then-flush) pattern from a
// mmap-backed WAL to plain buffered file I/O, since the sink here never
// needs random-access rewrite.
type Sink struct {
	mu         sync.Mutex
	fs         FS
	file       *os.File
	path       string
	minBuffer  int
	pending    []byte
	flushedLen int64
	closed     bool
}

// NewSink opens (creating if needed) path for append and returns a Sink
// that flushes once minBuffer bytes have accumulated.
func NewSink(fs FS, path string, minBuffer int) (*Sink, error) {
	if fs == nil {
		fs = OSFilesystem{}
	}
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "logio: opening sink %s", path)
	}
	stat, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "logio: stat sink %s", path)
	}
	return &Sink{
		fs:         fs,
		file:       f,
		path:       path,
		minBuffer:  minBuffer,
		flushedLen: stat.Size(),
	}, nil
}

// Append buffers data, flushing to disk once the threshold is crossed.
// It returns the offset the data landed at within the log, for callers
// that need to record handles before a flush actually happens.
func (s *Sink) Append(data []byte) (offset int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("logio: append on closed sink")
	}
	offset = s.flushedLen + int64(len(s.pending))
	s.pending = append(s.pending, data...)
	if len(s.pending) >= s.minBuffer {
		if err := s.flushLocked(); err != nil {
			return 0, err
		}
	}
	return offset, nil
}

func (s *Sink) flushLocked() error {
	if len(s.pending) == 0 {
		return nil
	}
	n, err := s.file.Write(s.pending)
	if err != nil {
		return errors.Wrapf(err, "logio: writing sink %s", s.path)
	}
	s.flushedLen += int64(n)
	s.pending = s.pending[:0]
	return nil
}

// Flush forces any buffered bytes to disk without syncing.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Sync flushes and fsyncs the underlying file.
func (s *Sink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return err
	}
	return s.file.Sync()
}

// Offset reports the logical end-of-log position (flushed + buffered).
func (s *Sink) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushedLen + int64(len(s.pending))
}

// Close flushes, syncs, and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.flushLocked(); err != nil {
		return err
	}
	s.closed = true
	return s.file.Close()
}
