// Package ftlog is the public entry point for the append-only,
// epoch-structured, indexed log store (spec.md §1): one Writer per
// directory partition to append and seal epochs, one Reader per
// partition to resolve point lookups across every epoch ever written.
// It is a thin facade over directory.Logger/directory.Reader, the same
// shape as the teacher's db.go wrapping lsmT.LSM behind a small
// Set/Get surface.
package ftlog

import "ftlog/directory"

// Options re-exports directory.Options so callers never need to import
// the directory package directly.
type Options = directory.Options

// Mode re-exports directory.Mode's compaction dedup policy.
type Mode = directory.Mode

const (
	ModeUnique     = directory.ModeUnique
	ModeUniqueDrop = directory.ModeUniqueDrop
	ModeMultiMap   = directory.ModeMultiMap
)

// FlushOptions re-exports directory.FlushOptions.
type FlushOptions = directory.FlushOptions

// Writer appends entries to one directory partition and seals epochs.
type Writer struct {
	logger *directory.Logger
}

// OpenWriter opens (or creates) the partition at opts.Dir/opts.Rank for
// writing.
func OpenWriter(opts Options) (*Writer, error) {
	logger, err := directory.OpenLogger(opts)
	if err != nil {
		return nil, err
	}
	return &Writer{logger: logger}, nil
}

// Add appends one (key, value) entry, blocking if the write buffer is
// full unless Options.NonBlocking was set (spec.md §4.5).
func (w *Writer) Add(key, value []byte) error {
	return w.logger.Add(key, value)
}

// Flush drains the active buffer into a table, optionally sealing an
// epoch and/or finalizing the directory (spec.md §4.5).
func (w *Writer) Flush(opts FlushOptions) error {
	return w.logger.Flush(opts)
}

// Close closes the underlying sinks. Call Flush with Finalize=true first
// to produce a readable directory (spec.md §3: unfinished directories
// are not readable).
func (w *Writer) Close() error {
	return w.logger.Close()
}

// Reader resolves point lookups across every epoch of a finished
// directory partition.
type Reader struct {
	reader *directory.Reader
}

// OpenReader opens the finished partition at opts.Dir/opts.Rank for
// reading.
func OpenReader(opts Options) (*Reader, error) {
	reader, err := directory.OpenReader(opts)
	if err != nil {
		return nil, err
	}
	return &Reader{reader: reader}, nil
}

// Read concatenates every value ever written under key, in
// (epoch ascending, within-epoch insertion order) (spec.md §4.6/§8).
func (r *Reader) Read(key []byte) ([]byte, error) {
	return r.reader.Read(key)
}

// NumEpochs reports the directory's epoch count.
func (r *Reader) NumEpochs() int { return r.reader.NumEpochs() }

// Rebind points the reader's data source at a replacement path.
func (r *Reader) Rebind(dataPath string) error { return r.reader.Rebind(dataPath) }

// Close closes the underlying sources.
func (r *Reader) Close() error { return r.reader.Close() }
