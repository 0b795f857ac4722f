// Package table implements the Table Logger from spec.md §4.3: it
// serializes a sorted run into data blocks (written to a data log.Sink),
// an index block and optional filter block (written to an index
// log.Sink), and threads the epoch meta-index and directory root blocks
// on top. It generalizes the teacher's tableBuilder
// (lsmT/builder.go, block()/finishBlock) from a single mmap'd SSTable
// file into two co-resident logs and adds the meta-index/root layer the
// teacher has no equivalent for (its closest analogue is
// file/manifet.go's per-level Manifest bookkeeping, generalized here from
// "levels" to "epochs").
package table

import (
	"ftlog/block"
	"ftlog/errs"
	"ftlog/format"
	"ftlog/logio"
)

// pendingIndexEntry is a sealed data block awaiting Commit into the
// table's index block builder.
type pendingIndexEntry struct {
	key    []byte
	handle format.BlockHandle
}

// Logger writes one directory's data+index log pair across its whole
// lifetime: many tables, each grouped into epochs (spec.md §4.3/§4.5).
type Logger struct {
	opts      Options
	dataSink  *logio.Sink
	indexSink *logio.Sink

	dataBuilder      *block.Builder
	indexBuilder     *block.Builder
	metaIndexBuilder *block.Builder
	rootBuilder      *block.Builder

	pending []pendingIndexEntry

	smallestKey []byte
	largestKey  []byte

	numEpochs int
	err       error
}

// NewLogger creates a Logger writing data blocks to dataSink and
// index/filter/meta-index/root blocks to indexSink.
func NewLogger(opts Options, dataSink, indexSink *logio.Sink) *Logger {
	return &Logger{
		opts:             opts,
		dataSink:         dataSink,
		indexSink:        indexSink,
		dataBuilder:      block.NewBuilder(opts.RestartInterval, opts.Compress, opts.ForceCompress),
		indexBuilder:     block.NewBuilder(opts.RestartInterval, opts.Compress, opts.ForceCompress),
		metaIndexBuilder: block.NewBuilder(opts.RestartInterval, opts.Compress, opts.ForceCompress),
		rootBuilder:      block.NewBuilder(opts.RestartInterval, false, false),
	}
}

// Err returns the latched write-path error, if any (spec.md §7: once set,
// all subsequent operations are no-ops).
func (l *Logger) Err() error { return l.err }

// Add appends one entry to the current data block, sealing it first if
// its estimated size has already reached the block_size*block_util
// threshold (spec.md §4.3). The size of the incoming entry is not
// considered, so a sealed block can exceed the threshold by one entry.
func (l *Logger) Add(key, value []byte) error {
	if l.err != nil {
		return l.err
	}
	if !l.dataBuilder.Empty() && l.dataBuilder.EstimatedSize() >= l.opts.sealThreshold() {
		if err := l.sealDataBlock(); err != nil {
			return l.fail(err)
		}
	}
	if err := l.dataBuilder.Add(key, value); err != nil {
		return l.fail(err)
	}
	if l.smallestKey == nil {
		l.smallestKey = append([]byte{}, key...)
	}
	l.largestKey = append(l.largestKey[:0], key...)
	return nil
}

// EndBlock forces the current data block to seal even if under the
// threshold (spec.md §4.3).
func (l *Logger) EndBlock() error {
	if l.err != nil {
		return l.err
	}
	if l.dataBuilder.Empty() {
		return nil
	}
	if err := l.sealDataBlock(); err != nil {
		return l.fail(err)
	}
	return nil
}

func (l *Logger) sealDataBlock() error {
	lastKey := l.dataBuilder.LastKey()
	payload := l.dataBuilder.Finish()
	offset, err := l.dataSink.Append(payload)
	if err != nil {
		return err
	}
	l.pending = append(l.pending, pendingIndexEntry{
		key:    lastKey,
		handle: format.BlockHandle{Offset: uint64(offset), Size: uint64(len(payload))},
	})
	l.dataBuilder.Reset()
	return nil
}

// Commit drains the data sink's buffer to the log and attaches each
// pending index entry to the index block, keyed by its block's largest
// key (spec.md §4.3).
func (l *Logger) Commit() error {
	if l.err != nil {
		return l.err
	}
	if err := l.dataSink.Flush(); err != nil {
		return l.fail(err)
	}
	for _, p := range l.pending {
		if err := l.indexBuilder.Add(p.key, p.handle.EncodeTo(nil)); err != nil {
			return l.fail(err)
		}
	}
	l.pending = l.pending[:0]
	return nil
}

// EndTable seals the index block (and, if non-empty, the filter payload),
// writes both to the index log, emits a TableHandle, attaches it to the
// epoch meta-index keyed by the table's largest key, and resets
// table-level state (spec.md §4.3). filterTag is ignored when filter is
// empty.
func (l *Logger) EndTable(filter []byte, filterTag byte) error {
	if l.err != nil {
		return l.err
	}
	if err := l.EndBlock(); err != nil {
		return err
	}
	if err := l.Commit(); err != nil {
		return err
	}
	if l.smallestKey == nil {
		// No entries were added to this table; nothing to seal.
		return nil
	}

	indexPayload := l.indexBuilder.Finish()
	indexOffset, err := l.indexSink.Append(indexPayload)
	if err != nil {
		return l.fail(err)
	}
	indexHandle := format.BlockHandle{Offset: uint64(indexOffset), Size: uint64(len(indexPayload))}

	th := format.TableHandle{
		Smallest:    l.smallestKey,
		Largest:     l.largestKey,
		IndexHandle: indexHandle,
	}
	if len(filter) > 0 {
		wrapped := format.WrapTrailer(filterTag, filter)
		filterOffset, err := l.indexSink.Append(wrapped)
		if err != nil {
			return l.fail(err)
		}
		th.HasFilter = true
		th.FilterHandle = format.BlockHandle{Offset: uint64(filterOffset), Size: uint64(len(wrapped))}
	}

	if err := l.metaIndexBuilder.Add(th.Largest, th.EncodeTo(nil)); err != nil {
		return l.fail(err)
	}

	l.indexBuilder.Reset()
	l.smallestKey = nil
	l.largestKey = nil
	return nil
}

// MakeEpoch seals the epoch's meta-index block to the index log and
// records its handle in the root block at position numEpochs, then
// increments numEpochs (spec.md §4.3).
func (l *Logger) MakeEpoch() error {
	if l.err != nil {
		return l.err
	}
	// An epoch with zero tables still seals a (trivially empty)
	// meta-index block so readers see a consistent epoch count.
	payload := l.metaIndexBuilder.Finish()
	offset, err := l.indexSink.Append(payload)
	if err != nil {
		return l.fail(err)
	}
	handle := format.BlockHandle{Offset: uint64(offset), Size: uint64(len(payload))}

	key := epochKey(l.numEpochs)
	if err := l.rootBuilder.Add(key, handle.EncodeTo(nil)); err != nil {
		return l.fail(err)
	}
	l.numEpochs++
	l.metaIndexBuilder.Reset()
	return nil
}

// Finish seals the root block and writes the fixed-size footer
// (spec.md §4.3/§4.7), then surfaces any latched error.
func (l *Logger) Finish(mode, filterFormat byte) error {
	if l.err != nil {
		return l.err
	}
	payload := l.rootBuilder.Finish()
	offset, err := l.indexSink.Append(payload)
	if err != nil {
		return l.fail(err)
	}
	rootHandle := format.BlockHandle{Offset: uint64(offset), Size: uint64(len(payload))}

	footer := format.Footer{Root: rootHandle, Mode: mode, FilterFormat: filterFormat}
	if _, err := l.indexSink.Append(footer.Encode()); err != nil {
		return l.fail(err)
	}
	if err := l.indexSink.Sync(); err != nil {
		return l.fail(err)
	}
	if err := l.dataSink.Sync(); err != nil {
		return l.fail(err)
	}
	return nil
}

func (l *Logger) fail(err error) error {
	if l.err == nil {
		if _, ok := errs.KindOf(err); ok {
			l.err = err
		} else {
			l.err = errs.Wrap(errs.KindIOError, err, "table: write failed")
		}
	}
	return l.err
}

// epochKey renders an epoch index as an 8-byte big-endian key, so
// successive MakeEpoch calls feed the root block builder non-decreasing
// keys (spec.md §4.1's Add contract) in the same order epochs occur.
func epochKey(epoch int) []byte {
	var buf [8]byte
	v := uint64(epoch)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf[:]
}
