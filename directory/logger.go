// Package directory implements the Directory Logger and Directory Reader
// from spec.md §4.5/§4.6: the double-buffered write coordinator and the
// multi-epoch point-lookup reader that sit on top of block/filter/format/
// logio/membuf/table. It generalizes the teacher's lsmT package
// (lsmT/lsm.go's memtable-swap-and-compact loop, lsmT/compact.go's
// background dispatch) from per-level SSTable compaction into the
// per-partition epoch model spec.md describes; there is no per-level
// merge here, only "drain the immutable buffer into the next table".
package directory

import (
	"path/filepath"
	"sync"

	"ftlog/errs"
	"ftlog/filter"
	"ftlog/internal/logctx"
	"ftlog/logio"
	"ftlog/membuf"
	"ftlog/table"
)

var dirLog = logctx.New("ftlog/directory: ")

// immState is the state machine of the immutable slot (spec.md §4.5):
// Empty -> Pending -> Compacting -> Empty, transitions only under mu.
type immState int

const (
	immEmpty immState = iota
	immPending
	immCompacting
)

// FlushOptions tags one Flush call (spec.md §4.5).
type FlushOptions struct {
	// EpochFlush forces EndTable+MakeEpoch after draining the buffer.
	EpochFlush bool
	// Finalize also runs Finish and syncs both sinks. It implies
	// EpochFlush: a table sealed by Finalize without also calling
	// MakeEpoch would never be attached to the root block and so would
	// be unreadable.
	Finalize bool
	// NoWait returns once the work is scheduled rather than waiting for
	// completion.
	NoWait bool
}

// Logger is the write coordinator for one directory partition
// (spec.md §4.5).
type Logger struct {
	opts Options

	mu sync.Mutex
	cv *sync.Cond

	buf0, buf1 membuf.Buffer
	memBuf     *membuf.Buffer
	immBuf     *membuf.Buffer

	immState        immState
	immIsEpochFlush bool
	immIsFinal      bool

	numFlushRequested int64
	numFlushCompleted int64
	hasBgCompaction   bool

	dataSink  *logio.Sink
	indexSink *logio.Sink
	table     *table.Logger

	err error
}

// OpenLogger opens the data and index logs for opts.Dir/opts.Rank,
// creating them if needed, and returns a ready Logger. Existing logs are
// not truncated: new blocks are appended after their current contents.
func OpenLogger(opts Options) (*Logger, error) {
	opts = opts.WithDefaults()

	dataPath := filepath.Join(opts.Dir, rankFileName(opts.Rank, "dat"))
	indexPath := filepath.Join(opts.Dir, rankFileName(opts.Rank, "idx"))

	dataSink, err := logio.NewSink(opts.FS, dataPath, opts.MinDataBuffer)
	if err != nil {
		return nil, err
	}
	indexSink, err := logio.NewSink(opts.FS, indexPath, opts.MinIndexBuffer)
	if err != nil {
		dataSink.Close()
		return nil, err
	}

	l := &Logger{
		opts:      opts,
		dataSink:  dataSink,
		indexSink: indexSink,
		table: table.NewLogger(table.Options{
			BlockSize:       opts.BlockSize,
			BlockUtil:       opts.BlockUtil,
			RestartInterval: opts.RestartInterval,
			Compress:        opts.Compression,
			ForceCompress:   opts.ForceCompression,
			VerifyChecksums: opts.VerifyChecksums,
		}, dataSink, indexSink),
	}
	l.cv = sync.NewCond(&l.mu)
	l.memBuf = &l.buf0
	l.immBuf = &l.buf1
	return l, nil
}

func rankFileName(rank int, ext string) string {
	return itoa(rank) + "." + ext
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Add appends (key, value) to the active buffer, swapping buffers and
// scheduling a background compaction when the active buffer is full
// (spec.md §4.5). With NonBlocking it returns a Busy error instead of
// waiting for the immutable slot to drain.
func (l *Logger) Add(key, value []byte) error {
	for {
		l.mu.Lock()
		if l.err != nil {
			err := l.err
			l.mu.Unlock()
			return err
		}
		if l.canAccept(key, value) {
			l.memBuf.Add(key, value)
			l.mu.Unlock()
			return nil
		}
		if l.immState != immEmpty {
			if l.opts.NonBlocking {
				l.mu.Unlock()
				return errs.New(errs.KindBusy, "directory: active buffer full, immutable slot still draining")
			}
			l.cv.Wait()
			l.mu.Unlock()
			continue
		}
		l.swapBuffersLocked(false, false)
		l.mu.Unlock()
		l.dispatchCompaction()
	}
}

func (l *Logger) canAccept(key, value []byte) bool {
	budget := l.opts.perBufferBudget()
	if budget <= 0 {
		return true
	}
	return int64(l.memBuf.Bytes()+len(key)+len(value)) <= budget
}

// swapBuffersLocked swaps mem/imm and marks the immutable slot Pending.
// Must be called with mu held; the actual compaction dispatch happens
// afterwards, outside the lock, via dispatchCompaction - Submit on an
// inline/synchronous Pool would otherwise re-enter compact() (which locks
// mu) while this goroutine still held it.
func (l *Logger) swapBuffersLocked(epochFlush, finalize bool) {
	l.memBuf, l.immBuf = l.immBuf, l.memBuf
	l.immState = immPending
	l.immIsEpochFlush = epochFlush
	l.immIsFinal = finalize
	l.numFlushRequested++
}

// dispatchCompaction transitions a Pending immutable slot to Compacting
// and submits the work to the pool, outside the directory's mutex.
func (l *Logger) dispatchCompaction() {
	l.mu.Lock()
	if l.hasBgCompaction || l.immState != immPending {
		l.mu.Unlock()
		return
	}
	l.hasBgCompaction = true
	l.immState = immCompacting
	buf := l.immBuf
	epochFlush := l.immIsEpochFlush
	final := l.immIsFinal
	l.mu.Unlock()
	l.opts.Pool.Submit(func() {
		l.compact(buf, epochFlush, final)
	})
}

// Flush serializes the active buffer as the next compaction unit
// (spec.md §4.5). It swaps even an empty active buffer so Finalize can be
// used to seal a directory with no further writes pending.
func (l *Logger) Flush(opts FlushOptions) error {
	l.mu.Lock()
	for l.err == nil && l.immState != immEmpty {
		l.cv.Wait()
	}
	if l.err != nil {
		err := l.err
		l.mu.Unlock()
		return err
	}
	l.swapBuffersLocked(opts.EpochFlush, opts.Finalize)
	target := l.numFlushRequested
	l.mu.Unlock()
	l.dispatchCompaction()

	if opts.NoWait {
		return nil
	}
	l.mu.Lock()
	for l.err == nil && l.numFlushCompleted < target {
		l.cv.Wait()
	}
	err := l.err
	l.mu.Unlock()
	return err
}

// compact runs off the directory's mutex: sort (or verify sorted), apply
// the mode's de-duplication policy, stream into the Table Logger and
// filter builder, seal the drain's table, optionally seal the epoch,
// optionally finalize (spec.md §4.5 steps 1-6).
func (l *Logger) compact(buf *membuf.Buffer, epochFlush, final bool) {
	var compactErr error

	dirLog.Infof("compaction starting: entries=%d epoch_flush=%v finalize=%v", buf.Len(), epochFlush, final)
	defer func() {
		if compactErr != nil {
			dirLog.Warnf("compaction failed: %v", compactErr)
		} else {
			dirLog.Infof("compaction finished")
		}
	}()

	if l.opts.SkipSort {
		if !buf.IsSorted() {
			compactErr = errs.New(errs.KindInvalidArgument, "directory: skip_sort set but buffer is not sorted")
		}
	} else {
		buf.Sort()
	}

	var entries []membuf.Entry
	if compactErr == nil {
		var dropped int
		entries, dropped, compactErr = applyMode(l.opts.Mode, buf.Entries())
		if dropped > 0 {
			l.opts.Counters.Inc("directory.unique_drop.dropped", int64(dropped))
		}
	}

	var filterBuilder filter.Builder
	if compactErr == nil {
		filterBuilder = newFilterBuilder(l.opts)
		if filterBuilder != nil {
			filterBuilder.Reset(len(entries))
		}
	}

	if compactErr == nil {
		for _, e := range entries {
			if err := l.table.Add(e.Key, e.Value); err != nil {
				compactErr = err
				break
			}
			if filterBuilder != nil {
				filterBuilder.AddKey(e.Key)
			}
		}
	}

	// Every drain seals its own table, whether or not it ends an epoch
	// (spec.md §3: an over-large memtable "may flush into multiple
	// tables"). Each table is built from one drain's independently
	// sorted, fully-keyed filter, so a filter probe against any table
	// sees exactly the keys that table holds - a table is never left
	// straddling two drains with a filter that only reflects the last
	// one.
	if compactErr == nil {
		if err := l.table.EndBlock(); err != nil {
			compactErr = err
		}
	}
	if compactErr == nil {
		var payload []byte
		var tag byte
		if filterBuilder != nil {
			payload = filterBuilder.Finish()
			tag = byte(filterBuilder.ChunkType())
		}
		if err := l.table.EndTable(payload, tag); err != nil {
			compactErr = err
		}
	}
	if compactErr == nil && (epochFlush || final) {
		if err := l.table.MakeEpoch(); err != nil {
			compactErr = err
		}
	}
	if compactErr == nil && final {
		if err := l.table.Finish(byte(l.opts.Mode), byte(l.opts.FilterTag)); err != nil {
			compactErr = err
		}
	}

	l.mu.Lock()
	buf.Reset()
	l.immState = immEmpty
	l.hasBgCompaction = false
	l.numFlushCompleted++
	if compactErr != nil && l.err == nil {
		l.err = compactErr
	}
	l.cv.Broadcast()
	l.mu.Unlock()
}

// applyMode filters entries (already key-sorted) per the compaction mode
// (spec.md §4.5 step 2), reporting how many duplicates were dropped.
func applyMode(mode Mode, entries []membuf.Entry) ([]membuf.Entry, int, error) {
	switch mode {
	case ModeMultiMap:
		return entries, 0, nil
	case ModeUnique:
		for i := 1; i < len(entries); i++ {
			if bytesEqual(entries[i].Key, entries[i-1].Key) {
				return nil, 0, errs.New(errs.KindInvalidArgument, "directory: mode=unique saw duplicate key %q", entries[i].Key)
			}
		}
		return entries, 0, nil
	case ModeUniqueDrop:
		out := entries[:0:0]
		dropped := 0
		for i, e := range entries {
			if i > 0 && bytesEqual(e.Key, entries[i-1].Key) {
				dropped++
				continue
			}
			out = append(out, e)
		}
		return out, dropped, nil
	default:
		return entries, 0, nil
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Close syncs and closes the underlying sinks. Callers must Flush with
// Finalize first to seal the directory's format.Footer; Close alone
// leaves an unfinished (unreadable) directory per spec.md §3.
func (l *Logger) Close() error {
	if err := l.indexSink.Close(); err != nil {
		return err
	}
	return l.dataSink.Close()
}
