package directory

import (
	"path/filepath"
	"sort"
	"sync"

	"ftlog/block"
	"ftlog/errs"
	"ftlog/filter"
	"ftlog/format"
	"ftlog/logio"
	"ftlog/workpool"
)

// Reader resolves point lookups across every epoch of one directory
// partition (spec.md §4.6), generalized from the teacher's
// table.block()/cache-key lookups (lsmT/table.go) and
// file/SSTable.go#initSSTable's footer-then-root parsing order.
type Reader struct {
	opts            Options
	dataSource      *logio.Source
	indexSource     *logio.Source
	footer          format.Footer
	rootEntries     []block.Entry
	numEpochs       int
	verifyChecksums bool
	paranoidChecks  bool
	readerPool      workpool.Pool
}

// OpenReader parses the footer, then the root block, from
// opts.Dir/opts.Rank's index log (spec.md §4.6).
func OpenReader(opts Options) (*Reader, error) {
	opts = opts.WithDefaults()

	dataPath := filepath.Join(opts.Dir, rankFileName(opts.Rank, "dat"))
	indexPath := filepath.Join(opts.Dir, rankFileName(opts.Rank, "idx"))

	dataSource, err := logio.OpenSource(dataPath)
	if err != nil {
		return nil, err
	}
	indexSource, err := logio.OpenSource(indexPath)
	if err != nil {
		dataSource.Close()
		return nil, err
	}

	r := &Reader{
		opts:            opts,
		dataSource:      dataSource,
		indexSource:     indexSource,
		verifyChecksums: opts.VerifyChecksums,
		paranoidChecks:  opts.ParanoidChecks,
		readerPool:      opts.ReaderPool,
	}

	size := indexSource.Size()
	if size < format.FooterLen {
		dataSource.Close()
		indexSource.Close()
		return nil, errs.New(errs.KindCorruption, "directory: index log shorter than footer (%d bytes)", size)
	}
	footerBytes, err := indexSource.ReadAt(size-format.FooterLen, format.FooterLen)
	if err != nil {
		dataSource.Close()
		indexSource.Close()
		return nil, err
	}
	footer, err := format.DecodeFooter(footerBytes)
	if err != nil {
		dataSource.Close()
		indexSource.Close()
		return nil, err
	}
	r.footer = footer

	root, err := r.loadBlock(indexSource, footer.Root)
	if err != nil {
		dataSource.Close()
		indexSource.Close()
		return nil, err
	}
	rootEntries, err := root.All()
	if err != nil {
		dataSource.Close()
		indexSource.Close()
		return nil, err
	}
	r.rootEntries = rootEntries
	r.numEpochs = len(rootEntries)
	return r, nil
}

// NumEpochs reports the directory's epoch count, as recorded in the root
// block at Open.
func (r *Reader) NumEpochs() int { return r.numEpochs }

// Rebind points the reader's data source at a replacement path, e.g.
// after a merge produced a new data log artifact (spec.md §4.4).
func (r *Reader) Rebind(dataPath string) error {
	return r.dataSource.Rebind(dataPath)
}

// Close closes the underlying sources.
func (r *Reader) Close() error {
	if err := r.dataSource.Close(); err != nil {
		return err
	}
	return r.indexSource.Close()
}

func (r *Reader) loadBlock(src *logio.Source, h format.BlockHandle) (*block.Reader, error) {
	raw, err := src.ReadAt(int64(h.Offset), int64(h.Size))
	if err != nil {
		return nil, err
	}
	return block.NewReader(raw, r.verifyChecksums)
}

// epochMetaIndex returns epoch index's meta-index block (root-block entry
// `epoch` in ascending order, per spec.md §3's root block semantics).
func (r *Reader) epochMetaIndex(rootEntries []block.Entry, epoch int) (*block.Reader, error) {
	handle, _, err := format.DecodeBlockHandle(rootEntries[epoch].Value)
	if err != nil {
		return nil, err
	}
	return r.loadBlock(r.indexSource, handle)
}

// epochResult carries one epoch's contribution to a Read, preserving the
// per-epoch fan-out bookkeeping spec.md §4.6's GetContext describes
// (tracked here via a plain slice + index rather than a dedicated
// accumulator type, since Go's goroutine-per-epoch + WaitGroup already
// gives the same open_reads==0 join point without a condvar).
type epochResult struct {
	values [][]byte
	err    error
}

// Read resolves key across every epoch, concatenating matching values in
// (epoch ascending, within-epoch insertion order) (spec.md §4.6/§8).
func (r *Reader) Read(key []byte) ([]byte, error) {
	rootEntries := r.rootEntries
	results := make([]epochResult, len(rootEntries))

	if r.readerPool != nil && len(rootEntries) > 1 {
		var wg sync.WaitGroup
		for epoch := range rootEntries {
			epoch := epoch
			wg.Add(1)
			r.readerPool.Submit(func() {
				defer wg.Done()
				values, err := r.readEpoch(rootEntries, epoch, key)
				results[epoch] = epochResult{values: values, err: err}
			})
		}
		wg.Wait()
	} else {
		for epoch := range rootEntries {
			values, err := r.readEpoch(rootEntries, epoch, key)
			results[epoch] = epochResult{values: values, err: err}
		}
	}

	var out []byte
	for _, res := range results {
		if res.err != nil {
			return nil, res.err
		}
		for _, v := range res.values {
			out = append(out, v...)
		}
	}
	return out, nil
}

// readEpoch implements spec.md §4.6's per-epoch steps 1-5.
func (r *Reader) readEpoch(rootEntries []block.Entry, epoch int, key []byte) ([][]byte, error) {
	metaIndex, err := r.epochMetaIndex(rootEntries, epoch)
	if err != nil {
		return nil, err
	}
	metaEntries, err := metaIndex.All()
	if err != nil {
		return nil, err
	}

	start := sort.Search(len(metaEntries), func(i int) bool {
		return compareBytes(metaEntries[i].Key, key) >= 0
	})

	var values [][]byte
	for i := start; i < len(metaEntries); i++ {
		th, err := format.DecodeTableHandle(metaEntries[i].Value)
		if err != nil {
			return nil, err
		}
		matched, err := r.tableMayMatch(th, key)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		tvs, err := r.scanTable(th, key)
		if err != nil {
			return nil, err
		}
		values = append(values, tvs...)
	}
	return values, nil
}

func (r *Reader) tableMayMatch(th format.TableHandle, key []byte) (bool, error) {
	if !th.HasFilter {
		return true, nil
	}
	raw, err := r.indexSource.ReadAt(int64(th.FilterHandle.Offset), int64(th.FilterHandle.Size))
	if err != nil {
		return false, err
	}
	tag, payload, err := format.UnwrapTrailer(raw, r.verifyChecksums)
	if err != nil {
		return false, err
	}
	if !filter.Recognized(filter.Tag(tag)) && !r.paranoidChecks {
		dirLog.Warnf("unrecognized filter tag %d, paranoid_checks=false: falling back to full block scan", tag)
	}
	return filter.KeyMayMatch(filter.Tag(tag), key, payload, r.paranoidChecks)
}

// scanTable loads the table's index block, locates the first data block
// whose largest key is >= key, and scans forward across as many blocks
// as still match (spec.md §4.6 steps 4-5).
func (r *Reader) scanTable(th format.TableHandle, key []byte) ([][]byte, error) {
	indexBlock, err := r.loadBlock(r.indexSource, th.IndexHandle)
	if err != nil {
		return nil, err
	}
	indexEntries, err := indexBlock.All()
	if err != nil {
		return nil, err
	}

	start := sort.Search(len(indexEntries), func(i int) bool {
		return compareBytes(indexEntries[i].Key, key) >= 0
	})

	var values [][]byte
	for i := start; i < len(indexEntries); i++ {
		handle, _, err := format.DecodeBlockHandle(indexEntries[i].Value)
		if err != nil {
			return nil, err
		}
		raw, err := r.dataSource.ReadAt(int64(handle.Offset), int64(handle.Size))
		if err != nil {
			return nil, err
		}
		dataBlock, err := block.NewReader(raw, r.verifyChecksums)
		if err != nil {
			return nil, err
		}
		entries, err := dataBlock.All()
		if err != nil {
			return nil, err
		}

		exhausted := false
		for _, e := range entries {
			c := compareBytes(e.Key, key)
			if c < 0 {
				continue
			}
			if c > 0 {
				exhausted = true
				break
			}
			values = append(values, e.Value)
		}
		if exhausted {
			break
		}
		// The block didn't exhaust: the next block's smallest key may
		// still equal key (spec.md §4.6 step 5), so keep scanning.
	}
	return values, nil
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
