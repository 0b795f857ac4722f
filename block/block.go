// Package block implements the key-prefix-compressed sorted block format
// from spec.md §4.1/§3: a Builder that accepts non-decreasing keys and
// emits a restart-pointed, checksummed, optionally-snappy-compressed
// block, and a Reader that seeks into it.
//
// It generalizes the teacher's per-SSTable block logic (lsmT/builder.go's
// block/header/diffKey machinery and lsmT/table.go's block()/
// verifyChecksum reassembly) from a single always-uncompressed block tied
// to one table into a standalone, reusable, optionally-compressed unit
// that the table package composes many of.
package block

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/golang/snappy"

	"ftlog/errs"
	"ftlog/format"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// DefaultRestartInterval matches spec.md §4.1's default of 16 entries
// between restart points.
const DefaultRestartInterval = 16

// Builder accumulates non-decreasing (key, value) pairs into one sorted
// block. Add rejects an out-of-order key with a returned InvalidArgument
// error instead of panicking or silently reordering, mirroring the teacher's CondPanic-on-invariant-
// violation style but as a recoverable error since this is a library, not
// the teacher's embedded engine.
type Builder struct {
	restartInterval int
	forceCompress   bool
	compress        bool

	buf         []byte
	restarts    []uint32
	lastKey     []byte
	count       int
	sinceRestat int
}

// NewBuilder creates a Builder. restartInterval<=0 uses the default.
// compress enables snappy; forceCompress still emits compressed output
// even when it isn't smaller than raw, per spec.md §4.1.
func NewBuilder(restartInterval int, compress, forceCompress bool) *Builder {
	if restartInterval <= 0 {
		restartInterval = DefaultRestartInterval
	}
	b := &Builder{restartInterval: restartInterval, compress: compress, forceCompress: forceCompress}
	b.Reset()
	return b
}

// Reset clears the builder for reuse.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = b.restarts[:0]
	b.lastKey = b.lastKey[:0]
	b.count = 0
	b.sinceRestat = 0
}

// Empty reports whether any entry has been added since the last Reset.
func (b *Builder) Empty() bool { return b.count == 0 }

// LastKey returns the most recently added key, or nil if Empty.
func (b *Builder) LastKey() []byte {
	if b.count == 0 {
		return nil
	}
	return append([]byte{}, b.lastKey...)
}

// EstimatedSize is the number of entry bytes written so far plus the
// restart array and 8 bytes of fixed overhead - used by callers deciding when a block is
// "full enough" (spec.md §4.3's block_size*block_util check lives one
// layer up, in the table package).
func (b *Builder) EstimatedSize() int {
	return len(b.buf) + 4*len(b.restarts) + 8
}

// Add appends one entry. Keys must be non-decreasing across calls since
// the last Reset.
func (b *Builder) Add(key, value []byte) error {
	if b.count > 0 && compareBytes(key, b.lastKey) < 0 {
		return errs.New(errs.KindInvalidArgument, "block: key %q is out of order after %q", key, b.lastKey)
	}

	var shared int
	if b.count == 0 || b.sinceRestat >= b.restartInterval {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
		b.sinceRestat = 0
	} else {
		shared = sharedPrefixLen(b.lastKey, key)
	}
	unshared := key[shared:]

	var hdr [binary.MaxVarintLen64 * 3]byte
	n := binary.PutUvarint(hdr[0:], uint64(shared))
	n += binary.PutUvarint(hdr[n:], uint64(len(unshared)))
	n += binary.PutUvarint(hdr[n:], uint64(len(value)))
	b.buf = append(b.buf, hdr[:n]...)
	b.buf = append(b.buf, unshared...)
	b.buf = append(b.buf, value...)

	b.lastKey = append(b.lastKey[:0], key...)
	b.count++
	b.sinceRestat++
	return nil
}

// Finish seals the block: appends the restart array, restart count, and
// the [type][crc32c] trailer (spec.md §3).
func (b *Builder) Finish() []byte {
	payload := append([]byte{}, b.buf...)
	for _, r := range b.restarts {
		payload = appendUint32(payload, r)
	}
	payload = appendUint32(payload, uint32(len(b.restarts)))

	blockType := format.BlockTypeRaw
	out := payload
	if b.compress {
		compressed := snappy.Encode(nil, payload)
		if b.forceCompress || len(compressed) < len(payload) {
			out = compressed
			blockType = format.BlockTypeSnappy
		}
	}

	trailer := make([]byte, format.TrailerLen)
	trailer[0] = byte(blockType)
	crc := crc32.Checksum(append([]byte{byte(blockType)}, out...), castagnoli)
	binary.LittleEndian.PutUint32(trailer[1:], crc)

	result := make([]byte, 0, len(out)+format.TrailerLen)
	result = append(result, out...)
	result = append(result, trailer...)
	return result
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
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

// Entry is one decoded (key, value) pair produced by a Reader.
type Entry struct {
	Key   []byte
	Value []byte
}

// Reader parses a sealed block for point lookups and forward scans.
type Reader struct {
	data     []byte // decompressed payload, excluding restart array/count/trailer
	restarts []uint32
}

// NewReader validates and decodes raw (still-trailered) block bytes.
// verifyChecksum controls whether the CRC is checked (spec.md §4.1,
// driven by the directory-wide verify_checksums option).
func NewReader(raw []byte, verifyChecksum bool) (*Reader, error) {
	if len(raw) < format.TrailerLen {
		return nil, errs.New(errs.KindCorruption, "block: length %d below trailer size %d", len(raw), format.TrailerLen)
	}
	trailerStart := len(raw) - format.TrailerLen
	blockType := format.BlockType(raw[trailerStart])
	storedCRC := binary.LittleEndian.Uint32(raw[trailerStart+1:])
	payload := raw[:trailerStart]

	if verifyChecksum {
		got := crc32.Checksum(append([]byte{byte(blockType)}, payload...), castagnoli)
		if got != storedCRC {
			return nil, errs.New(errs.KindCorruption, "block: checksum mismatch")
		}
	}

	var decoded []byte
	switch blockType {
	case format.BlockTypeRaw:
		decoded = payload
	case format.BlockTypeSnappy:
		var err error
		decoded, err = snappy.Decode(nil, payload)
		if err != nil {
			return nil, errs.Wrap(errs.KindCorruption, err, "block: snappy decode failed")
		}
	default:
		return nil, errs.New(errs.KindCorruption, "block: unknown block type %d", blockType)
	}

	if len(decoded) < 4 {
		return nil, errs.New(errs.KindCorruption, "block: decoded payload too short")
	}
	numRestarts := binary.LittleEndian.Uint32(decoded[len(decoded)-4:])
	restartsEnd := len(decoded) - 4
	restartsStart := restartsEnd - int(numRestarts)*4
	if restartsStart < 0 {
		return nil, errs.New(errs.KindCorruption, "block: restart array overruns payload")
	}
	restarts := make([]uint32, numRestarts)
	for i := range restarts {
		restarts[i] = binary.LittleEndian.Uint32(decoded[restartsStart+i*4:])
	}
	return &Reader{data: decoded[:restartsStart], restarts: restarts}, nil
}

// decodeEntryAt decodes one entry starting at byte offset off, returning
// the entry and the offset immediately following it.
func (r *Reader) decodeEntryAt(off int, prevKey []byte) (Entry, int, error) {
	buf := r.data[off:]
	shared, n1 := binary.Uvarint(buf)
	if n1 <= 0 {
		return Entry{}, 0, errs.New(errs.KindCorruption, "block: bad shared-prefix varint")
	}
	unsharedLen, n2 := binary.Uvarint(buf[n1:])
	if n2 <= 0 {
		return Entry{}, 0, errs.New(errs.KindCorruption, "block: bad unshared-len varint")
	}
	valueLen, n3 := binary.Uvarint(buf[n1+n2:])
	if n3 <= 0 {
		return Entry{}, 0, errs.New(errs.KindCorruption, "block: bad value-len varint")
	}
	hdrLen := n1 + n2 + n3
	keyStart := off + hdrLen
	keyEnd := keyStart + int(unsharedLen)
	valEnd := keyEnd + int(valueLen)
	if valEnd > off+len(buf) {
		return Entry{}, 0, errs.New(errs.KindCorruption, "block: entry overruns block data")
	}
	key := make([]byte, int(shared)+int(unsharedLen))
	copy(key, prevKey[:shared])
	copy(key[shared:], r.data[keyStart:keyEnd])
	value := r.data[keyEnd:valEnd]
	return Entry{Key: key, Value: value}, valEnd, nil
}

// All decodes every entry in the block, in order. Used by tests and by
// callers that want a full round-trip rather than a seek.
func (r *Reader) All() ([]Entry, error) {
	var entries []Entry
	var prevKey []byte
	off := 0
	for off < len(r.data) {
		e, next, err := r.decodeEntryAt(off, prevKey)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		prevKey = e.Key
		off = next
	}
	return entries, nil
}

// Seek returns the first entry with Key >= target, and whether one was
// found. It binary-searches the restart array for the last restart point
// whose stored key is < target (or the first restart point if none is),
// then scans forward from there -
// spec.md §4.1's required access pattern.
func (r *Reader) Seek(target []byte) (Entry, bool, error) {
	if len(r.restarts) == 0 {
		return r.scanFrom(0, nil, target)
	}
	lo, hi := 0, len(r.restarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		e, _, err := r.decodeEntryAt(int(r.restarts[mid]), nil)
		if err != nil {
			return Entry{}, false, err
		}
		if compareBytes(e.Key, target) < 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	start := int(r.restarts[lo])
	// Every restart point encodes shared=0, so prevKey is never consulted
	// decoding the entry at start regardless of which restart lo is.
	return r.scanFrom(start, nil, target)
}

func (r *Reader) scanFrom(off int, prevKey, target []byte) (Entry, bool, error) {
	for off < len(r.data) {
		e, next, err := r.decodeEntryAt(off, prevKey)
		if err != nil {
			return Entry{}, false, err
		}
		if compareBytes(e.Key, target) >= 0 {
			return e, true, nil
		}
		prevKey = e.Key
		off = next
	}
	return Entry{}, false, nil
}
