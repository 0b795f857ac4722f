// Package format encodes the on-disk primitives shared by every layer of
// the store: block handles (offset/size pairs, varint-encoded) and the
// fixed-size directory footer (spec.md §4.7, §6). The teacher serializes
// its equivalent index structures through a generated protobuf package
// (kvdb/pb); spec.md instead mandates a literal fixed-offset byte layout
// for the footer, so this package hand-rolls the varint encoding using the
// same helpers style the teacher applies to lengths elsewhere
// (utils/file.go's Uint32ToBytes/Bytes2Uint32), generalized to uvarint.
package format

import (
	"encoding/binary"
	"hash/crc32"

	"ftlog/errs"
)

// Castagnoli is the CRC table every checksummed payload in this module
// uses, matching the teacher's utils/const.go#CastagnoliCrcTable.
var Castagnoli = crc32.MakeTable(crc32.Castagnoli)

// FooterLen is the fixed size of the trailer written at the end of every
// index log (spec.md §4.7/§6): root handle (zero-padded varints),
// mode byte, filter-format byte, one reserved byte, zero padding up to
// the last 8 bytes, u64 magic.
const FooterLen = 48

// rootHandleFieldLen is how many bytes of Footer are reserved for the
// root block handle's two varints, zero-padded.
const rootHandleFieldLen = 20

// Magic identifies a valid footer. A mismatch is a fatal Corruption error
// on read (spec.md §6).
const Magic uint64 = 0xfeed5a7ab1e00001

// BlockHandle locates a block inside a log file: an (offset, size) pair,
// the glossary's "Block handle".
type BlockHandle struct {
	Offset uint64
	Size   uint64
}

// EncodeTo appends the varint-encoded handle to buf and returns the
// result.
func (h BlockHandle) EncodeTo(buf []byte) []byte {
	buf = appendUvarint(buf, h.Offset)
	buf = appendUvarint(buf, h.Size)
	return buf
}

// DecodeBlockHandle reads a varint-encoded handle from buf, returning the
// handle and the number of bytes consumed.
func DecodeBlockHandle(buf []byte) (BlockHandle, int, error) {
	off, n1 := binary.Uvarint(buf)
	if n1 <= 0 {
		return BlockHandle{}, 0, errs.New(errs.KindCorruption, "format: truncated block handle offset")
	}
	sz, n2 := binary.Uvarint(buf[n1:])
	if n2 <= 0 {
		return BlockHandle{}, 0, errs.New(errs.KindCorruption, "format: truncated block handle size")
	}
	return BlockHandle{Offset: off, Size: sz}, n1 + n2, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// Footer is the fixed-size record at the end of the index log
// (spec.md §4.7): root_handle, padding, mode, filter_format, reserved,
// magic.
type Footer struct {
	Root         BlockHandle
	Mode         byte
	FilterFormat byte
}

// Encode renders the footer to its fixed FooterLen-byte representation.
func (f Footer) Encode() []byte {
	buf := make([]byte, FooterLen)
	encoded := f.Root.EncodeTo(nil)
	if len(encoded) > rootHandleFieldLen {
		panic("format: root handle does not fit in footer")
	}
	copy(buf[:rootHandleFieldLen], encoded)
	buf[rootHandleFieldLen] = f.Mode
	buf[rootHandleFieldLen+1] = f.FilterFormat
	// buf[rootHandleFieldLen+2] is the single reserved byte, left zero.
	binary.LittleEndian.PutUint64(buf[FooterLen-8:], Magic)
	return buf
}

// DecodeFooter parses a FooterLen-byte buffer, verifying the magic number.
func DecodeFooter(buf []byte) (Footer, error) {
	if len(buf) != FooterLen {
		return Footer{}, errs.New(errs.KindCorruption, "format: footer has length %d, want %d", len(buf), FooterLen)
	}
	magic := binary.LittleEndian.Uint64(buf[FooterLen-8:])
	if magic != Magic {
		return Footer{}, errs.New(errs.KindCorruption, "format: bad magic %x", magic)
	}
	root, _, err := DecodeBlockHandle(buf[:rootHandleFieldLen])
	if err != nil {
		return Footer{}, err
	}
	return Footer{
		Root:         root,
		Mode:         buf[rootHandleFieldLen],
		FilterFormat: buf[rootHandleFieldLen+1],
	}, nil
}

// BlockType occupies the first byte of every data/index/meta-index/root
// block trailer (spec.md §6). Filter blocks use the same trailer byte for
// their filter.Tag instead (see WrapTrailer), so the byte alone does not
// tell a filter block from a data block; the caller knows which kind it
// loaded from the handle it followed. BlockTypeFilter is not written by
// any block writer in this module.
type BlockType byte

const (
	BlockTypeRaw    BlockType = 0
	BlockTypeSnappy BlockType = 1
	BlockTypeFilter BlockType = 2
)

// WrapTrailer appends the shared [u8 type][u32 crc32c] trailer to payload.
// Filter blocks reuse this instead of block.Builder's restart-array
// trailer since a filter has no entries to restart-point - the type byte
// there is the filter's own chunk tag rather than raw/snappy
// (spec.md §6 "the filter tag occupies the same byte").
func WrapTrailer(typ byte, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+TrailerLen)
	out = append(out, payload...)
	crc := crc32.Checksum(append([]byte{typ}, payload...), Castagnoli)
	out = append(out, typ)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	out = append(out, crcBuf[:]...)
	return out
}

// UnwrapTrailer splits a WrapTrailer payload back into its type byte and
// body, verifying the checksum when verify is set.
func UnwrapTrailer(raw []byte, verify bool) (typ byte, payload []byte, err error) {
	if len(raw) < TrailerLen {
		return 0, nil, errs.New(errs.KindCorruption, "format: trailer-wrapped block shorter than %d bytes", TrailerLen)
	}
	trailerStart := len(raw) - TrailerLen
	typ = raw[trailerStart]
	payload = raw[:trailerStart]
	if verify {
		storedCRC := binary.LittleEndian.Uint32(raw[trailerStart+1:])
		got := crc32.Checksum(append([]byte{typ}, payload...), Castagnoli)
		if got != storedCRC {
			return 0, nil, errs.New(errs.KindCorruption, "format: trailer-wrapped block checksum mismatch")
		}
	}
	return typ, payload, nil
}

// TableHandle locates one sorted table: its key range and the handles of
// its index block and (optional) filter block (spec.md §3's
// TableHandle{smallest_key, largest_key, index_handle, filter_handle}).
type TableHandle struct {
	Smallest     []byte
	Largest      []byte
	IndexHandle  BlockHandle
	HasFilter    bool
	FilterHandle BlockHandle
}

// EncodeTo appends the varint-length-prefixed key pair, the index handle,
// a has-filter byte, and the filter handle.
func (h TableHandle) EncodeTo(buf []byte) []byte {
	buf = appendUvarint(buf, uint64(len(h.Smallest)))
	buf = append(buf, h.Smallest...)
	buf = appendUvarint(buf, uint64(len(h.Largest)))
	buf = append(buf, h.Largest...)
	buf = h.IndexHandle.EncodeTo(buf)
	if h.HasFilter {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = h.FilterHandle.EncodeTo(buf)
	return buf
}

// DecodeTableHandle is the inverse of EncodeTo.
func DecodeTableHandle(buf []byte) (TableHandle, error) {
	smallestLen, n, err := readUvarintField(buf, "smallest length")
	if err != nil {
		return TableHandle{}, err
	}
	buf = buf[n:]
	if uint64(len(buf)) < smallestLen {
		return TableHandle{}, errs.New(errs.KindCorruption, "format: truncated table handle smallest key")
	}
	smallest := append([]byte{}, buf[:smallestLen]...)
	buf = buf[smallestLen:]

	largestLen, n, err := readUvarintField(buf, "largest length")
	if err != nil {
		return TableHandle{}, err
	}
	buf = buf[n:]
	if uint64(len(buf)) < largestLen {
		return TableHandle{}, errs.New(errs.KindCorruption, "format: truncated table handle largest key")
	}
	largest := append([]byte{}, buf[:largestLen]...)
	buf = buf[largestLen:]

	indexHandle, n, err := DecodeBlockHandle(buf)
	if err != nil {
		return TableHandle{}, err
	}
	buf = buf[n:]

	if len(buf) < 1 {
		return TableHandle{}, errs.New(errs.KindCorruption, "format: truncated table handle has-filter byte")
	}
	hasFilter := buf[0] != 0
	buf = buf[1:]

	filterHandle, _, err := DecodeBlockHandle(buf)
	if err != nil {
		return TableHandle{}, err
	}

	return TableHandle{
		Smallest:     smallest,
		Largest:      largest,
		IndexHandle:  indexHandle,
		HasFilter:    hasFilter,
		FilterHandle: filterHandle,
	}, nil
}

func readUvarintField(buf []byte, what string) (uint64, int, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, errs.New(errs.KindCorruption, "format: bad table handle %s varint", what)
	}
	return v, n, nil
}

// TrailerLen is the minimum legal block length (type byte + CRC), per
// spec.md §3 "Minimum block length = 5 bytes (trailer)".
const TrailerLen = 5
