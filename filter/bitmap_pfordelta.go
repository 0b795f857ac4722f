package filter

import "encoding/binary"

// PForDeltaBitmapBuilder packs gaps in cohorts of 128 at a per-cohort bit
// width sized to the cohort's largest gap, with a 1-byte header ahead of
// each cohort's packed bits - spec.md §4.2 "PForDelta".
type PForDeltaBitmapBuilder struct{ bitmapBase }

const pforCohortSize = 128

func NewPForDeltaBitmapBuilder(keyBits int) *PForDeltaBitmapBuilder {
	return &PForDeltaBitmapBuilder{bitmapBase{keyBits: keyBits}}
}

func (b *PForDeltaBitmapBuilder) Reset(numKeys int) { b.reset(b.keyBits, numKeys) }
func (b *PForDeltaBitmapBuilder) AddKey(key []byte) { b.addKey(key) }
func (b *PForDeltaBitmapBuilder) ChunkType() Tag    { return TagBitmapPFORDelta }

func bitWidthFor(max uint64) int {
	w := 0
	for max > 0 {
		w++
		max >>= 1
	}
	return w
}

func (b *PForDeltaBitmapBuilder) Finish() []byte {
	sorted := b.sortedUniqueIndices()
	gaps := make([]uint64, len(sorted))
	var prev uint64
	for i, idx := range sorted {
		if i == 0 {
			gaps[i] = idx
		} else {
			gaps[i] = idx - prev
		}
		prev = idx
	}

	var body []byte
	var countHdr [4]byte
	binary.LittleEndian.PutUint32(countHdr[:], uint32(len(gaps)))
	body = append(body, countHdr[:]...)

	for start := 0; start < len(gaps); start += pforCohortSize {
		end := start + pforCohortSize
		if end > len(gaps) {
			end = len(gaps)
		}
		cohort := gaps[start:end]
		var max uint64
		for _, g := range cohort {
			if g > max {
				max = g
			}
		}
		width := bitWidthFor(max)
		body = append(body, byte(width))
		body = append(body, packBits(cohort, width)...)
	}
	return appendBitmapTrailer(body, b.keyBits, TagBitmapPFORDelta)
}

// packBits bit-packs values at a fixed width, LSB-first within each byte.
func packBits(values []uint64, width int) []byte {
	if width == 0 {
		return nil
	}
	totalBits := width * len(values)
	out := make([]byte, (totalBits+7)/8)
	bitPos := 0
	for _, v := range values {
		for b := 0; b < width; b++ {
			if v&(1<<uint(b)) != 0 {
				out[bitPos/8] |= 1 << uint(bitPos%8)
			}
			bitPos++
		}
	}
	return out
}

func unpackBitsAt(data []byte, bitOffset, width int) uint64 {
	var v uint64
	for b := 0; b < width; b++ {
		pos := bitOffset + b
		if data[pos/8]&(1<<uint(pos%8)) != 0 {
			v |= 1 << uint(b)
		}
	}
	return v
}

func pforDeltaTest(target uint64, body []byte) bool {
	if len(body) < 4 {
		return false
	}
	total := int(binary.LittleEndian.Uint32(body))
	off := 4
	var cur uint64
	seen := 0
	first := true
	for seen < total && off < len(body) {
		width := int(body[off])
		off++
		remaining := total - seen
		count := pforCohortSize
		if remaining < count {
			count = remaining
		}
		packedBytes := (width*count + 7) / 8
		packed := body[off : off+packedBytes]
		off += packedBytes
		for i := 0; i < count; i++ {
			gap := unpackBitsAt(packed, i*width, width)
			if first {
				cur = gap
				first = false
			} else {
				cur += gap
			}
			if cur == target {
				return true
			}
			if cur > target {
				return false
			}
		}
		seen += count
	}
	return false
}
