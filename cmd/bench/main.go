// Command bench is the CLI/benchmark harness spec.md §6 keeps outside
// the core: --bench=io exercises the write+read path end to end,
// --bench=bf exercises filter build+probe throughput in isolation. Tuning
// comes from FT_TYPE/BF_BITS/BM_KEY_BITS environment variables, matching
// the original benchmark's env-var dispatch (spec.md §6/§9) - but with
// explicit string equality instead of the original's strcmp-as-bool bug
// (spec.md §9's first Open Question).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"ftlog/directory"
	"ftlog/filter"
	"ftlog/workpool"
)

func main() {
	bench := flag.String("bench", "io", "benchmark to run: io|bf")
	numKeys := flag.Int("n", 100000, "number of keys")
	flag.Parse()

	switch *bench {
	case "io":
		runIOBench(*numKeys)
	case "bf":
		runFilterBench(*numKeys)
	default:
		log.Fatalf("bench: unknown --bench=%s (want io|bf)", *bench)
	}
}

// filterTagFromEnv reads FT_TYPE and maps it to a filter.Tag by explicit
// equality - never by truthiness of a comparison function's return value.
func filterTagFromEnv() (filter.Tag, bool) {
	switch os.Getenv("FT_TYPE") {
	case "bloom":
		return filter.TagBloom, true
	case "bitmap_uncompressed":
		return filter.TagBitmapUncompressed, true
	case "bitmap_varint":
		return filter.TagBitmapVarint, true
	case "bitmap_varintplus":
		return filter.TagBitmapVarintPlus, true
	case "bitmap_pfordelta":
		return filter.TagBitmapPFORDelta, true
	case "bitmap_roaring":
		return filter.TagBitmapRoaring, true
	case "bitmap_partitioned_roaring":
		return filter.TagBitmapPartitionedRoaring, true
	case "cuckoo":
		return filter.TagCuckoo, true
	default:
		return filter.TagBloom, false
	}
}

func intFromEnv(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func runIOBench(n int) {
	dir, err := os.MkdirTemp("", "ftlog-bench-io")
	if err != nil {
		log.Fatalf("bench: %v", err)
	}
	defer os.RemoveAll(dir)

	tag, explicit := filterTagFromEnv()
	opts := directory.Options{
		Dir:       dir,
		BlockSize: 4096,
		BlockUtil: 0.9,
		Mode:      directory.ModeMultiMap,
		Filter:    explicit,
		FilterTag: tag,
		BFBitsPerKey:     intFromEnv("BF_BITS", 10),
		FilterBitsPerKey: intFromEnv("BF_BITS", 16),
		BMKeyBits:        intFromEnv("BM_KEY_BITS", 20),
		Pool:             workpool.NewBounded(4),
	}

	logger, err := directory.OpenLogger(opts)
	if err != nil {
		log.Fatalf("bench: open writer: %v", err)
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%08d", i))
		val := []byte(fmt.Sprintf("v%08d", i))
		if err := logger.Add(key, val); err != nil {
			log.Fatalf("bench: add: %v", err)
		}
	}
	if err := logger.Flush(directory.FlushOptions{EpochFlush: true, Finalize: true}); err != nil {
		log.Fatalf("bench: flush: %v", err)
	}
	writeElapsed := time.Since(start)
	logger.Close()

	reader, err := directory.OpenReader(opts)
	if err != nil {
		log.Fatalf("bench: open reader: %v", err)
	}
	defer reader.Close()

	start = time.Now()
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%08d", i))
		if _, err := reader.Read(key); err != nil {
			log.Fatalf("bench: read: %v", err)
		}
	}
	readElapsed := time.Since(start)

	fmt.Printf("io: n=%d write=%s (%.0f/s) read=%s (%.0f/s)\n",
		n, writeElapsed, float64(n)/writeElapsed.Seconds(),
		readElapsed, float64(n)/readElapsed.Seconds())
}

func runFilterBench(n int) {
	tag, _ := filterTagFromEnv()
	bmKeyBits := intFromEnv("BM_KEY_BITS", 20)
	bfBits := intFromEnv("BF_BITS", 10)

	var builder filter.Builder
	switch tag {
	case filter.TagBloom:
		builder = filter.NewBloomBuilder(bfBits)
	case filter.TagBitmapUncompressed:
		builder = filter.NewUncompressedBitmapBuilder(bmKeyBits)
	case filter.TagBitmapVarint:
		builder = filter.NewVarintBitmapBuilder(bmKeyBits)
	case filter.TagBitmapVarintPlus:
		builder = filter.NewVarintPlusBitmapBuilder(bmKeyBits)
	case filter.TagBitmapPFORDelta:
		builder = filter.NewPForDeltaBitmapBuilder(bmKeyBits)
	case filter.TagBitmapRoaring:
		builder = filter.NewRoaringBitmapBuilder(bmKeyBits)
	case filter.TagBitmapPartitionedRoaring:
		builder = filter.NewPartitionedRoaringBitmapBuilder(bmKeyBits)
	case filter.TagCuckoo:
		builder = filter.NewCuckooBuilder(filter.DefaultCuckooOptions())
	default:
		builder = filter.NewBloomBuilder(bfBits)
	}

	builder.Reset(n)
	start := time.Now()
	for i := 0; i < n; i++ {
		builder.AddKey([]byte(fmt.Sprintf("k%08d", i)))
	}
	buildElapsed := time.Since(start)
	payload := builder.Finish()

	start = time.Now()
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%08d", i))
		if _, err := filter.KeyMayMatch(builder.ChunkType(), key, payload, true); err != nil {
			log.Fatalf("bench: probe: %v", err)
		}
	}
	probeElapsed := time.Since(start)

	fmt.Printf("bf: tag=%d n=%d bytes=%d build=%s (%.0f/s) probe=%s (%.0f/s)\n",
		builder.ChunkType(), n, len(payload),
		buildElapsed, float64(n)/buildElapsed.Seconds(),
		probeElapsed, float64(n)/probeElapsed.Seconds())
}
