package table

// Options configures one Logger's block-sealing and compression policy
// (spec.md §4.1/§4.3/§6), mirroring the teacher's options.go flat-struct
// pattern.
type Options struct {
	// BlockSize and BlockUtil together decide when a data block is
	// sealed: once its estimated size reaches BlockSize*BlockUtil.
	BlockSize int
	BlockUtil float64
	// RestartInterval is passed through to block.Builder; <=0 uses
	// block.DefaultRestartInterval.
	RestartInterval int
	// Compress/ForceCompress are passed through to block.Builder.
	Compress      bool
	ForceCompress bool
	// VerifyChecksums is set by directory.OpenLogger from
	// directory.Options.VerifyChecksums; the Logger itself never reads
	// it, since it only writes blocks.
	VerifyChecksums bool
}

func (o Options) sealThreshold() int {
	if o.BlockSize <= 0 {
		return 4096
	}
	util := o.BlockUtil
	if util <= 0 {
		util = 1.0
	}
	return int(float64(o.BlockSize) * util)
}
