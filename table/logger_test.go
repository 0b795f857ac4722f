package table

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ftlog/block"
	"ftlog/format"
	"ftlog/logio"
)

func newTestSinks(t *testing.T) (dataSink, indexSink *logio.Sink, indexPath string) {
	dir := t.TempDir()
	indexPath = filepath.Join(dir, "0.idx")
	dataSink, err := logio.NewSink(logio.OSFilesystem{}, filepath.Join(dir, "0.dat"), 64)
	require.NoError(t, err)
	indexSink, err = logio.NewSink(logio.OSFilesystem{}, indexPath, 64)
	require.NoError(t, err)
	return dataSink, indexSink, indexPath
}

func TestLoggerSingleTableManyBlocksSealsCleanly(t *testing.T) {
	dataSink, indexSink, _ := newTestSinks(t)
	logger := NewLogger(Options{BlockSize: 64, BlockUtil: 0.9}, dataSink, indexSink)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key%04d", i))
		val := []byte(fmt.Sprintf("val%04d", i))
		require.NoError(t, logger.Add(key, val))
	}
	require.NoError(t, logger.EndBlock())
	require.NoError(t, logger.EndTable(nil, 0))
	require.NoError(t, logger.MakeEpoch())
	require.NoError(t, logger.Finish(0, 0))
	require.NoError(t, dataSink.Close())
	require.NoError(t, indexSink.Close())
	require.NoError(t, logger.Err())
}

func TestLoggerRejectsOutOfOrderKeys(t *testing.T) {
	dataSink, indexSink, _ := newTestSinks(t)
	logger := NewLogger(Options{BlockSize: 4096, BlockUtil: 0.9}, dataSink, indexSink)

	require.NoError(t, logger.Add([]byte("b"), []byte("1")))
	err := logger.Add([]byte("a"), []byte("2"))
	require.Error(t, err)
	// Once latched, subsequent operations are no-ops returning the same
	// error (spec.md §4.3's failure contract).
	require.Equal(t, err, logger.Add([]byte("c"), []byte("3")))
}

func TestLoggerFooterRootHandleResolvesToSealedTable(t *testing.T) {
	dataSink, indexSink, indexPath := newTestSinks(t)
	logger := NewLogger(Options{BlockSize: 4096, BlockUtil: 0.9}, dataSink, indexSink)

	require.NoError(t, logger.Add([]byte("k1"), []byte("v1")))
	require.NoError(t, logger.Add([]byte("k2"), []byte("v2")))
	require.NoError(t, logger.EndBlock())
	require.NoError(t, logger.EndTable(nil, 0))
	require.NoError(t, logger.MakeEpoch())
	require.NoError(t, logger.Finish(0, 0))
	require.NoError(t, dataSink.Close())
	require.NoError(t, indexSink.Close())

	data, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), format.FooterLen)

	footer, err := format.DecodeFooter(data[len(data)-format.FooterLen:])
	require.NoError(t, err)

	rootRaw := data[footer.Root.Offset : footer.Root.Offset+footer.Root.Size]
	rootBlock, err := block.NewReader(rootRaw, true)
	require.NoError(t, err)
	rootEntries, err := rootBlock.All()
	require.NoError(t, err)
	require.Len(t, rootEntries, 1)

	metaHandle, _, err := format.DecodeBlockHandle(rootEntries[0].Value)
	require.NoError(t, err)
	metaRaw := data[metaHandle.Offset : metaHandle.Offset+metaHandle.Size]
	metaBlock, err := block.NewReader(metaRaw, true)
	require.NoError(t, err)
	metaEntries, err := metaBlock.All()
	require.NoError(t, err)
	require.Len(t, metaEntries, 1)
	require.Equal(t, "k2", string(metaEntries[0].Key))
}
