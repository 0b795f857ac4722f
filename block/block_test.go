package block

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"ftlog/errs"
)

func sortedEntries(n int) []Entry {
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = Entry{Key: []byte(fmt.Sprintf("k%05d", i)), Value: []byte(fmt.Sprintf("v%05d", i))}
	}
	return out
}

func TestBuilderReaderRoundTrip(t *testing.T) {
	entries := sortedEntries(130)
	b := NewBuilder(16, false, false)
	for _, e := range entries {
		require.NoError(t, b.Add(e.Key, e.Value))
	}
	raw := b.Finish()

	r, err := NewReader(raw, true)
	require.NoError(t, err)
	got, err := r.All()
	require.NoError(t, err)
	require.Len(t, got, len(entries))
	for i := range entries {
		require.Equal(t, entries[i].Key, got[i].Key)
		require.Equal(t, entries[i].Value, got[i].Value)
	}
}

func TestBuilderReaderRoundTripSnappy(t *testing.T) {
	entries := sortedEntries(200)
	b := NewBuilder(16, true, true)
	for _, e := range entries {
		require.NoError(t, b.Add(e.Key, e.Value))
	}
	raw := b.Finish()
	require.Equal(t, byte(1), raw[len(raw)-5]) // BlockTypeSnappy

	r, err := NewReader(raw, true)
	require.NoError(t, err)
	got, err := r.All()
	require.NoError(t, err)
	require.Len(t, got, len(entries))
}

func TestSeekFindsFirstKeyGreaterOrEqual(t *testing.T) {
	entries := sortedEntries(100)
	b := NewBuilder(8, false, false)
	for _, e := range entries {
		require.NoError(t, b.Add(e.Key, e.Value))
	}
	raw := b.Finish()
	r, err := NewReader(raw, true)
	require.NoError(t, err)

	e, ok, err := r.Seek([]byte("k00042"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "k00042", string(e.Key))

	_, ok, err = r.Seek([]byte("zzzzz"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSeekWithinFirstRestartInterval(t *testing.T) {
	entries := sortedEntries(100)
	b := NewBuilder(8, false, false)
	for _, e := range entries {
		require.NoError(t, b.Add(e.Key, e.Value))
	}
	raw := b.Finish()
	r, err := NewReader(raw, true)
	require.NoError(t, err)

	e, ok, err := r.Seek([]byte("k00003"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "k00003", string(e.Key))

	e, ok, err = r.Seek([]byte("k00000"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "k00000", string(e.Key))
}

func TestOutOfOrderAddRejected(t *testing.T) {
	b := NewBuilder(16, false, false)
	require.NoError(t, b.Add([]byte("b"), []byte("1")))
	err := b.Add([]byte("a"), []byte("2"))
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errs.KindInvalidArgument, kind)
}

func TestCorruptedBlockFailsChecksum(t *testing.T) {
	b := NewBuilder(16, false, false)
	require.NoError(t, b.Add([]byte("a"), []byte("1")))
	require.NoError(t, b.Add([]byte("b"), []byte("2")))
	raw := b.Finish()
	raw[0] ^= 0xFF

	_, err := NewReader(raw, true)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errs.KindCorruption, kind)
}

func TestTooShortBlockIsCorruption(t *testing.T) {
	_, err := NewReader([]byte{1, 2, 3}, true)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errs.KindCorruption, kind)
}
