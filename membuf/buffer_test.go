package membuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferAddTracksLenAndBytes(t *testing.T) {
	var b Buffer
	b.Add([]byte("k1"), []byte("v1"))
	b.Add([]byte("k22"), []byte("v22x"))

	require.Equal(t, 2, b.Len())
	require.Equal(t, 2+2+3+4, b.Bytes())
}

func TestBufferAddCopiesInput(t *testing.T) {
	var b Buffer
	key := []byte("k1")
	val := []byte("v1")
	b.Add(key, val)

	key[0] = 'x'
	val[0] = 'y'

	entries := b.Entries()
	require.Equal(t, "k1", string(entries[0].Key))
	require.Equal(t, "v1", string(entries[0].Value))
}

func TestBufferSortIsStableForEqualKeys(t *testing.T) {
	var b Buffer
	b.Add([]byte("k1"), []byte("first"))
	b.Add([]byte("k0"), []byte("only"))
	b.Add([]byte("k1"), []byte("second"))
	b.Add([]byte("k1"), []byte("third"))

	b.Sort()

	entries := b.Entries()
	require.Len(t, entries, 4)
	require.Equal(t, "k0", string(entries[0].Key))
	require.Equal(t, "k1", string(entries[1].Key))
	require.Equal(t, "k1", string(entries[2].Key))
	require.Equal(t, "k1", string(entries[3].Key))
	require.Equal(t, "first", string(entries[1].Value))
	require.Equal(t, "second", string(entries[2].Value))
	require.Equal(t, "third", string(entries[3].Value))
}

func TestBufferIsSorted(t *testing.T) {
	var b Buffer
	b.Add([]byte("k1"), []byte("v1"))
	b.Add([]byte("k2"), []byte("v2"))
	require.True(t, b.IsSorted())

	b.Add([]byte("k0"), []byte("v0"))
	require.False(t, b.IsSorted())
}

func TestBufferIsSortedAllowsEqualAdjacentKeys(t *testing.T) {
	var b Buffer
	b.Add([]byte("k1"), []byte("v1"))
	b.Add([]byte("k1"), []byte("v2"))
	require.True(t, b.IsSorted())
}

func TestBufferReset(t *testing.T) {
	var b Buffer
	b.Add([]byte("k1"), []byte("v1"))
	require.Equal(t, 1, b.Len())

	b.Reset()
	require.Equal(t, 0, b.Len())
	require.Equal(t, 0, b.Bytes())
	require.Empty(t, b.Entries())

	b.Add([]byte("k2"), []byte("v2"))
	require.Equal(t, 1, b.Len())
}
