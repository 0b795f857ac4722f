package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCuckooNoFalseNegativesWhenNotEvicted(t *testing.T) {
	keys := make([][]byte, 1000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("cuckoo-key-%06d", i))
	}

	opt := DefaultCuckooOptions()
	opt.Frac = 0.5 // generous headroom keeps the victim set empty
	b := NewCuckooBuilder(opt)
	b.Reset(len(keys))
	for _, k := range keys {
		b.AddKey(k)
	}
	require.Empty(t, b.victims, "low load factor should avoid eviction spillover")

	payload := b.Finish()
	for _, k := range keys {
		ok, err := KeyMayMatch(TagCuckoo, k, payload, true)
		require.NoError(t, err)
		require.True(t, ok, "key %s must match", k)
	}
}

func TestCuckooHandlesVictimSpillover(t *testing.T) {
	keys := make([][]byte, 4000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("dense-%06d", i))
	}
	opt := DefaultCuckooOptions()
	opt.Frac = 0.98
	opt.MaxMoves = 50
	b := NewCuckooBuilder(opt)
	b.Reset(len(keys))
	for _, k := range keys {
		b.AddKey(k)
	}
	payload := b.Finish()

	matched := 0
	for _, k := range keys {
		ok, err := KeyMayMatch(TagCuckoo, k, payload, true)
		require.NoError(t, err)
		if ok {
			matched++
		}
	}
	// Even under pressure, the victim set should recover all but a
	// vanishingly small fraction.
	require.Greater(t, matched, len(keys)-len(keys)/20)
}
