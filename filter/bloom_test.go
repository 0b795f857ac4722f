package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBloomNoFalseNegatives(t *testing.T) {
	keys := make([][]byte, 2000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("bloom-key-%06d", i))
	}

	b := NewBloomBuilder(BitsPerKey(len(keys), 0.01))
	b.Reset(len(keys))
	for _, k := range keys {
		b.AddKey(k)
	}
	payload := b.Finish()

	for _, k := range keys {
		ok, err := KeyMayMatch(TagBloom, k, payload, true)
		require.NoError(t, err)
		require.True(t, ok, "key %s must match", k)
	}
}

func TestBloomFalsePositiveRateIsLow(t *testing.T) {
	keys := make([][]byte, 5000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("present-%06d", i))
	}
	b := NewBloomBuilder(BitsPerKey(len(keys), 0.01))
	b.Reset(len(keys))
	for _, k := range keys {
		b.AddKey(k)
	}
	payload := b.Finish()

	falsePositives := 0
	trials := 5000
	for i := 0; i < trials; i++ {
		k := []byte(fmt.Sprintf("absent-%06d", i))
		ok, err := KeyMayMatch(TagBloom, k, payload, true)
		require.NoError(t, err)
		if ok {
			falsePositives++
		}
	}
	require.Less(t, falsePositives, trials/10) // well under a 10% rate
}
