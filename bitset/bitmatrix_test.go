package bitset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetGetRoundTrip(t *testing.T) {
	m := New(200, 3)

	m.Set(0, 0)
	m.Set(63, 0)
	m.Set(64, 0)
	m.Set(199, 2)

	assert.True(t, m.Get(0, 0))
	assert.True(t, m.Get(63, 0))
	assert.True(t, m.Get(64, 0))
	assert.True(t, m.Get(199, 2))

	assert.False(t, m.Get(1, 0))
	assert.False(t, m.Get(0, 1))
	assert.False(t, m.Get(199, 1))
}

func TestNewIsZeroed(t *testing.T) {
	m := New(128, 2)
	for r := 0; r < 128; r++ {
		for tr := 0; tr < 2; tr++ {
			assert.False(t, m.Get(r, tr))
		}
	}
}

func TestNewFromWordsPreservesBits(t *testing.T) {
	orig := New(70, 2)
	orig.Set(0, 0)
	orig.Set(69, 1)

	wrapped := NewFromWords(orig.Words(), 70, 2)
	assert.True(t, wrapped.Get(0, 0))
	assert.True(t, wrapped.Get(69, 1))
	assert.False(t, wrapped.Get(1, 0))
	assert.Equal(t, 70, wrapped.NRow())
	assert.Equal(t, 2, wrapped.NTree())
}
