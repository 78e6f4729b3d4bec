package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTabuTenureEvictsOldest(t *testing.T) {
	tb := NewTabu(2, 0)
	tb.Add(1, 0)
	tb.Add(2, 1)
	assert.True(t, tb.Contains(1, 1))
	tb.Add(3, 2)
	assert.False(t, tb.Contains(1, 2))
	assert.True(t, tb.Contains(2, 2))
	assert.True(t, tb.Contains(3, 2))
	assert.Equal(t, 2, tb.Len())
}

func TestTabuDuplicateEntries(t *testing.T) {
	tb := NewTabu(2, 0)
	tb.Add(7, 0)
	tb.Add(7, 1)
	tb.Add(8, 2)
	// one copy of 7 is still inside the window
	assert.True(t, tb.Contains(7, 2))
	tb.Add(9, 3)
	assert.False(t, tb.Contains(7, 3))
}

func TestTabuHorizon(t *testing.T) {
	tb := NewTabu(100, 5)
	tb.Add(1, 0)
	tb.Add(2, 4)
	assert.True(t, tb.Contains(1, 5))
	assert.False(t, tb.Contains(1, 6))
	assert.True(t, tb.Contains(2, 6))
	assert.Equal(t, 1, tb.Len())
}

func TestTabuMinimumTenure(t *testing.T) {
	tb := NewTabu(0, 0)
	tb.Add(1, 0)
	tb.Add(2, 0)
	assert.False(t, tb.Contains(1, 0))
	assert.True(t, tb.Contains(2, 0))
}
