package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bytesOf(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestLRUEviction(t *testing.T) {
	c := New(300)

	require.True(t, c.Insert("a", bytesOf(100)))
	require.True(t, c.Insert("b", bytesOf(100)))
	require.True(t, c.Insert("c", bytesOf(100)))

	_, ok := c.LookupRange("a", 100, 0)
	require.True(t, ok)

	require.True(t, c.Insert("d", bytesOf(100)))

	total, residents := c.Status()
	assert.EqualValues(t, 300, total)
	assert.ElementsMatch(t, []string{"c", "d", "a"}, residents)
	assert.False(t, c.Contains("b"))
}

func TestBudgetZeroRefusesEverything(t *testing.T) {
	c := New(0)
	assert.False(t, c.Insert("a", []byte("x")))
	_, ok := c.LookupRange("a", 1, 0)
	assert.False(t, ok)
}

func TestFileSizeEqualsBudget(t *testing.T) {
	c := New(100)
	require.True(t, c.Insert("a", bytesOf(100)))
	require.True(t, c.Insert("b", bytesOf(1)))

	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
}

func TestOversizeRefused(t *testing.T) {
	c := New(10)
	assert.False(t, c.Insert("huge", bytesOf(20)))
	total, residents := c.Status()
	assert.Zero(t, total)
	assert.Empty(t, residents)
}

func TestOffsetBeyondLengthReturnsEmpty(t *testing.T) {
	c := New(100)
	require.True(t, c.Insert("a", bytesOf(10)))

	out, ok := c.LookupRange("a", 5, 20)
	require.True(t, ok)
	assert.Empty(t, out)
}

func TestInsertAlreadyResidentIsNoOp(t *testing.T) {
	c := New(100)
	buf := bytesOf(10)
	require.True(t, c.Insert("a", buf))
	total1, _ := c.Status()

	require.True(t, c.Insert("a", bytesOf(10)))
	total2, _ := c.Status()

	assert.Equal(t, total1, total2)
}

func TestLookupRangePartial(t *testing.T) {
	c := New(100)
	require.True(t, c.Insert("a", []byte("hello world")))

	out, ok := c.LookupRange("a", 5, 6)
	require.True(t, ok)
	assert.Equal(t, "world", string(out))
}
