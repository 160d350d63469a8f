package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptiveAggregatesAcrossWindow(t *testing.T) {
	a := NewAdaptive(5, 0.5, 0.9, nil)

	a.Log("a")
	a.Log("b")
	a.Log("c")
	a.Log("d")

	// "d" itself has no outgoing transitions yet, but the rest of the
	// window (a, b, c) all learned a link toward each other's successors;
	// "c" accumulates contributions from both a->c and b->c, outscoring
	// "b" which only accumulates from a->b.
	got := a.Predict("d", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0])
}

func TestAdaptiveEmptyModelReturnsNil(t *testing.T) {
	a := NewAdaptive(5, 0.5, 0.9, nil)
	a.Log("solo")
	assert.Nil(t, a.Predict("solo", 1))
}

func TestAdaptiveExcludesSelfTransition(t *testing.T) {
	a := NewAdaptive(3, 0.5, 0.9, nil)

	a.Log("a")
	a.Log("b")
	a.Log("a")

	// Querying from "a" must never predict "a" itself even though "a"
	// appears in its own recent window.
	got := a.Predict("a", 5)
	for _, p := range got {
		assert.NotEqual(t, "a", p)
	}
}

func TestAdaptiveClampsOutOfRangeParameters(t *testing.T) {
	a := NewAdaptive(100, 5.0, 0.0, nil)
	assert.Equal(t, maxHistoryLength, a.historyLen)
	assert.Equal(t, maxLearningRate, a.learningRate)
	assert.Equal(t, DefaultAdaptiveDecay, a.decay)
}

func TestAdaptiveRanksByAccumulatedWeight(t *testing.T) {
	a := NewAdaptive(5, 0.5, 0.9, nil)

	for i := 0; i < 3; i++ {
		a.Log("x")
		a.Log("hot")
	}
	a.Log("x")
	a.Log("cold")

	got := a.Predict("x", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "hot", got[0])
}

func TestAdaptiveExistsFilterSkipsMissing(t *testing.T) {
	exists := func(p string) bool { return p != "hot" }
	a := NewAdaptive(5, 0.5, 0.9, exists)

	for i := 0; i < 3; i++ {
		a.Log("x")
		a.Log("hot")
	}
	a.Log("x")
	a.Log("cold")

	got := a.Predict("x", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "cold", got[0])
}

func TestAdaptiveLogIdempotentOnImmediateRepeat(t *testing.T) {
	a := NewAdaptive(5, 0.5, 0.9, nil)
	a.Log("x")
	a.Log("hot")
	a.Log("hot")
	a.Log("hot")

	got := a.Predict("x", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "hot", got[0])
}
