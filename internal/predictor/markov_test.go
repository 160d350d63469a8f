package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkovOrderThreeFallbackChain(t *testing.T) {
	m := NewMarkov(3, 0.95, nil)

	m.Log("x")
	m.Log("y")
	m.Log("z")
	m.Log("w")

	// Context z is appended after the history tail w, so the 3-gram
	// (z, w, z) and the 2-gram (w, z) were never recorded; the chain falls
	// back to the 1-gram (z), which learned z -> w when w was logged.
	got := m.Predict("z", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "w", got[0])
}

func TestMarkovFallsBackToShorterContext(t *testing.T) {
	m := NewMarkov(3, 0.95, nil)

	m.Log("x")
	m.Log("y")
	m.Log("z")
	m.Log("w")
	// New, never-seen-as-a-trigram context ending in z: the 3-gram and
	// 2-gram tables have no entry for this exact suffix, but the 1-gram
	// table (context "z" alone) does, from the w transition above.
	m.Log("q")
	m.Log("r")
	m.Log("z")

	got := m.Predict("z", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "w", got[0])
}

func TestMarkovDecaysCompetingSuccessors(t *testing.T) {
	m := NewMarkov(1, 0.5, nil)

	m.Log("a")
	m.Log("b") // ctx(a) -> b: 1
	m.Log("a")
	m.Log("c") // ctx(a) -> c: 1, decays b's weight under ctx(a) to 0.5
	m.Log("a")
	m.Log("c") // ctx(a) -> c: 2, decays b again to 0.25

	got := m.Predict("a", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0])
}

func TestMarkovGlobalFrequencyFallback(t *testing.T) {
	m := NewMarkov(3, 0.95, nil)

	m.Log("a")
	m.Log("popular")
	m.Log("b")
	m.Log("popular")
	m.Log("c")
	m.Log("popular")

	// "never-seen" has no context table at all; fall back to the globally
	// most frequently observed path.
	got := m.Predict("never-seen", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "popular", got[0])
}

func TestMarkovExistsFilterSkipsDeletedFile(t *testing.T) {
	exists := func(p string) bool { return p != "w" }
	m := NewMarkov(3, 0.95, exists)

	m.Log("x")
	m.Log("y")
	m.Log("z")
	m.Log("w")
	m.Log("z")
	m.Log("w")
	m.Log("z")
	m.Log("v")

	// ctx(z) prefers w (2, decayed to 1.9 when v was logged) over v (1),
	// but w no longer exists; v is the only remaining existing candidate.
	got := m.Predict("z", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "v", got[0])
}

func TestMarkovLogIdempotentOnImmediateRepeat(t *testing.T) {
	m := NewMarkov(3, 0.95, nil)
	m.Log("a")
	m.Log("b")
	m.Log("b")
	m.Log("b")

	got := m.Predict("a", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0])
}
