package predictor

import (
	"fmt"
	"strings"
	"sync"
)

const (
	// DefaultMarkovOrder and DefaultMarkovDecay mirror
	// modules/OPT_markov.py's Markov_Opt(order=3, decay_factor=0.95).
	DefaultMarkovOrder = 3
	DefaultMarkovDecay = 0.95

	ctxSep = "\x1f"
)

// Markov is the decayed variable-order Markov predictor (spec.md C6),
// grounded on modules/OPT_markov.py. It maintains one successor table per
// observed context length (1..order): logging current builds, for every
// n from 1 up to min(order, len(history-before-current)), the n-gram of
// the n entries immediately preceding current and increments that
// n-gram's weight toward current, decaying every other successor already
// recorded under that same context by decayFactor. Prediction tries the
// longest context first (longest-context-wins, same as the Python
// fallback chain order-3 -> order-2 -> order-1) and falls back to the
// globally most frequently observed path when no context table matches.
type Markov struct {
	hist  *history
	order int
	decay float64

	mu      sync.Mutex
	table   map[string]*orderedCounter
	global  *orderedCounter // fallback: path -> total times observed
	exists  ExistsFunc
}

// NewMarkov constructs a decayed Markov predictor. order < 1 and decay
// outside (0, 1] fall back to the package defaults, mirroring the Python
// constructor's implicit defaults.
func NewMarkov(order int, decay float64, exists ExistsFunc) *Markov {
	if order < 1 {
		order = DefaultMarkovOrder
	}
	if decay <= 0 || decay > 1 {
		decay = DefaultMarkovDecay
	}
	return &Markov{
		hist:   &history{},
		order:  order,
		decay:  decay,
		table:  make(map[string]*orderedCounter),
		global: newOrderedCounter(),
		exists: exists,
	}
}

func joinCtx(ctx []string) string {
	return strings.Join(ctx, ctxSep)
}

func (m *Markov) Log(current string) {
	if !m.hist.logIfNew(current) {
		return
	}
	before := m.hist.snapshotBefore()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.global.add(current, 1)

	maxN := m.order
	if len(before) < maxN {
		maxN = len(before)
	}
	for n := 1; n <= maxN; n++ {
		ctx := before[len(before)-n:]
		key := joinCtx(ctx)
		counter, ok := m.table[key]
		if !ok {
			counter = newOrderedCounter()
			m.table[key] = counter
		}
		counter.add(current, 1)
		counter.decayOthers(current, m.decay)
	}
}

func (m *Markov) Last(otherThan string) (string, bool) {
	return m.hist.last(otherThan)
}

// Predict tries context lengths order, order-1, ..., 1 against the
// sequence formed by history with contextPath appended (unless
// contextPath is already the history tail), returning the heaviest
// existing successor at the first context length that has one. Falls
// back to the globally most frequent existing path.
func (m *Markov) Predict(contextPath string, k int) []string {
	if k <= 0 {
		return nil
	}
	seq := m.hist.snapshot()
	if contextPath != "" {
		if tail, ok := m.hist.last(""); !ok || tail != contextPath {
			seq = append(seq, contextPath)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	working := append([]string{}, seq...)
	for len(out) < k {
		next, ok := m.predictOneLocked(working)
		if !ok {
			break
		}
		out = append(out, next)
		working = append(working, next)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (m *Markov) predictOneLocked(seq []string) (string, bool) {
	for n := m.order; n >= 1; n-- {
		if n > len(seq) {
			continue
		}
		ctx := seq[len(seq)-n:]
		counter, ok := m.table[joinCtx(ctx)]
		if !ok {
			continue
		}
		if next, ok := counter.top(m.exists); ok {
			return next, true
		}
	}
	return m.global.top(m.exists)
}

func (m *Markov) Status() string {
	m.mu.Lock()
	contexts := len(m.table)
	edges := 0
	for _, c := range m.table {
		edges += c.len()
	}
	m.mu.Unlock()
	base := statusLine("markov", m.hist, contexts, edges)
	return fmt.Sprintf("%s order=%d decay=%.2f", base, m.order, m.decay)
}
