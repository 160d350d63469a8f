// Package predictor implements Quark's pluggable access-predictor contract
// (spec.md C4) and its three interchangeable online models: the successor
// graph (C5), the decayed variable-order Markov chain (C6), and the adaptive
// weighted-recency Markov chain (C7).
//
// All three are grounded on modules/OPT_base.py's Base_Opt contract
// (history, last_file_read, log_read, predict_nexts, status_fmt) from the
// Python original, generalized the way internal/utils/safemap.GenericMap
// generalizes the teacher's ad hoc maps into a shared, thread-safe shape.
package predictor

import (
	"fmt"
	"strings"
	"sync"
)

// Predictor is the shared contract every model implements, so C8 (the
// read-path integrator) can treat them interchangeably.
type Predictor interface {
	// Log records an observed access. It appends to history only if path
	// differs from the most recent entry (idempotent on immediate repeats)
	// and updates model state accordingly.
	Log(path string)

	// Last returns the most recent observed access, optionally skipping
	// otherThan by walking history backward until a distinct entry is
	// found. otherThan == "" means no exclusion.
	Last(otherThan string) (string, bool)

	// Predict produces up to k likely-next paths for contextPath (the
	// current history tail if contextPath == ""). Returns nil when the
	// model lacks sufficient evidence. Never logs contextPath itself.
	Predict(contextPath string, k int) []string

	// Status returns a human-readable diagnostic dump.
	Status() string
}

// ExistsFunc reports whether a predicted VirtualPath still exists on the
// backing store. When non-nil, predictions for paths that no longer exist
// are skipped (modules/OPT_markov.py's _file_exists filter, restored per
// SPEC_FULL.md's supplemented-features section). A nil ExistsFunc disables
// the filter.
type ExistsFunc func(path string) bool

// history is the shared, append-only access log every predictor embeds.
// Immediate consecutive repeats collapse (spec.md §3/§8).
type history struct {
	mu  sync.Mutex
	seq []string
}

// logIfNew appends path unless it equals the current tail, returning
// whether it actually appended. Predictors must only update model state
// when this returns true, so two consecutive Log(p) calls leave both
// history and model state identical to one.
func (h *history) logIfNew(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.seq); n > 0 && h.seq[n-1] == path {
		return false
	}
	h.seq = append(h.seq, path)
	return true
}

// snapshot returns a copy of the full history.
func (h *history) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.seq))
	copy(out, h.seq)
	return out
}

// snapshotBefore returns a copy of the history as it stood before the most
// recent append (i.e. excluding the current tail). Used by update rules
// that key on "entries preceding the current access".
func (h *history) snapshotBefore() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.seq) == 0 {
		return nil
	}
	out := make([]string, len(h.seq)-1)
	copy(out, h.seq[:len(h.seq)-1])
	return out
}

// last walks the history backward from the tail, skipping entries equal to
// otherThan ("" excludes nothing), returning the first distinct entry.
func (h *history) last(otherThan string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.seq) - 1; i >= 0; i-- {
		if otherThan == "" || h.seq[i] != otherThan {
			return h.seq[i], true
		}
	}
	return "", false
}

func (h *history) length() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seq)
}

func (h *history) tail5() []string {
	seq := h.snapshot()
	if len(seq) > 5 {
		seq = seq[len(seq)-5:]
	}
	return seq
}

// orderedCounter is a successor -> weight table that preserves insertion
// order, so tie-breaks can favor the earliest-observed successor (spec.md
// C5/C6's tie-break rule). Weights are float64 so the decayed Markov model
// (C6) can share the same structure as the integer-weighted SWG (C5).
type orderedCounter struct {
	order  []string
	weight map[string]float64
}

func newOrderedCounter() *orderedCounter {
	return &orderedCounter{weight: make(map[string]float64)}
}

func (o *orderedCounter) add(key string, delta float64) {
	if _, ok := o.weight[key]; !ok {
		o.order = append(o.order, key)
	}
	o.weight[key] += delta
}

func (o *orderedCounter) decayOthers(except string, factor float64) {
	for _, k := range o.order {
		if k != except {
			o.weight[k] *= factor
		}
	}
}

// top returns the highest-weight successor, restricted to filter when
// non-nil, breaking ties in favor of the earliest-inserted successor.
func (o *orderedCounter) top(filter ExistsFunc) (string, bool) {
	var best string
	var bestW float64
	found := false
	for _, k := range o.order {
		if filter != nil && !filter(k) {
			continue
		}
		w := o.weight[k]
		if !found || w > bestW {
			best, bestW, found = k, w, true
		}
	}
	return best, found
}

func (o *orderedCounter) sum() float64 {
	var s float64
	for _, w := range o.weight {
		s += w
	}
	return s
}

func (o *orderedCounter) len() int {
	return len(o.order)
}

// statusLine formats the common part of every predictor's Status() output:
// its kind, the size of its per-context table, and the last few observed
// accesses (modules/OPT_base.py's status_fmt prints the last 5 of history).
func statusLine(kind string, h *history, contexts, weighted int) string {
	tail := h.tail5()
	return fmt.Sprintf("%s: %d accesses, %d contexts, %d edges, last=[%s]",
		kind, h.length(), contexts, weighted, strings.Join(tail, " -> "))
}

