package predictor

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

const (
	// Defaults and clamp ranges mirror
	// modules/OPT_markovadaptive.py's AdaptiveMarkov_Opt constructor.
	DefaultAdaptiveHistoryLength = 5
	DefaultAdaptiveLearningRate  = 0.1
	DefaultAdaptiveDecay         = 0.9

	minHistoryLength, maxHistoryLength = 1, 10
	minLearningRate, maxLearningRate   = 0.01, 1.0
	minDecay, maxDecay                 = 0.5, 0.99
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Adaptive is the adaptive weighted-recency Markov predictor (spec.md C7),
// grounded on modules/OPT_markovadaptive.py. Every log call distributes a
// learning-rate-scaled, recency-decayed increment from each of the last W
// context entries (excluding self-transitions) onto the transition table;
// prediction re-aggregates those same W most recent entries, each scaled a
// second time by how recent it is relative to the query point, and ranks
// candidate destinations by the resulting score.
type Adaptive struct {
	hist         *history
	historyLen   int
	learningRate float64
	decay        float64

	mu          sync.Mutex
	transitions map[string]*orderedCounter

	exists ExistsFunc
}

// NewAdaptive constructs an adaptive predictor. A zero parameter selects
// its package default; the others are clamped to the ranges the Python
// constructor enforces, so out-of-range callers get a usable predictor
// rather than an error.
func NewAdaptive(historyLength int, learningRate, decay float64, exists ExistsFunc) *Adaptive {
	if historyLength == 0 {
		historyLength = DefaultAdaptiveHistoryLength
	}
	if learningRate == 0 {
		learningRate = DefaultAdaptiveLearningRate
	}
	if decay == 0 {
		decay = DefaultAdaptiveDecay
	}
	hl := int(clamp(float64(historyLength), minHistoryLength, maxHistoryLength))
	lr := clamp(learningRate, minLearningRate, maxLearningRate)
	dc := clamp(decay, minDecay, maxDecay)

	return &Adaptive{
		hist:         &history{},
		historyLen:   hl,
		learningRate: lr,
		decay:        dc,
		transitions:  make(map[string]*orderedCounter),
		exists:       exists,
	}
}

func (a *Adaptive) Log(current string) {
	if !a.hist.logIfNew(current) {
		return
	}
	before := a.hist.snapshotBefore()
	if len(before) > a.historyLen {
		before = before[len(before)-a.historyLen:]
	}
	w := len(before)

	a.mu.Lock()
	defer a.mu.Unlock()
	for i, prevFile := range before {
		if prevFile == current {
			continue
		}
		weight := a.learningRate * math.Pow(a.decay, float64(w-1-i))
		counter, ok := a.transitions[prevFile]
		if !ok {
			counter = newOrderedCounter()
			a.transitions[prevFile] = counter
		}
		counter.add(current, weight)
	}
}

func (a *Adaptive) Last(otherThan string) (string, bool) {
	return a.hist.last(otherThan)
}

// Predict sums recency-decayed contributions from each of the last
// historyLen context entries (history, optionally extended by
// contextPath) into a per-destination score, excludes the query point
// itself (self-transition exclusion), and returns the top k destinations
// by score, breaking ties by lexicographically smaller path for
// determinism.
func (a *Adaptive) Predict(contextPath string, k int) []string {
	if k <= 0 {
		return nil
	}
	seq := a.hist.snapshot()
	if contextPath != "" {
		if tail, ok := a.hist.last(""); !ok || tail != contextPath {
			seq = append(seq, contextPath)
		}
	}
	if len(seq) > a.historyLen {
		seq = seq[len(seq)-a.historyLen:]
	}
	w := len(seq)
	if w == 0 {
		return nil
	}
	current := seq[w-1]

	type scored struct {
		path  string
		score float64
	}
	scores := make(map[string]float64)

	a.mu.Lock()
	for i, prevFile := range seq {
		counter, ok := a.transitions[prevFile]
		if !ok {
			continue
		}
		decayFactor := math.Pow(a.decay, float64(w-1-i))
		for _, dest := range counter.order {
			if dest == current {
				continue
			}
			if a.exists != nil && !a.exists(dest) {
				continue
			}
			scores[dest] += counter.weight[dest] * decayFactor
		}
	}
	a.mu.Unlock()

	if len(scores) == 0 {
		return nil
	}
	ranked := make([]scored, 0, len(scores))
	for p, s := range scores {
		ranked = append(ranked, scored{p, s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].path < ranked[j].path
	})
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = ranked[i].path
	}
	return out
}

func (a *Adaptive) Status() string {
	a.mu.Lock()
	sources := len(a.transitions)
	edges := 0
	for _, c := range a.transitions {
		edges += c.len()
	}
	a.mu.Unlock()
	base := statusLine("adaptive-markov", a.hist, sources, edges)
	return fmt.Sprintf("%s window=%d lr=%.3f decay=%.2f", base, a.historyLen, a.learningRate, a.decay)
}
