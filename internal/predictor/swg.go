package predictor

import "sync"

// SWG is the successor-weighted-graph predictor (spec.md C5), grounded on
// modules/OPT_swg.py's SWG_Opt: a directed graph where every observed
// transition prev -> current increments an edge weight, and prediction
// follows the heaviest outgoing edge from the query node.
type SWG struct {
	hist *history

	mu    sync.Mutex
	graph map[string]*orderedCounter

	exists ExistsFunc
}

// NewSWG constructs an empty successor graph. exists may be nil to disable
// the existence filter.
func NewSWG(exists ExistsFunc) *SWG {
	return &SWG{
		hist:   &history{},
		graph:  make(map[string]*orderedCounter),
		exists: exists,
	}
}

func (s *SWG) Log(current string) {
	if !s.hist.logIfNew(current) {
		return
	}
	prev, ok := s.hist.last(current)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	edges, ok := s.graph[prev]
	if !ok {
		edges = newOrderedCounter()
		s.graph[prev] = edges
	}
	edges.add(current, 1)
}

func (s *SWG) Last(otherThan string) (string, bool) {
	return s.hist.last(otherThan)
}

// Predict walks the successor graph from contextPath (or the history tail
// when contextPath == ""), following the heaviest outgoing edge at each
// step to build up to k predictions. Stops early once an edge goes silent.
func (s *SWG) Predict(contextPath string, k int) []string {
	if k <= 0 {
		return nil
	}
	cur, ok := s.effectiveContext(contextPath)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for i := 0; i < k; i++ {
		edges, ok := s.graph[cur]
		if !ok {
			break
		}
		next, ok := edges.top(s.exists)
		if !ok {
			break
		}
		out = append(out, next)
		cur = next
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *SWG) effectiveContext(contextPath string) (string, bool) {
	if contextPath != "" {
		return contextPath, true
	}
	return s.hist.last("")
}

func (s *SWG) Status() string {
	s.mu.Lock()
	nodes := len(s.graph)
	edges := 0
	for _, e := range s.graph {
		edges += e.len()
	}
	s.mu.Unlock()
	return statusLine("swg", s.hist, nodes, edges)
}
