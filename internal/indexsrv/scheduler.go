package indexsrv

// scheduler.go implements MISS-recompute placement: the default policy
// picks the node that would also supply most of the parts for the in-flight
// puzzle, to maximize locality; fallback is round-robin over registered
// nodes.

import (
	"sync/atomic"

	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

// Scheduler picks which node should service a MISS recompute.
type Scheduler interface {
	Name() string
	Pick(nodes []NodeRef, partial cachecore.IndexQueryResponse) NodeRef
}

// LocalityScheduler prefers the node supplying the most parts of a partial
// puzzle response; falls back to round-robin when there's no partial
// context (a pure miss) or no parts are remote.
type LocalityScheduler struct {
	fallback *RoundRobinScheduler
}

// NewLocalityScheduler constructs the default scheduler.
func NewLocalityScheduler() *LocalityScheduler {
	return &LocalityScheduler{fallback: NewRoundRobinScheduler()}
}

func (s *LocalityScheduler) Name() string { return "locality" }

func (s *LocalityScheduler) Pick(nodes []NodeRef, partial cachecore.IndexQueryResponse) NodeRef {
	if len(nodes) == 0 {
		return NodeRef{}
	}
	counts := make(map[string]int)
	for _, p := range partial.Puzzle.Parts {
		if p.Remote == nil {
			continue
		}
		counts[p.Remote.Primary.Host]++
		for _, alt := range p.Remote.Alternates {
			counts[alt.Host]++
		}
	}
	if len(counts) == 0 {
		return s.fallback.Pick(nodes, partial)
	}

	best := nodes[0]
	bestCount := -1
	for _, n := range nodes {
		if c := counts[n.Host]; c > bestCount {
			best = n
			bestCount = c
		}
	}
	return best
}

// RoundRobinScheduler cycles through registered nodes in order, the
// fallback policy.
type RoundRobinScheduler struct {
	next atomic.Uint64
}

// NewRoundRobinScheduler constructs a round-robin scheduler.
func NewRoundRobinScheduler() *RoundRobinScheduler { return &RoundRobinScheduler{} }

func (s *RoundRobinScheduler) Name() string { return "round-robin" }

func (s *RoundRobinScheduler) Pick(nodes []NodeRef, _ cachecore.IndexQueryResponse) NodeRef {
	if len(nodes) == 0 {
		return NodeRef{}
	}
	i := s.next.Add(1) - 1
	return nodes[i%uint64(len(nodes))]
}

// SchedulerByName resolves a configured scheduler name
// (indexserver.scheduler).
func SchedulerByName(name string) Scheduler {
	switch name {
	case "round-robin", "roundrobin":
		return NewRoundRobinScheduler()
	default:
		return NewLocalityScheduler()
	}
}
