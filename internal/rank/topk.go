// Package rank maintains bounded top-K result sets and running aggregate
// statistics over a stream of scored records.
package rank

import (
	"container/heap"
	"math"
	"sort"

	"github.com/fleetscore/ratesheet-cli/internal/model"
)

// tieWindow is the score distance within which two records are treated as
// tied and ordered by the secondary keys instead.
const tieWindow = 1.0

// entry is one scored record held in a bounded set, with the keys needed
// for finalization ordering.
type entry[T any] struct {
	score     float64
	insurance *float64 // informational insurance component, may be nil
	monthly   float64
	seq       int // arrival order, keeps finalization deterministic
	payload   T
}

// topK is a bounded min-heap on score: when the set is full, a higher
// scoring arrival evicts the single lowest entry in O(log K). The final
// contents match the reference push-then-evict-minimum policy.
type topK[T any] struct {
	capacity int
	entries  []entry[T]
}

func (h *topK[T]) Len() int { return len(h.entries) }

func (h *topK[T]) Less(i, j int) bool {
	if h.entries[i].score != h.entries[j].score {
		return h.entries[i].score < h.entries[j].score
	}
	// Among equal scores the newest arrival is evicted first.
	return h.entries[i].seq > h.entries[j].seq
}

func (h *topK[T]) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }

func (h *topK[T]) Push(x any) { h.entries = append(h.entries, x.(entry[T])) }

func (h *topK[T]) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	h.entries = old[:n-1]
	return e
}

func (h *topK[T]) add(e entry[T]) {
	if h.capacity <= 0 {
		return
	}
	heap.Push(h, e)
	if len(h.entries) > h.capacity {
		heap.Pop(h)
	}
}

// finalize drains the heap into descending order with the three-level
// tie-break: score (treating scores within tieWindow as tied), then
// insurance component descending, then monthly payment ascending. The
// ordering decides which of several near-identical deals a user sees
// first, so it must not drift.
func (h *topK[T]) finalize() []T {
	items := make([]entry[T], len(h.entries))
	copy(items, h.entries)

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if math.Abs(a.score-b.score) >= tieWindow {
			return a.score > b.score
		}
		ia, ib := insuranceKey(a.insurance), insuranceKey(b.insurance)
		if ia != ib {
			return ia > ib
		}
		if a.monthly != b.monthly {
			return a.monthly < b.monthly
		}
		return a.seq < b.seq
	})

	out := make([]T, len(items))
	for i, e := range items {
		out[i] = e.payload
	}
	return out
}

// insuranceKey orders a missing insurance component below any known one.
func insuranceKey(v *float64) float64 {
	if v == nil {
		return -1
	}
	return *v
}

// Stats accumulates running aggregates over every observed score,
// independent of whether the record entered either bounded set.
type Stats struct {
	TotalVehicles int
	TopScore      float64
	Distribution  model.ScoreDistribution

	scoreSum float64
}

// Mean returns the average observed score, or 0 with no observations.
func (s *Stats) Mean() float64 {
	if s.TotalVehicles == 0 {
		return 0
	}
	return s.scoreSum / float64(s.TotalVehicles)
}

func (s *Stats) observe(score float64) {
	s.TotalVehicles++
	s.scoreSum += score
	if score > s.TopScore {
		s.TopScore = score
	}
	switch {
	case score >= 90:
		s.Distribution.Exceptional++
	case score >= 70:
		s.Distribution.Excellent++
	case score >= 50:
		s.Distribution.Good++
	case score >= 30:
		s.Distribution.Fair++
	default:
		s.Distribution.Poor++
	}
}

// Aggregator maintains the two bounded result sets (full deals and the
// lightweight projection) plus running stats for one analysis run. Not safe
// for concurrent use; each run owns its own Aggregator.
type Aggregator struct {
	deals     *topK[model.ScoredDeal]
	light     *topK[model.LightDeal]
	stats     Stats
	seq       int
	finalized bool
}

// NewAggregator creates an Aggregator with the given set capacities.
func NewAggregator(dealCap, lightCap int) *Aggregator {
	return &Aggregator{
		deals: &topK[model.ScoredDeal]{capacity: dealCap},
		light: &topK[model.LightDeal]{capacity: lightCap},
	}
}

// Observe records one scored row. Stats update unconditionally; the bounded
// sets keep the row only if it beats their current minimum. Calls after
// Finalize are no-ops.
func (a *Aggregator) Observe(deal model.ScoredDeal, light model.LightDeal) {
	if a.finalized {
		return
	}
	a.seq++
	a.stats.observe(deal.Score)

	a.deals.add(entry[model.ScoredDeal]{
		score:     deal.Score,
		insurance: deal.Breakdown.Components.Insurance,
		monthly:   deal.Breakdown.Inputs.MonthlyPayment,
		seq:       a.seq,
		payload:   deal,
	})
	a.light.add(entry[model.LightDeal]{
		score:     light.Score,
		insurance: deal.Breakdown.Components.Insurance,
		monthly:   light.MonthlyPayment,
		seq:       a.seq,
		payload:   light,
	})
}

// Finalize sorts and truncates both result sets and returns them with the
// accumulated stats. The sets are immutable afterwards.
func (a *Aggregator) Finalize() ([]model.ScoredDeal, []model.LightDeal, Stats) {
	a.finalized = true
	return a.deals.finalize(), a.light.finalize(), a.stats
}
