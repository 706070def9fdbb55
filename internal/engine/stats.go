package engine

import (
	"sync"

	"github.com/emirozbir/micro-triage/internal/models"
	"github.com/emirozbir/micro-triage/internal/scoring"
)

// statsAccumulator keeps running score statistics without retaining alerts.
type statsAccumulator struct {
	mu    sync.Mutex
	count int
	sum   int
	min   int
	max   int
	tiers map[string]int
}

func newStatsAccumulator() *statsAccumulator {
	return &statsAccumulator{tiers: make(map[string]int)}
}

func (s *statsAccumulator) add(scores ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, score := range scores {
		if s.count == 0 || score < s.min {
			s.min = score
		}
		if s.count == 0 || score > s.max {
			s.max = score
		}
		s.count++
		s.sum += score
		s.tiers[scoring.Priority(score)]++
	}
}

func (s *statsAccumulator) snapshot() models.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.Statistics{
		TotalProcessed: s.count,
		MinScore:       s.min,
		MaxScore:       s.max,
		HighPriority:   s.tiers["high"],
		MediumPriority: s.tiers["medium"],
		LowPriority:    s.tiers["low"],
	}
	if s.count > 0 {
		stats.AvgScore = float64(s.sum) / float64(s.count)
	}
	return stats
}

func (s *statsAccumulator) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count, s.sum, s.min, s.max = 0, 0, 0, 0
	s.tiers = make(map[string]int)
}
