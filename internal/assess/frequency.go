package assess

import (
	"sort"
	"sync"
	"time"
)

// DefaultCapacity retains one entry more than the default storm threshold.
const DefaultCapacity = 51

// FrequencyLog records recent alert times per activity. On every access
// entries older than the window, measured from the newest entry of the
// activity, are evicted and at most capacity entries are kept. Counts above
// the capacity saturate at capacity+1. Safe for concurrent use.
type FrequencyLog struct {
	mu       sync.Mutex
	window   time.Duration
	capacity int
	entries  map[string][]time.Time
}

// NewFrequencyLog builds a log. A non-positive capacity means DefaultCapacity.
func NewFrequencyLog(window time.Duration, capacity int) *FrequencyLog {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FrequencyLog{
		window:   window,
		capacity: capacity,
		entries:  make(map[string][]time.Time),
	}
}

// Record appends at for activity and returns how many entries fall in
// (at-window, at], the new one included. A late alert always counts itself
// even when it is evicted right away.
func (f *FrequencyLog) Record(activity string, at time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	times := f.entries[activity]
	i := sort.Search(len(times), func(i int) bool { return times[i].After(at) })
	times = append(times, time.Time{})
	copy(times[i+1:], times[i:])
	times[i] = at

	lower := at.Add(-f.window)
	count := 0
	for _, t := range times[:i+1] {
		if t.After(lower) {
			count++
		}
	}

	newest := times[len(times)-1]
	cutoff := sort.Search(len(times), func(i int) bool { return newest.Sub(times[i]) < f.window })
	if keep := len(times) - f.capacity; cutoff < keep {
		cutoff = keep
	}
	f.entries[activity] = append([]time.Time(nil), times[cutoff:]...)

	return count
}

// Len returns the number of retained entries for activity.
func (f *FrequencyLog) Len(activity string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries[activity])
}

func (f *FrequencyLog) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string][]time.Time)
}
