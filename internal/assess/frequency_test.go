package assess

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrequencyLogCountsTrailingWindow(t *testing.T) {
	log := NewFrequencyLog(5*time.Minute, 0)
	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, log.Record("a", base))
	assert.Equal(t, 2, log.Record("a", base.Add(4*time.Minute)))
	// exactly one window after the first entry: the first one falls out
	assert.Equal(t, 2, log.Record("a", base.Add(5*time.Minute)))
	assert.Equal(t, 2, log.Len("a"))
}

func TestFrequencyLogOutOfOrderEntries(t *testing.T) {
	log := NewFrequencyLog(5*time.Minute, 0)
	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	log.Record("a", base.Add(3*time.Minute))
	log.Record("a", base.Add(4*time.Minute))

	// an older alert only counts entries up to its own time
	assert.Equal(t, 1, log.Record("a", base))
}

func TestFrequencyLogEvictsOldEntries(t *testing.T) {
	log := NewFrequencyLog(time.Minute, 0)
	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		log.Record("a", base.Add(time.Duration(i)*time.Second))
	}

	assert.LessOrEqual(t, log.Len("a"), 60)

	log.Reset()
	assert.Equal(t, 0, log.Len("a"))
}

func TestFrequencyLogConcurrentRecord(t *testing.T) {
	log := NewFrequencyLog(time.Hour, 0)
	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			log.Record("a", base.Add(time.Duration(i)*time.Millisecond))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, log.Len("a"))
	assert.Equal(t, 51, log.Record("a", base.Add(time.Second)))
}

func TestFrequencyLogBoundsIdenticalTimestamps(t *testing.T) {
	log := NewFrequencyLog(5*time.Minute, 51)
	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	var count int
	for i := 0; i < 200; i++ {
		count = log.Record("a", base)
	}

	assert.Equal(t, 51, log.Len("a"))
	assert.Equal(t, 52, count)
	assert.Greater(t, count, 50)
}

func TestFrequencyLogLateAlertCountsItself(t *testing.T) {
	log := NewFrequencyLog(5*time.Minute, 0)
	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	log.Record("a", base.Add(10*time.Minute))

	assert.Equal(t, 1, log.Record("a", base))
	assert.Equal(t, 1, log.Len("a"))
}

func TestFrequencyLogDefaultCapacity(t *testing.T) {
	log := NewFrequencyLog(time.Hour, 0)
	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		log.Record("a", base.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, DefaultCapacity, log.Len("a"))
}
