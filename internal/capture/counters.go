package capture

import (
	"sync"
	"sync/atomic"
	"time"
)

// sampleWindow caps how many response-time samples feed the rolling average
const sampleWindow = 100

// Counters tracks in-process traffic totals for one redirect instance.
// All methods are safe for concurrent use from request handlers.
type Counters struct {
	startedAt   time.Time
	total       atomic.Int64
	lastRequest atomic.Int64 // unix nanos, 0 = never

	mu      sync.Mutex
	samples []float64 // response times in ms, ring of sampleWindow
	next    int
	filled  bool
}

// NewCounters creates counters anchored at now
func NewCounters() *Counters {
	return &Counters{
		startedAt: time.Now().UTC(),
		samples:   make([]float64, sampleWindow),
	}
}

// Record accounts for one handled request
func (c *Counters) Record(responseTime time.Duration) {
	c.total.Add(1)
	c.lastRequest.Store(time.Now().UTC().UnixNano())

	c.mu.Lock()
	c.samples[c.next] = float64(responseTime.Microseconds()) / 1000.0
	c.next++
	if c.next == sampleWindow {
		c.next = 0
		c.filled = true
	}
	c.mu.Unlock()
}

// Total returns the number of requests handled since startup
func (c *Counters) Total() int64 {
	return c.total.Load()
}

// LastRequestAt returns when the most recent request arrived, nil if none
func (c *Counters) LastRequestAt() *time.Time {
	nanos := c.lastRequest.Load()
	if nanos == 0 {
		return nil
	}
	ts := time.Unix(0, nanos).UTC()
	return &ts
}

// RequestsPerMinute divides the total by the whole minutes elapsed since
// startup. During the first minute it reports 0 rather than extrapolating.
func (c *Counters) RequestsPerMinute() int64 {
	minutes := int64(time.Since(c.startedAt).Minutes())
	if minutes <= 0 {
		return 0
	}
	return c.total.Load() / minutes
}

// AvgResponseTimeMs averages the most recent response-time samples
func (c *Counters) AvgResponseTimeMs() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.next
	if c.filled {
		n = sampleWindow
	}
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += c.samples[i]
	}
	return sum / float64(n)
}
