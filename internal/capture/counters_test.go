package capture

import (
	"sync"
	"testing"
	"time"
)

func TestCounters_RecordAndTotal(t *testing.T) {
	counters := NewCounters()

	if counters.Total() != 0 {
		t.Errorf("Expected 0 before any request, got %d", counters.Total())
	}
	if counters.LastRequestAt() != nil {
		t.Error("Expected nil last request before any request")
	}

	counters.Record(2 * time.Millisecond)
	counters.Record(4 * time.Millisecond)

	if counters.Total() != 2 {
		t.Errorf("Expected total 2, got %d", counters.Total())
	}
	if counters.LastRequestAt() == nil {
		t.Error("Expected last request to be set")
	}
}

func TestCounters_AvgResponseTime(t *testing.T) {
	counters := NewCounters()

	if counters.AvgResponseTimeMs() != 0 {
		t.Errorf("Expected 0 average with no samples, got %v", counters.AvgResponseTimeMs())
	}

	counters.Record(2 * time.Millisecond)
	counters.Record(4 * time.Millisecond)

	avg := counters.AvgResponseTimeMs()
	if avg < 2.9 || avg > 3.1 {
		t.Errorf("Expected average near 3ms, got %v", avg)
	}
}

func TestCounters_AvgResponseTime_WindowCaps(t *testing.T) {
	counters := NewCounters()

	// Fill the window with slow samples, then overwrite it with fast ones
	for i := 0; i < sampleWindow; i++ {
		counters.Record(100 * time.Millisecond)
	}
	for i := 0; i < sampleWindow; i++ {
		counters.Record(1 * time.Millisecond)
	}

	avg := counters.AvgResponseTimeMs()
	if avg > 2 {
		t.Errorf("Expected old samples to age out of the window, got average %v", avg)
	}
}

func TestCounters_RequestsPerMinute_ZeroInFirstMinute(t *testing.T) {
	counters := NewCounters()
	counters.Record(time.Millisecond)

	if rpm := counters.RequestsPerMinute(); rpm != 0 {
		t.Errorf("Expected 0 rpm before a full minute has elapsed, got %d", rpm)
	}
}

func TestCounters_RequestsPerMinute_WholeMinutes(t *testing.T) {
	counters := NewCounters()
	counters.startedAt = time.Now().UTC().Add(-150 * time.Second) // 2 whole minutes

	for i := 0; i < 10; i++ {
		counters.Record(time.Millisecond)
	}

	if rpm := counters.RequestsPerMinute(); rpm != 5 {
		t.Errorf("Expected 10 requests over 2 minutes to give 5 rpm, got %d", rpm)
	}
}

func TestCounters_ConcurrentRecord(t *testing.T) {
	counters := NewCounters()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				counters.Record(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if counters.Total() != 1000 {
		t.Errorf("Expected 1000 recorded requests, got %d", counters.Total())
	}
}
