package heartbeat

import (
	"errors"
	"sync"
	"testing"
	"time"

	"redirector/internal/capture"
	"redirector/internal/database/models"
	"redirector/internal/database/repositories"

	"github.com/pterm/pterm"
)

type fakeRegistry struct {
	mu         sync.Mutex
	beats      []repositories.HeartbeatParams
	inactive   []string
	beatErr    error
	markDelay  time.Duration
	markCalled bool
}

func (f *fakeRegistry) Register(repositories.RegisterParams) error { return nil }

func (f *fakeRegistry) Heartbeat(serverID string, params repositories.HeartbeatParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beatErr != nil {
		return f.beatErr
	}
	f.beats = append(f.beats, params)
	return nil
}

func (f *fakeRegistry) MarkInactive(serverID string) error {
	f.mu.Lock()
	f.markCalled = true
	delay := f.markDelay
	f.inactive = append(f.inactive, serverID)
	f.mu.Unlock()
	time.Sleep(delay)
	return nil
}

func (f *fakeRegistry) FindByServerID(string) (*models.ServerInstance, error) {
	return nil, repositories.ErrNotFound
}
func (f *fakeRegistry) ListActive(string) ([]*models.ServerInstance, error) { return nil, nil }
func (f *fakeRegistry) ListAll(bool) ([]*models.ServerInstance, error)      { return nil, nil }
func (f *fakeRegistry) Cleanup(int) (int64, error)                          { return 0, nil }
func (f *fakeRegistry) FleetStats() (*repositories.FleetStats, error)       { return nil, nil }

func testLogger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelFatal)
}

func TestReporter_SendsCounters(t *testing.T) {
	registry := &fakeRegistry{}
	counters := capture.NewCounters()
	counters.Record(2 * time.Millisecond)
	counters.Record(2 * time.Millisecond)

	reporter := NewReporter("srv-1", registry, counters, nil, testLogger())
	reporter.beat()

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if len(registry.beats) != 1 {
		t.Fatalf("Expected 1 heartbeat, got %d", len(registry.beats))
	}

	beat := registry.beats[0]
	if beat.TotalRequests == nil || *beat.TotalRequests != 2 {
		t.Errorf("Expected total 2 in heartbeat, got %v", beat.TotalRequests)
	}
	if beat.AvgResponseTimeMs == nil || *beat.AvgResponseTimeMs <= 0 {
		t.Errorf("Expected positive average response time, got %v", beat.AvgResponseTimeMs)
	}
	if beat.LastRequestAt == nil {
		t.Error("Expected last request timestamp in heartbeat")
	}
	if beat.TunnelURL != nil {
		t.Error("Expected no tunnel URL without a tunnel")
	}
}

func TestReporter_IncludesTunnelURLOnceKnown(t *testing.T) {
	registry := &fakeRegistry{}
	url := ""
	reporter := NewReporter("srv-1", registry, capture.NewCounters(), func() string { return url }, testLogger())

	reporter.beat()
	url = "https://random.trycloudflare.com"
	reporter.beat()

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if len(registry.beats) != 2 {
		t.Fatalf("Expected 2 heartbeats, got %d", len(registry.beats))
	}
	if registry.beats[0].TunnelURL != nil {
		t.Error("Expected first beat without tunnel URL")
	}
	if registry.beats[1].TunnelURL == nil || *registry.beats[1].TunnelURL != url {
		t.Errorf("Expected second beat to carry tunnel URL, got %v", registry.beats[1].TunnelURL)
	}
}

func TestReporter_LoopSurvivesFailures(t *testing.T) {
	registry := &fakeRegistry{beatErr: errors.New("database locked")}
	reporter := NewReporter("srv-1", registry, capture.NewCounters(), nil, testLogger())
	reporter.interval = 5 * time.Millisecond

	reporter.Start()
	time.Sleep(25 * time.Millisecond)

	registry.mu.Lock()
	registry.beatErr = nil
	registry.mu.Unlock()
	time.Sleep(25 * time.Millisecond)

	reporter.Stop()

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if len(registry.beats) == 0 {
		t.Error("Expected heartbeats to resume after failures")
	}
}

func TestReporter_StopMarksInactive(t *testing.T) {
	registry := &fakeRegistry{}
	reporter := NewReporter("srv-1", registry, capture.NewCounters(), nil, testLogger())
	reporter.interval = time.Hour

	reporter.Start()
	reporter.Stop()

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if !registry.markCalled {
		t.Error("Expected Stop to mark the instance inactive")
	}
	if len(registry.inactive) != 1 || registry.inactive[0] != "srv-1" {
		t.Errorf("Expected srv-1 marked inactive, got %v", registry.inactive)
	}
}
