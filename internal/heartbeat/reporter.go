// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package heartbeat

import (
	"sync"
	"time"

	"redirector/internal/capture"
	"redirector/internal/database/repositories"

	"github.com/pterm/pterm"
)

const (
	// DefaultInterval keeps instances well inside the two-minute liveness window
	DefaultInterval = 30 * time.Second
	// shutdownTimeout bounds the final status update on Stop
	shutdownTimeout = 5 * time.Second
)

// Reporter periodically pushes this instance's counters into the shared
// registry so dashboards attached to the same database see it as alive.
// A failed beat is logged and retried on the next tick; the registry being
// briefly unreachable never affects redirect traffic.
type Reporter struct {
	serverID  string
	repo      repositories.ServerRepository
	counters  *capture.Counters
	tunnelURL func() string
	logger    *pterm.Logger
	interval  time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewReporter creates a reporter beating at the default interval.
// tunnelURL is polled each beat and may return "" until the tunnel is up.
func NewReporter(
	serverID string,
	repo repositories.ServerRepository,
	counters *capture.Counters,
	tunnelURL func() string,
	logger *pterm.Logger,
) *Reporter {
	return &Reporter{
		serverID:  serverID,
		repo:      repo,
		counters:  counters,
		tunnelURL: tunnelURL,
		logger:    logger,
		interval:  DefaultInterval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the heartbeat loop
func (r *Reporter) Start() {
	r.wg.Add(1)
	go r.beatLoop()
	r.logger.Debug("Started heartbeat reporter",
		r.logger.Args("server_id", r.serverID, "interval", r.interval.String()))
}

// Stop halts the loop and marks this instance inactive so dashboards show
// the shutdown immediately instead of waiting out the staleness window.
func (r *Reporter) Stop() {
	close(r.stopChan)
	r.wg.Wait()

	done := make(chan error, 1)
	go func() {
		done <- r.repo.MarkInactive(r.serverID)
	}()
	select {
	case err := <-done:
		if err != nil {
			r.logger.Warn("Failed to mark instance inactive on shutdown",
				r.logger.Args("server_id", r.serverID, "error", err))
		}
	case <-time.After(shutdownTimeout):
		r.logger.Warn("Timed out marking instance inactive on shutdown",
			r.logger.Args("server_id", r.serverID))
	}

	r.logger.Debug("Stopped heartbeat reporter", r.logger.Args("server_id", r.serverID))
}

func (r *Reporter) beatLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.beat()
		case <-r.stopChan:
			return
		}
	}
}

// beat sends one snapshot of the counters
func (r *Reporter) beat() {
	total := r.counters.Total()
	rpm := r.counters.RequestsPerMinute()
	avg := r.counters.AvgResponseTimeMs()

	params := repositories.HeartbeatParams{
		TotalRequests:     &total,
		RequestsPerMinute: &rpm,
		AvgResponseTimeMs: &avg,
		LastRequestAt:     r.counters.LastRequestAt(),
	}
	if r.tunnelURL != nil {
		if url := r.tunnelURL(); url != "" {
			params.TunnelURL = &url
		}
	}

	if err := r.repo.Heartbeat(r.serverID, params); err != nil {
		r.logger.Warn("Heartbeat failed, will retry",
			r.logger.Args("server_id", r.serverID, "error", err))
		return
	}

	r.logger.Trace("Heartbeat sent",
		r.logger.Args("server_id", r.serverID, "total_requests", total, "rpm", rpm))
}
