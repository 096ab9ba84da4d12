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
package capture

import (
	"sync"
	"sync/atomic"

	"redirector/internal/database/models"
	"redirector/internal/database/repositories"

	"github.com/pterm/pterm"
)

// defaultQueueSize bounds the intake buffer between handlers and the writer
const defaultQueueSize = 1024

// Recorder persists log entries off the request path. Handlers hand entries
// to Enqueue and move on; a single writer goroutine owns the database, so
// the redirect latency never includes a disk write.
type Recorder struct {
	repo   repositories.LogEntryRepository
	logger *pterm.Logger

	intake  chan *models.LogEntry
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewRecorder creates a recorder with the default queue size
func NewRecorder(repo repositories.LogEntryRepository, logger *pterm.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
		intake: make(chan *models.LogEntry, defaultQueueSize),
	}
}

// Start launches the writer goroutine
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.writeLoop()
	r.logger.Debug("Started log recorder", r.logger.Args("queue_size", defaultQueueSize))
}

// Stop drains the queue and waits for the writer to finish. After Stop
// returns every accepted entry is durable; further Enqueue calls are dropped.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.intake)
	r.mu.Unlock()

	r.wg.Wait()

	if dropped := r.dropped.Load(); dropped > 0 {
		r.logger.Warn("Log recorder dropped entries under load", r.logger.Args("dropped", dropped))
	}
	r.logger.Debug("Stopped log recorder")
}

// Enqueue hands an entry to the writer without blocking. When the queue is
// full or the recorder is stopped the entry is dropped and counted; capture
// never fails a redirect over logging.
func (r *Recorder) Enqueue(entry *models.LogEntry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.intake <- entry:
	default:
		r.dropped.Add(1)
		r.logger.Warn("Log queue full, dropping entry", r.logger.Args("campaign", entry.Campaign))
	}
}

// Dropped reports how many entries were discarded since startup
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()

	for entry := range r.intake {
		if err := r.repo.Append(entry); err != nil {
			// Fail open: a broken store must not take the redirector down
			r.logger.WithCaller().Error("Failed to persist log entry",
				r.logger.Args("campaign", entry.Campaign, "error", err))
		}
	}
}
