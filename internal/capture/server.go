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
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"redirector/internal/database/models"
	"redirector/internal/enrichment"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// sensitiveHeaders are never written to the log store
var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"x-api-key":     {},
	"x-auth-token":  {},
}

// Options configures the public-facing redirect server
type Options struct {
	Campaign      string
	Host          string
	Port          int
	StoreBody     bool
	MaxBodySize   int64
	TunnelEnabled bool
	TunnelURL     string
}

// Server answers every request on the redirect port with an immediate 302
// and records it. The redirect target can be swapped at runtime without
// dropping connections.
type Server struct {
	opts      Options
	target    atomic.Pointer[string]
	tunnelURL atomic.Pointer[string]
	recorder  *Recorder
	counters  *Counters
	enricher  *enrichment.GeoIPEnricher
	logger    *pterm.Logger
	engine    *gin.Engine
	http      *http.Server
}

// NewServer wires the redirect engine. enricher may be nil.
func NewServer(
	opts Options,
	redirectURL string,
	recorder *Recorder,
	counters *Counters,
	enricher *enrichment.GeoIPEnricher,
	logger *pterm.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		opts:     opts,
		recorder: recorder,
		counters: counters,
		enricher: enricher,
		logger:   logger,
	}
	s.target.Store(&redirectURL)
	s.tunnelURL.Store(&opts.TunnelURL)

	engine := gin.New()
	engine.Use(gin.Recovery())
	// No registered routes: every method on every path falls through here
	engine.NoRoute(s.handleRedirect)
	s.engine = engine

	return s
}

// Engine exposes the router for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Target returns the current redirect destination
func (s *Server) Target() string {
	return *s.target.Load()
}

// SetTarget swaps the redirect destination; in-flight requests keep the old one
func (s *Server) SetTarget(url string) {
	s.target.Store(&url)
	s.logger.Info("Redirect target updated", s.logger.Args("redirect_url", url))
}

// SetTunnelURL records the public tunnel URL once the tunnel is up
func (s *Server) SetTunnelURL(url string) {
	s.tunnelURL.Store(&url)
}

// TunnelURL returns the public tunnel URL, empty when none is known
func (s *Server) TunnelURL() string {
	return *s.tunnelURL.Load()
}

// Start begins serving in the background
func (s *Server) Start() {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithCaller().Error("Redirect server failed", s.logger.Args("addr", addr, "error", err))
		}
	}()

	s.logger.Info("Redirect server listening",
		s.logger.Args("addr", addr, "campaign", s.opts.Campaign, "target", s.Target()))
}

// Shutdown stops accepting connections and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// handleRedirect is the hot path: send the visitor on, then record the visit.
// The entry is built first because the request body must be read before the
// response is written; the connection may discard it once headers flush.
func (s *Server) handleRedirect(c *gin.Context) {
	start := time.Now()
	target := s.Target()

	entry := s.buildEntry(c)

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Redirect(http.StatusFound, target)

	elapsed := time.Since(start)
	s.counters.Record(elapsed)
	entry.ResponseTimeMs = elapsed.Milliseconds()

	s.enricher.Enrich(entry)
	s.recorder.Enqueue(entry)
}

func (s *Server) buildEntry(c *gin.Context) *models.LogEntry {
	req := c.Request

	entry := &models.LogEntry{
		Timestamp:      time.Now().UTC(),
		ClientIP:       transportIP(req.RemoteAddr),
		XForwardedFor:  req.Header.Get("X-Forwarded-For"),
		UserAgent:      req.UserAgent(),
		Method:         req.Method,
		URL:            requestURL(req),
		Path:           req.URL.Path,
		QueryString:    req.URL.RawQuery,
		Referer:        req.Referer(),
		AcceptLanguage: req.Header.Get("Accept-Language"),
		Campaign:       s.opts.Campaign,
		ViaTunnel:      s.viaTunnel(req),
	}

	if err := entry.SetHeaders(safeHeaders(req.Header)); err != nil {
		s.logger.Warn("Failed to serialize request headers", s.logger.Args("error", err))
	}

	if s.opts.StoreBody && req.Body != nil {
		s.captureBody(req, entry)
	}

	return entry
}

// viaTunnel decides whether the request came in through the public tunnel:
// the tunnel must be configured and announced, and the request must carry
// proxy fingerprints a direct hit would not have.
func (s *Server) viaTunnel(req *http.Request) bool {
	if !s.opts.TunnelEnabled || s.TunnelURL() == "" {
		return false
	}
	return req.Header.Get("CF-Ray") != "" ||
		req.Header.Get("CF-IPCountry") != "" ||
		req.Header.Get("X-Forwarded-For") != ""
}

func (s *Server) captureBody(req *http.Request, entry *models.LogEntry) {
	data, err := io.ReadAll(io.LimitReader(req.Body, s.opts.MaxBodySize))
	if err != nil {
		s.logger.Trace("Failed to read request body", s.logger.Args("error", err))
		return
	}
	if len(data) == 0 {
		return
	}

	digest := sha256.Sum256(data)
	entry.BodyDigest = hex.EncodeToString(digest[:])
	entry.BodyContent = base64.StdEncoding.EncodeToString(data)
}

// transportIP strips the port from the connection's remote address. The
// forwarded-for chain is stored separately and never trusted as identity.
func transportIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func requestURL(req *http.Request) string {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + req.Host + req.URL.RequestURI()
}

// safeHeaders flattens the header map, dropping credentials
func safeHeaders(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		if _, blocked := sensitiveHeaders[strings.ToLower(name)]; blocked {
			continue
		}
		result[name] = strings.Join(values, ", ")
	}
	return result
}
