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
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"redirector/internal/api/handlers"
	"redirector/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// Options configures the dashboard API server
type Options struct {
	Host         string
	Port         int
	AuthUser     string
	AuthPassword string
	ServerID     string
	Campaign     string
	DatabasePath string
}

// Server is the dashboard API: log queries, aggregates and fleet state
type Server struct {
	opts   Options
	engine *gin.Engine
	logger *pterm.Logger
	http   *http.Server
}

// NewServer builds the dashboard router on top of the repositories
func NewServer(
	opts Options,
	logRepo repositories.LogEntryRepository,
	campaignRepo repositories.CampaignRepository,
	statsRepo repositories.StatsRepository,
	serverRepo repositories.ServerRepository,
	logger *pterm.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	logs := handlers.NewLogHandler(logRepo, logger)
	exports := handlers.NewExportHandler(logRepo, logger)
	campaigns := handlers.NewCampaignHandler(campaignRepo, logger)
	stats := handlers.NewStatsHandler(statsRepo, logger)
	servers := handlers.NewServerHandler(serverRepo, logger)
	system := handlers.NewSystemHandler(logRepo, opts.ServerID, opts.Campaign, opts.DatabasePath, logger)

	// The liveness probe stays open so load balancers can reach it
	engine.GET("/api/health", system.Health)

	apiGroup := engine.Group("/api")
	if opts.AuthUser != "" {
		apiGroup.Use(gin.BasicAuth(gin.Accounts{opts.AuthUser: opts.AuthPassword}))
		logger.Info("Dashboard API protected with basic auth", logger.Args("user", opts.AuthUser))
	}

	apiGroup.GET("/system", system.SystemStats)

	apiGroup.GET("/logs", logs.ListLogs)
	apiGroup.GET("/logs/:id", logs.GetLog)
	apiGroup.DELETE("/logs", logs.DeleteLogs)
	apiGroup.GET("/export/csv", exports.ExportCSV)
	apiGroup.GET("/export/jsonl", exports.ExportJSONL)

	apiGroup.GET("/campaigns", campaigns.ListCampaigns)
	apiGroup.POST("/campaigns", campaigns.CreateCampaign)
	apiGroup.DELETE("/campaigns/:id", campaigns.DeleteCampaign)
	apiGroup.GET("/campaign-cards", stats.GetCampaignCards)

	apiGroup.GET("/stats", stats.GetStats)

	apiGroup.GET("/servers", servers.ListServers)
	apiGroup.GET("/servers/active", servers.ListActiveServers)
	apiGroup.GET("/servers/fleet", servers.GetFleetStats)
	apiGroup.POST("/servers/cleanup", servers.CleanupServers)

	return &Server{opts: opts, engine: engine, logger: logger}
}

// Engine exposes the router for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
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
			s.logger.WithCaller().Error("Dashboard API server failed", s.logger.Args("addr", addr, "error", err))
		}
	}()

	s.logger.Info("Dashboard API listening", s.logger.Args("addr", addr))
}

// Shutdown stops accepting connections and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
