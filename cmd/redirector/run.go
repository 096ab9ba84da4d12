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
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"redirector/internal/api"
	"redirector/internal/banner"
	"redirector/internal/capture"
	"redirector/internal/config"
	"redirector/internal/database"
	"redirector/internal/database/repositories"
	"redirector/internal/enrichment"
	"redirector/internal/heartbeat"
	"redirector/internal/version"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the redirect server and dashboard API",
	RunE:  runServer,
}

func init() {
	flags := runCmd.Flags()
	flags.String("config", "config.yaml", "path to the YAML config file")
	flags.String("url", "", "redirect target, overrides the config file")
	flags.Int("port", 0, "redirect port, overrides the config file")
	flags.Int("dashboard-port", 0, "dashboard API port, overrides the config file")
	flags.String("campaign", "", "campaign name, overrides the config file")
	flags.String("db", "", "SQLite database path, overrides the config file")
	flags.Bool("store-body", false, "capture request bodies")
	flags.String("auth", "", "dashboard basic auth as user:password")
	flags.String("host", "", "bind address")
	flags.String("log-level", "", "trace, debug, info, warn or error")
}

// loadRunConfig merges the config file with explicit flag overrides
func loadRunConfig(cmd *cobra.Command) (*config.Config, string, error) {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")

	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
	} else if flags.Changed("config") {
		return nil, "", fmt.Errorf("config file %s not found", configPath)
	} else {
		configPath = ""
	}

	if flags.Changed("url") {
		cfg.RedirectURL, _ = flags.GetString("url")
	}
	if flags.Changed("port") {
		cfg.RedirectPort, _ = flags.GetInt("port")
	}
	if flags.Changed("dashboard-port") {
		cfg.DashboardPort, _ = flags.GetInt("dashboard-port")
	}
	if flags.Changed("campaign") {
		cfg.Campaign, _ = flags.GetString("campaign")
	}
	if flags.Changed("db") {
		cfg.DatabasePath, _ = flags.GetString("db")
	}
	if flags.Changed("store-body") {
		cfg.StoreBody, _ = flags.GetBool("store-body")
	}
	if flags.Changed("auth") {
		cfg.DashboardAuth, _ = flags.GetString("auth")
	}
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, configPath, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	banner.Print()

	cfg, configPath, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("Starting redirector",
		logger.Args("campaign", cfg.Campaign, "target", cfg.RedirectURL, "version", version.Version))

	db, err := database.NewConnection(&database.Config{Path: cfg.DatabasePath}, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	logRepo := repositories.NewLogEntryRepository(db, logger)
	campaignRepo := repositories.NewCampaignRepository(db, logger)
	statsRepo := repositories.NewStatsRepository(db, logger)
	serverRepo := repositories.NewServerRepository(db, logger)

	if err := campaignRepo.EnsureExists(cfg.Campaign, ""); err != nil {
		return fmt.Errorf("ensure campaign: %w", err)
	}

	// Registry membership is best effort: a full disk or locked database
	// must not keep the redirect port from coming up
	serverID := uuid.NewString()
	hostname, _ := os.Hostname()
	err = serverRepo.Register(repositories.RegisterParams{
		ServerID:      serverID,
		Campaign:      cfg.Campaign,
		RedirectURL:   cfg.RedirectURL,
		RedirectPort:  cfg.RedirectPort,
		DashboardPort: cfg.DashboardPort,
		Host:          hostname,
		ProcessID:     os.Getpid(),
		TunnelEnabled: cfg.Tunnel,
		TunnelURL:     cfg.TunnelURL,
		Version:       version.Version,
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
	})
	if err != nil {
		logger.Warn("Failed to register in the server registry, continuing",
			logger.Args("server_id", serverID, "error", err))
	}

	enricher := enrichment.NewGeoIPEnricher(cfg.GeoIPCityDB, cfg.GeoIPCountryDB, logger, 0)
	defer enricher.Close()

	counters := capture.NewCounters()
	recorder := capture.NewRecorder(logRepo, logger)
	recorder.Start()

	captureServer := capture.NewServer(capture.Options{
		Campaign:      cfg.Campaign,
		Host:          cfg.Host,
		Port:          cfg.RedirectPort,
		StoreBody:     cfg.StoreBody,
		MaxBodySize:   cfg.MaxBodySize,
		TunnelEnabled: cfg.Tunnel,
		TunnelURL:     cfg.TunnelURL,
	}, cfg.RedirectURL, recorder, counters, enricher, logger)
	captureServer.Start()

	reporter := heartbeat.NewReporter(serverID, serverRepo, counters, captureServer.TunnelURL, logger)
	reporter.Start()

	apiServer := api.NewServer(api.Options{
		Host:         cfg.Host,
		Port:         cfg.DashboardPort,
		AuthUser:     cfg.AuthUser(),
		AuthPassword: cfg.AuthPassword(),
		ServerID:     serverID,
		Campaign:     cfg.Campaign,
		DatabasePath: cfg.DatabasePath,
	}, logRepo, campaignRepo, statsRepo, serverRepo, logger)
	apiServer.Start()

	var watcher *config.Watcher
	if configPath != "" {
		watcher, err = config.NewWatcher(configPath, captureServer.SetTarget, logger)
		if err != nil {
			logger.Warn("Config hot reload unavailable", logger.Args("error", err))
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutting down", logger.Args("signal", sig.String()))

	if watcher != nil {
		watcher.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := captureServer.Shutdown(ctx); err != nil {
		logger.Warn("Redirect server shutdown incomplete", logger.Args("error", err))
	}
	reporter.Stop()
	recorder.Stop()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Warn("Dashboard API shutdown incomplete", logger.Args("error", err))
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("Shutdown complete", logger.Args("total_requests", counters.Total()))
	return nil
}
