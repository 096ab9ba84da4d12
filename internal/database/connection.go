// MIT License
//
// # Copyright (c) 2026 Kolin
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
package database

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Path         string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

// SlowQueryLogger logs slow database queries for performance monitoring
type SlowQueryLogger struct {
	logger        *pterm.Logger
	slowThreshold time.Duration
	logLevel      logger.LogLevel
}

func NewSlowQueryLogger(ptermLogger *pterm.Logger, slowThreshold time.Duration) *SlowQueryLogger {
	return &SlowQueryLogger{
		logger:        ptermLogger,
		slowThreshold: slowThreshold,
		logLevel:      logger.Warn,
	}
}

func (l *SlowQueryLogger) LogMode(level logger.LogLevel) logger.Interface {
	l.logLevel = level
	return l
}

func (l *SlowQueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.logger.Info(msg, l.logger.Args("data", data))
	}
}

func (l *SlowQueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.logger.Warn(msg, l.logger.Args("data", data))
	}
}

func (l *SlowQueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.logger.Error(msg, l.logger.Args("data", data))
	}
}

func (l *SlowQueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	if elapsed >= l.slowThreshold {
		l.logger.Debug("SLOW QUERY DETECTED",
			l.logger.Args(
				"duration_ms", elapsed.Milliseconds(),
				"rows", rows,
				"sql", sql,
			))
	} else if l.logLevel >= logger.Info {
		l.logger.Trace("Database query",
			l.logger.Args(
				"duration_ms", elapsed.Milliseconds(),
				"rows", rows,
				"sql", sql,
			))
	}

	// Record-not-found is handled in the repository layer, not worth a log line
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.logger.Error("Database query error",
			l.logger.Args(
				"error", err,
				"duration_ms", elapsed.Milliseconds(),
				"sql", sql,
			))
	}
}

func NewConnection(cfg *Config, logger *pterm.Logger) (*gorm.DB, error) {
	// WAL mode for concurrent readers alongside the capture writer,
	// busy_timeout to ride out momentary writer contention.
	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	_, err := os.Stat(cfg.Path)

	if errors.Is(err, os.ErrPermission) {
		logger.WithCaller().Fatal("Permission denied to access database file.", logger.Args("error", err))
		// Fatal() terminates the program, so no code after this will execute
	}

	logger.Debug("Initializing database with WAL mode.", logger.Args("path", cfg.Path))

	slowQueryLogger := NewSlowQueryLogger(logger, 100*time.Millisecond)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      slowQueryLogger,
	})

	if err != nil {
		logger.WithCaller().Error("Failed to connect to the database.", logger.Args("error", err))
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.WithCaller().Error("Failed to get database instance.", logger.Args("error", err))
		return nil, err
	}

	maxOpenConns := cfg.MaxOpenConns
	maxIdleConns := cfg.MaxIdleConns

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	if maxIdleConns <= 0 {
		maxIdleConns = 10
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLife)

	logger.Debug("Connection pool configured",
		logger.Args(
			"max_open_conns", maxOpenConns,
			"max_idle_conns", maxIdleConns,
			"conn_max_life", cfg.ConnMaxLife,
		))

	logger.Trace("Running database migrations.")
	if err := RunMigrations(db); err != nil {
		logger.WithCaller().Error("Failed to run database migrations.", logger.Args("error", err))
		return nil, err
	}

	logger.Info("Database connection established successfully.")
	return db, nil
}
