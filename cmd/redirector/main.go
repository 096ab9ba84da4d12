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
	"os"

	"redirector/internal/version"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "redirector",
	Short:   "Instant 302 redirects with per-campaign request logging",
	Long:    "Redirector answers every request with an immediate 302 to a configured target\nwhile logging who knocked, grouped by campaign. A dashboard API over the same\ndatabase serves search, stats and fleet state.",
	Version: version.Version,
}

func init() {
	rootCmd.AddCommand(runCmd, configCmd, statsCmd)
}

// newLogger builds the process logger at the configured level
func newLogger(level string) *pterm.Logger {
	logLevel := pterm.LogLevelInfo
	switch level {
	case "trace":
		logLevel = pterm.LogLevelTrace
	case "debug":
		logLevel = pterm.LogLevelDebug
	case "warn":
		logLevel = pterm.LogLevelWarn
	case "error":
		logLevel = pterm.LogLevelError
	}
	return pterm.DefaultLogger.WithLevel(logLevel)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
