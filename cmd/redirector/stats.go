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
	"fmt"
	"strconv"
	"time"

	"redirector/internal/database"
	"redirector/internal/database/repositories"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print traffic and fleet stats from the database",
	RunE:  showStats,
}

func init() {
	flags := statsCmd.Flags()
	flags.String("db", "logs.db", "SQLite database path")
	flags.String("campaign", "", "scope to one campaign, empty for all")
}

func showStats(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	campaign, _ := cmd.Flags().GetString("campaign")

	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelWarn)
	db, err := database.NewConnection(&database.Config{Path: dbPath}, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	statsRepo := repositories.NewStatsRepository(db, logger)
	serverRepo := repositories.NewServerRepository(db, logger)

	stats, err := statsRepo.CampaignStats(campaign)
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}

	scope := campaign
	if scope == "" {
		scope = "all campaigns"
	}
	pterm.DefaultSection.Printfln("Traffic (%s)", scope)
	pterm.Printfln("Total requests:  %d", stats.TotalRequests)
	pterm.Printfln("Last 24 hours:   %d", stats.RecentRequests)

	if len(stats.Methods) > 0 {
		rows := pterm.TableData{{"Method", "Count"}}
		for _, m := range stats.Methods {
			rows = append(rows, []string{m.Method, strconv.FormatInt(m.Count, 10)})
		}
		pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	}

	if len(stats.TopUserAgents) > 0 {
		pterm.DefaultSection.Println("Top user agents")
		rows := pterm.TableData{{"User agent", "Count"}}
		for _, ua := range stats.TopUserAgents {
			agent := ua.UserAgent
			if len(agent) > 70 {
				agent = agent[:67] + "..."
			}
			rows = append(rows, []string{agent, strconv.FormatInt(ua.Count, 10)})
		}
		pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	}

	fleet, err := serverRepo.FleetStats()
	if err != nil {
		return fmt.Errorf("compute fleet stats: %w", err)
	}
	pterm.DefaultSection.Println("Fleet")
	pterm.Printfln("Active servers:  %d", fleet.ActiveServers)
	pterm.Printfln("Seen last hour:  %d", fleet.RecentServers)
	pterm.Printfln("Total requests:  %d", fleet.TotalRequests)
	pterm.Printfln("Average uptime:  %s", fleet.AvgUptime)

	servers, err := serverRepo.ListActive(campaign)
	if err != nil {
		return fmt.Errorf("list servers: %w", err)
	}
	if len(servers) > 0 {
		now := time.Now().UTC()
		rows := pterm.TableData{{"Server", "Campaign", "Host", "Uptime", "Requests", "RPM"}}
		for _, s := range servers {
			rows = append(rows, []string{
				shortID(s.ServerID),
				s.Campaign,
				s.Host,
				repositories.FormatUptime(now.Sub(s.StartedAt)),
				strconv.FormatInt(s.TotalRequests, 10),
				strconv.FormatInt(s.RequestsPerMinute, 10),
			})
		}
		pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	}

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
