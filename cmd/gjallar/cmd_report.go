/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/gjallar/internal/db"
	"github.com/friendsincode/gjallar/internal/ledger"
	"github.com/friendsincode/gjallar/internal/models"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print confirmed play counts from a station ledger",
	Long:  "Read a station's ledger document and print its confirmed counters as JSON. Counts derive from the ledger, never from the denormalized ad fields.",
	RunE:  runReport,
}

var (
	reportStationName string
	reportLedgerPath  string
	reportDate        string
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportStationName, "station", "", "Station name to report on (resolves the ledger path from the database)")
	reportCmd.Flags().StringVar(&reportLedgerPath, "ledger", "", "Ledger file path (bypasses the database)")
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Restrict hourly and daily counters to one date (YYYY-MM-DD)")
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	path := reportLedgerPath
	loc := time.Local
	if path == "" {
		if reportStationName == "" {
			return fmt.Errorf("either --station or --ledger is required")
		}

		database, err := initDatabase()
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close(database)

		var st models.Station
		if err := database.First(&st, "name = ?", reportStationName).Error; err != nil {
			return fmt.Errorf("station %q not found: %w", reportStationName, err)
		}
		path = st.LedgerPath
		loc = st.Location()
	}

	store := ledger.Open(path, loc, zerolog.Nop())
	doc, err := store.Snapshot()
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	hourly := doc.Hourly
	daily := doc.Daily
	if reportDate != "" {
		hourly = map[string]map[string]int{}
		for key, counts := range doc.Hourly {
			if len(key) >= len(reportDate) && key[:len(reportDate)] == reportDate {
				hourly[key] = counts
			}
		}
		daily = map[string]map[string]int{}
		if counts, ok := doc.Daily[reportDate]; ok {
			daily[reportDate] = counts
		}
	}

	report := map[string]any{
		"ledger":              path,
		"pending":             len(doc.Pending),
		"confirmed":           len(doc.Confirmed),
		"unconfirmed":         len(doc.Unconfirmed),
		"hourly_confirmed":    hourly,
		"daily_confirmed":     daily,
		"confirmed_ad_totals": doc.Totals,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
