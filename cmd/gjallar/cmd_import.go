/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/gjallar/internal/db"
	"github.com/friendsincode/gjallar/internal/models"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import stations and ad catalogs",
	Long:  "Import station definitions and ad catalogs from a YAML file",
	RunE:  runImport,
}

var (
	importFilePath string
	importDryRun   bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importFilePath, "file", "", "Path to the catalog YAML file (required)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and validate without writing")
	importCmd.MarkFlagRequired("file")
}

// catalogFile is the import document shape. Ads accept either the modern
// days/hours sets or the legacy times list.
type catalogFile struct {
	Stations []struct {
		Name             string   `yaml:"name"`
		Description      string   `yaml:"description"`
		Timezone         string   `yaml:"timezone"`
		FeedPath         string   `yaml:"feed_path"`
		ScheduledURL     string   `yaml:"scheduled_url"`
		InstantURL       string   `yaml:"instant_url"`
		IdentPath        string   `yaml:"ident_path"`
		LedgerPath       string   `yaml:"ledger_path"`
		LectureBlacklist []string `yaml:"lecture_blacklist"`
		LectureWhitelist []string `yaml:"lecture_whitelist"`

		Ads []struct {
			Name      string `yaml:"name"`
			MediaPath string `yaml:"media_path"`
			Days      []int  `yaml:"days"`
			Hours     []int  `yaml:"hours"`
			Times     []struct {
				Hour int `yaml:"hour"`
			} `yaml:"times"`
		} `yaml:"ads"`
	} `yaml:"stations"`
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	data, err := os.ReadFile(importFilePath)
	if err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}

	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse catalog file: %w", err)
	}

	for i, st := range doc.Stations {
		if st.Name == "" || st.FeedPath == "" || st.ScheduledURL == "" || st.InstantURL == "" || st.LedgerPath == "" {
			return fmt.Errorf("station %d: name, feed_path, scheduled_url, instant_url, and ledger_path are required", i)
		}
		for j, ad := range st.Ads {
			if ad.Name == "" || ad.MediaPath == "" {
				return fmt.Errorf("station %q ad %d: name and media_path are required", st.Name, j)
			}
		}
	}

	if importDryRun {
		total := 0
		for _, st := range doc.Stations {
			total += len(st.Ads)
		}
		logger.Info().
			Int("stations", len(doc.Stations)).
			Int("ads", total).
			Msg("dry run: catalog file is valid")
		return nil
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	imported := 0
	for _, st := range doc.Stations {
		station := models.NewStation(st.Name)
		station.Description = st.Description
		if st.Timezone != "" {
			station.Timezone = st.Timezone
		}
		station.FeedPath = st.FeedPath
		station.ScheduledURL = st.ScheduledURL
		station.InstantURL = st.InstantURL
		station.IdentPath = st.IdentPath
		station.LedgerPath = st.LedgerPath
		station.LectureBlacklist = st.LectureBlacklist
		station.LectureWhitelist = st.LectureWhitelist

		if err := database.Create(station).Error; err != nil {
			return fmt.Errorf("create station %q: %w", st.Name, err)
		}

		for _, adSpec := range st.Ads {
			ad := models.NewAd(station.ID, adSpec.Name, adSpec.MediaPath)
			ad.Days = adSpec.Days
			ad.Hours = adSpec.Hours
			for _, lt := range adSpec.Times {
				ad.Times = append(ad.Times, models.LegacyTime{Hour: lt.Hour})
			}

			if err := database.Create(ad).Error; err != nil {
				return fmt.Errorf("create ad %q for station %q: %w", adSpec.Name, st.Name, err)
			}
			imported++
		}

		logger.Info().
			Str("station", st.Name).
			Int("ads", len(st.Ads)).
			Msg("station imported")
	}

	logger.Info().Int("stations", len(doc.Stations)).Int("ads", imported).Msg("import complete")
	return nil
}
