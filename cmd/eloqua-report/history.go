// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jinjernot/eloqua/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded report runs",
	RunE:  runHistory,
}

var (
	historyDays int
	historyDate string
)

func init() {
	historyCmd.Flags().IntVar(&historyDays, "days", 14, "Show runs for report dates in the last N days")
	historyCmd.Flags().StringVar(&historyDate, "date", "", "Show the latest run for one report date YYYY-MM-DD")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("run history is disabled: set database.url or DATABASE_URL")
	}

	store, err := history.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer store.Close()

	loc := cfg.Location()
	if historyDate != "" {
		d, err := parseDay(historyDate, loc)
		if err != nil {
			return err
		}
		r, err := store.Latest(ctx, d)
		if err != nil {
			return fmt.Errorf("latest run: %w", err)
		}
		if r == nil {
			fmt.Printf("No runs recorded for %s\n", historyDate)
			return nil
		}
		fmt.Println(runLine(*r, loc))
		return nil
	}

	to := yesterday(time.Now(), loc)
	from := to.AddDate(0, 0, -historyDays+1)

	runs, err := store.List(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Printf("No runs recorded between %s and %s\n", from.Format(time.DateOnly), to.Format(time.DateOnly))
		return nil
	}

	for _, r := range runs {
		fmt.Println(runLine(r, loc))
	}
	return nil
}

func runLine(r history.Run, loc *time.Location) string {
	line := fmt.Sprintf("%s  %-9s %6d rows  %s", r.ReportDate.Format(time.DateOnly), r.Status, r.Rows, r.StartedAt.In(loc).Format(time.DateTime))
	if len(r.Degraded) > 0 {
		line += "  degraded: " + strings.Join(r.Degraded, ",")
	}
	if r.Error != "" {
		line += "  error: " + r.Error
	}
	return line
}
