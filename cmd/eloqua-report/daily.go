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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jinjernot/eloqua/internal/history"
	"github.com/jinjernot/eloqua/internal/pipeline"
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Generate the report for one date (default: yesterday)",
	RunE:  runDaily,
}

var (
	dailyDate         string
	dailySkipExisting bool
	dailyNoUpload     bool
	dailyForce        bool
)

func init() {
	dailyCmd.Flags().StringVar(&dailyDate, "date", "", "Report date YYYY-MM-DD in the report timezone (default: yesterday)")
	dailyCmd.Flags().BoolVar(&dailySkipExisting, "skip-existing", false, "Do nothing if the report was already generated")
	dailyCmd.Flags().BoolVar(&dailyNoUpload, "no-upload", false, "Write the report locally only")
	dailyCmd.Flags().BoolVar(&dailyForce, "force", false, "Discard an existing report and its ledger marker, then regenerate")
	dailyCmd.MarkFlagsMutuallyExclusive("force", "skip-existing")
}

func runDaily(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc := cfg.Location()

	day := yesterday(time.Now(), loc)
	if dailyDate != "" {
		if day, err = parseDay(dailyDate, loc); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg, appOptions{noUpload: dailyNoUpload, skipExisting: dailySkipExisting})
	if err != nil {
		return err
	}
	defer a.close()

	if dailyForce {
		if err := a.pipeline.Reset(ctx, day); err != nil {
			return err
		}
	}

	slog.Info("starting daily report", "date", day.Format(time.DateOnly), "timezone", loc.String())

	run, err := a.pipeline.RunDate(ctx, day)
	if err != nil {
		if pipeline.IsNoSends(err) {
			fmt.Printf("No email sends found for %s; no report written\n", day.Format(time.DateOnly))
		}
		return err
	}

	printRun(run)
	return nil
}

func printRun(run *pipeline.Run) {
	date := run.Date.Format(time.DateOnly)
	if run.Status == history.StatusSkipped {
		fmt.Printf("Report for %s already exists: %s\n", date, run.Path)
		return
	}

	fmt.Printf("Report for %s: %s\n", date, run.Path)
	fmt.Printf("  Status:    %s\n", run.Status)
	fmt.Printf("  Rows:      %d (%d sends, %d forwards)\n", run.Rows, run.Stats.Sends, run.Stats.Forwards)
	fmt.Printf("  Bounced:   %d (%d hard, %d soft)\n", run.Stats.Bounced, run.Stats.HardBounces, run.Stats.SoftBounces)
	fmt.Printf("  Opened:    %d\n", run.Stats.Opened)
	fmt.Printf("  Clicked:   %d\n", run.Stats.Clicked)
	fmt.Printf("  Contacts:  %d cached, %d fetched, %d failed\n",
		run.Stats.Contacts.Hits, run.Stats.Contacts.Fetched, run.Stats.Contacts.Failed)
	if run.UploadKey != "" {
		fmt.Printf("  Uploaded:  %s\n", run.UploadKey)
	}
	if len(run.Degraded) > 0 {
		fmt.Printf("  Degraded:  %s\n", strings.Join(run.Degraded, ", "))
	}
	fmt.Printf("  Elapsed:   %s\n", run.Elapsed.Round(time.Millisecond))
}
