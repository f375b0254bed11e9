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
	"time"

	"github.com/spf13/cobra"

	"github.com/jinjernot/eloqua/internal/pipeline"
)

var rangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Generate reports for every date in an inclusive range",
	RunE:  runRange,
}

var (
	rangeFrom         string
	rangeTo           string
	rangeSkipExisting bool
	rangeNoUpload     bool
)

func init() {
	rangeCmd.Flags().StringVar(&rangeFrom, "from", "", "First date YYYY-MM-DD (required)")
	rangeCmd.Flags().StringVar(&rangeTo, "to", "", "Last date YYYY-MM-DD, inclusive (required)")
	rangeCmd.Flags().BoolVar(&rangeSkipExisting, "skip-existing", true, "Skip dates that already have a report")
	rangeCmd.Flags().BoolVar(&rangeNoUpload, "no-upload", false, "Write reports locally only")
	rangeCmd.MarkFlagRequired("from")
	rangeCmd.MarkFlagRequired("to")
}

func runRange(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc := cfg.Location()

	from, err := parseDay(rangeFrom, loc)
	if err != nil {
		return err
	}
	to, err := parseDay(rangeTo, loc)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, appOptions{noUpload: rangeNoUpload, skipExisting: rangeSkipExisting})
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.pipeline.RunRange(ctx, pipeline.RangeRequest{From: from, To: to})
	if res != nil {
		for _, d := range res.Days {
			date := d.Date.Format(time.DateOnly)
			switch {
			case d.Err != nil && pipeline.IsNoSends(d.Err):
				fmt.Printf("%s  no sends\n", date)
			case d.Err != nil:
				fmt.Printf("%s  failed: %v\n", date, d.Err)
			case d.Run != nil:
				fmt.Printf("%s  %-9s %6d rows  %s\n", date, d.Run.Status, d.Run.Rows, d.Run.Path)
			}
		}
		fmt.Printf("\n%d succeeded, %d degraded, %d skipped, %d empty, %d failed in %s\n",
			res.Succeeded, res.Degraded, res.Skipped, res.Empty, res.Failed, res.Elapsed.Round(time.Second))
	}
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d dates failed", res.Failed, len(res.Days))
	}
	return nil
}
