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

	"github.com/jinjernot/eloqua/internal/report"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <report-file>",
	Short: "Validate a generated report and print its totals",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var inspectTimezone string

func init() {
	inspectCmd.Flags().StringVar(&inspectTimezone, "timezone", envOr("REPORT_TIMEZONE", "UTC"), "Timezone the report send dates are written in")
}

func runInspect(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation(inspectTimezone)
	if err != nil {
		return fmt.Errorf("invalid --timezone: %w", err)
	}

	rows, err := report.Read(args[0], loc)
	if err != nil {
		return err
	}
	s := report.Summarize(rows)

	fmt.Printf("Report %s is valid\n", args[0])
	fmt.Printf("  Rows:       %d\n", s.Rows)
	fmt.Printf("  Sends:      %d\n", s.Sends)
	fmt.Printf("  Forwards:   %d\n", s.Forwards)
	fmt.Printf("  Delivered:  %d\n", s.Delivered)
	fmt.Printf("  Bounced:    %d\n", s.Bounced)
	fmt.Printf("  Opened:     %d\n", s.Opened)
	fmt.Printf("  Clicked:    %d sends\n", s.ClickedSends)
	fmt.Printf("  Assets:     %d\n", s.Assets)
	if s.Forwards > 0 {
		fmt.Println("  Forwards missing:")
		fmt.Printf("    Send date:  %d\n", s.ForwardsMissingSendDate)
		fmt.Printf("    Email:      %d\n", s.ForwardsMissingEmail)
		fmt.Printf("    User:       %d\n", s.ForwardsMissingUser)
	}
	return nil
}
