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
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jinjernot/eloqua/internal/eloqua"
)

var emailsCmd = &cobra.Command{
	Use:   "emails",
	Short: "Email asset commands",
}

var emailsDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download email creatives as <id>.html",
	Long:  "Downloads the HTML of the given email assets, or of every asset created or updated in --year.",
	RunE:  runEmailsDownload,
}

var (
	emailsIDs     []string
	emailsYear    int
	emailsOut     string
	emailsWorkers int
)

func init() {
	emailsDownloadCmd.Flags().StringSliceVar(&emailsIDs, "ids", nil, "Email asset ids to download")
	emailsDownloadCmd.Flags().IntVar(&emailsYear, "year", 0, "Download every asset created or updated in this year")
	emailsDownloadCmd.Flags().StringVar(&emailsOut, "out", "", "Output directory (default emails.download_dir/<year> or emails.download_dir)")
	emailsDownloadCmd.Flags().IntVar(&emailsWorkers, "workers", 0, "Parallel downloads (default emails.workers)")
	emailsCmd.AddCommand(emailsDownloadCmd)
}

func runEmailsDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(emailsIDs) == 0 && emailsYear == 0 {
		return errors.New("set --ids or --year")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f := eloqua.NewContentFetcher(newTransport(cfg), cfg.OData.PageSize)

	ids := emailsIDs
	out := emailsOut
	if emailsYear != 0 {
		loc := cfg.Location()
		from := time.Date(emailsYear, 1, 1, 0, 0, 0, 0, loc)
		listed, err := f.ListEmails(ctx, from, from.AddDate(1, 0, 0))
		if err != nil {
			return err
		}
		for _, e := range listed {
			ids = append(ids, e.ID)
		}
		if out == "" {
			out = filepath.Join(cfg.Emails.DownloadDir, strconv.Itoa(emailsYear))
		}
		fmt.Printf("Found %d email assets from %d\n", len(listed), emailsYear)
	}
	if out == "" {
		out = cfg.Emails.DownloadDir
	}
	workers := emailsWorkers
	if workers <= 0 {
		workers = cfg.Emails.Workers
	}

	results, err := f.Download(ctx, ids, out, workers)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("  %s  failed: %v\n", r.Input, r.Err)
		}
	}
	fmt.Printf("Downloaded %d of %d emails to %s\n", len(results)-failed, len(results), out)
	if failed > 0 {
		return fmt.Errorf("%d downloads failed", failed)
	}
	return nil
}
