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
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and print the effective settings",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	authMode := "oauth token file " + cfg.Auth.TokenFile
	if cfg.Auth.AccessToken != "" {
		authMode = "static access token"
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Eloqua:          %s\n", cfg.Eloqua.BaseURL)
	fmt.Printf("  Timezone:        %s\n", cfg.Eloqua.Timezone)
	fmt.Printf("  Auth:            %s\n", authMode)
	fmt.Printf("  Client ID:       %s\n", redact(cfg.Auth.ClientID))
	fmt.Printf("  Output dir:      %s\n", cfg.Report.OutputDir)
	fmt.Printf("  Contact cache:   %s\n", cfg.Contacts.CacheFile)
	fmt.Printf("  Windows:         bounces %dd, activity %dd in %dd chunks\n",
		cfg.Report.BounceWindowDays, cfg.Report.ActivityWindowDays, cfg.Report.ActivityChunkDays)
	fmt.Printf("  Excluded assets: %s\n", listOrNone(cfg.Report.ExcludedAssetIDs))
	fmt.Printf("  Internal:        %s\n", listOrNone(cfg.Report.InternalDomains))
	fmt.Printf("  Upload:          %s\n", enabled(cfg.S3.Bucket, "s3://"+cfg.S3.Bucket+"/"+cfg.S3.Prefix))
	fmt.Printf("  Ledger:          %s\n", enabled(cfg.Redis.URL, redactURL(cfg.Redis.URL)))
	events := ""
	if cfg.Redis.URL != "" {
		events = cfg.Redis.Queue
	}
	fmt.Printf("  Events:          %s\n", enabled(events, events))
	fmt.Printf("  History:         %s\n", enabled(cfg.Database.URL, redactURL(cfg.Database.URL)))
	fmt.Printf("  Metrics:         %s\n", enabled(cfg.Metrics.TextfilePath, cfg.Metrics.TextfilePath))
	return nil
}

func enabled(setting, show string) string {
	if setting == "" {
		return "disabled"
	}
	return show
}

func listOrNone(v []string) string {
	if len(v) == 0 {
		return "none"
	}
	return strings.Join(v, ", ")
}

// redact keeps the first four characters of a credential.
func redact(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

// redactURL masks the password of a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
