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

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Contact cache commands",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show contact cache coverage",
	RunE:  runCacheStats,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cache, err := newContactCache(cfg, nil)
	if err != nil {
		return err
	}
	s := cache.Stats()

	fmt.Printf("Contact cache: %s\n", cfg.Contacts.CacheFile)
	fmt.Printf("  Contacts:      %d\n", s.Contacts)
	fmt.Printf("  Email:         %s\n", coverage(s.WithEmail, s.Contacts))
	fmt.Printf("  Country:       %s\n", coverage(s.WithCountry, s.Contacts))
	fmt.Printf("  Role:          %s\n", coverage(s.WithRole, s.Contacts))
	fmt.Printf("  Partner ID:    %s\n", coverage(s.WithPartnerID, s.Contacts))
	fmt.Printf("  Partner name:  %s\n", coverage(s.WithPartnerName, s.Contacts))
	fmt.Printf("  Market:        %s\n", coverage(s.WithMarket, s.Contacts))
	return nil
}

func coverage(n, total int) string {
	if total == 0 {
		return "0"
	}
	return fmt.Sprintf("%d (%.1f%%)", n, 100*float64(n)/float64(total))
}
