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

	"github.com/jinjernot/eloqua/internal/eloqua"
)

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Contact commands",
}

var contactShowCmd = &cobra.Command{
	Use:   "show <contact-id>",
	Short: "Show a cached contact, or its live fields with --fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runContactShow,
}

var contactFields bool

func init() {
	contactShowCmd.Flags().BoolVar(&contactFields, "fields", false, "Fetch the contact live and list every populated field with its id")
	contactCmd.AddCommand(contactShowCmd)
}

func runContactShow(cmd *cobra.Command, args []string) error {
	id := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if contactFields {
		fetcher := eloqua.NewContactFetcher(newTransport(cfg), eloqua.FieldIDs{})
		email, fields, err := fetcher.Fields(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Printf("Contact %s <%s>: %d populated fields\n", id, email, len(fields))
		for _, f := range fields {
			fmt.Printf("  %-8s %-30s %s\n", f.ID, f.Name, f.Value)
		}
		return nil
	}

	cache, err := newContactCache(cfg, nil)
	if err != nil {
		return err
	}
	rec, ok := cache.Get(id)
	if !ok {
		return fmt.Errorf("contact %s is not cached; use --fields to fetch it live", id)
	}

	fmt.Printf("Contact %s\n", rec.ContactID)
	fmt.Printf("  Email:         %s\n", rec.EmailAddress)
	fmt.Printf("  Country:       %s\n", rec.Country)
	fmt.Printf("  Role:          %s\n", rec.Role)
	fmt.Printf("  Partner ID:    %s\n", rec.PartnerID)
	fmt.Printf("  Partner name:  %s\n", rec.PartnerName)
	fmt.Printf("  Market:        %s\n", rec.Market)
	return nil
}
