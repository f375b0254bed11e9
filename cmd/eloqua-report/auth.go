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

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "One-time OAuth authorization",
}

var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the consent URL to open in a browser",
	RunE:  runAuthURL,
}

var authExchangeCmd = &cobra.Command{
	Use:   "exchange <code>",
	Short: "Exchange the authorization code from the redirect for a token",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthExchange,
}

func init() {
	authCmd.AddCommand(authURLCmd)
	authCmd.AddCommand(authExchangeCmd)
}

func runAuthURL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.RedirectURL == "" {
		return errors.New("auth.redirect_url is required for the authorization flow")
	}

	fmt.Println("Open this URL, approve access, then run 'eloqua-report auth exchange <code>'")
	fmt.Println("with the code parameter from the redirect:")
	fmt.Println()
	fmt.Println(fileTokenSource(cfg).AuthCodeURL(uuid.NewString()))
	return nil
}

func runAuthExchange(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tok, err := fileTokenSource(cfg).Exchange(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Token saved to %s (expires %s)\n", cfg.Auth.TokenFile, tok.Expiry.Format("2006-01-02 15:04:05 MST"))
	return nil
}
