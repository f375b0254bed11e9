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

// Package auth provides bearer tokens for the Eloqua APIs. The interactive
// authorization-code grant happens elsewhere; this package only consumes a
// previously stored token and refreshes it.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// ErrAuthRequired means no usable token exists and a person must
// re-authorize the integration.
var ErrAuthRequired = errors.New("eloqua authorization required")

const (
	DefaultAuthURL  = "https://login.eloqua.com/auth/oauth2/authorize"
	DefaultTokenURL = "https://login.eloqua.com/auth/oauth2/token"
)

// StaticToken is a fixed bearer token, e.g. from ELOQUA_ACCESS_TOKEN.
type StaticToken string

// AccessToken returns the token or ErrAuthRequired when empty.
func (s StaticToken) AccessToken(context.Context) (string, error) {
	if s == "" {
		return "", ErrAuthRequired
	}
	return string(s), nil
}

// FileTokenConfig describes the OAuth client and where its token lives.
type FileTokenConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	TokenFile    string
}

// FileTokenSource loads a token from disk, refreshes it when it expires,
// and writes refreshed tokens back so the next process starts warm.
type FileTokenSource struct {
	oauth *oauth2.Config
	path  string

	mu   sync.Mutex
	src  oauth2.TokenSource
	last string
}

// NewFileTokenSource creates a token source for the given client.
func NewFileTokenSource(cfg FileTokenConfig) *FileTokenSource {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &FileTokenSource{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		path: cfg.TokenFile,
	}
}

// AccessToken returns a valid access token, refreshing if needed.
func (f *FileTokenSource) AccessToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.src == nil {
		tok, err := readToken(f.path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrAuthRequired, err)
		}
		// The refresh client outlives any single request context.
		f.src = oauth2.ReuseTokenSource(tok, f.oauth.TokenSource(context.WithoutCancel(ctx), tok))
		f.last = tok.AccessToken
	}

	tok, err := f.src.Token()
	if err != nil {
		f.src = nil
		return "", fmt.Errorf("%w: refresh token: %v", ErrAuthRequired, err)
	}

	if tok.AccessToken != f.last {
		if err := writeToken(f.path, tok); err != nil {
			slog.Warn("failed to persist refreshed token", "path", f.path, "error", err)
		} else {
			slog.Info("eloqua access token refreshed", "expiry", tok.Expiry)
		}
		f.last = tok.AccessToken
	}

	return tok.AccessToken, nil
}

// AuthCodeURL is the consent page for the one-time interactive login.
func (f *FileTokenSource) AuthCodeURL(state string) string {
	return f.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token and persists it.
func (f *FileTokenSource) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := f.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange code: %v", ErrAuthRequired, err)
	}
	if err := writeToken(f.path, tok); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}

	f.mu.Lock()
	f.src = nil
	f.mu.Unlock()
	return tok, nil
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token file holds no access or refresh token")
	}
	return &tok, nil
}

// WriteToken persists tok at path with owner-only permissions.
func WriteToken(path string, tok *oauth2.Token) error {
	return writeToken(path, tok)
}

func writeToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
