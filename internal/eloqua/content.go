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

package eloqua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jinjernot/eloqua/internal/workpool"
)

// ErrNoHTML means an email asset carries no HTML body.
var ErrNoHTML = errors.New("email asset has no html content")

// EmailSummary is one entry of the email asset listing.
type EmailSummary struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// restEmailList is GET /api/REST/2.0/assets/emails at depth=minimal.
type restEmailList struct {
	Elements []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		CreatedAt string `json:"createdAt"`
		UpdatedAt string `json:"updatedAt"`
	} `json:"elements"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

// restEmail is the part of GET /api/REST/2.0/assets/email/{id} holding the
// creative.
type restEmail struct {
	HTML        string `json:"html"`
	HTMLContent struct {
		HTMLBody string `json:"htmlBody"`
	} `json:"htmlContent"`
}

// ContentFetcher downloads email creatives from the asset API.
type ContentFetcher struct {
	api      Getter
	pageSize int
}

// NewContentFetcher creates a creative fetcher. pageSize bounds the asset
// listing page; zero means 1000.
func NewContentFetcher(api Getter, pageSize int) *ContentFetcher {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &ContentFetcher{api: api, pageSize: pageSize}
}

// ListEmails returns the email assets created or updated in [from, to).
func (f *ContentFetcher) ListEmails(ctx context.Context, from, to time.Time) ([]EmailSummary, error) {
	var out []EmailSummary
	seen := make(map[string]bool)

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("depth", "minimal")
		q.Set("count", strconv.Itoa(f.pageSize))
		q.Set("page", strconv.Itoa(page))

		var list restEmailList
		if err := f.api.GetJSON(ctx, "/api/REST/2.0/assets/emails?"+q.Encode(), &list); err != nil {
			return out, fmt.Errorf("list email assets page %d: %w", page, err)
		}

		for _, e := range list.Elements {
			if e.ID == "" || seen[e.ID] {
				continue
			}
			s := EmailSummary{ID: e.ID, Name: e.Name, CreatedAt: epoch(e.CreatedAt), UpdatedAt: epoch(e.UpdatedAt)}
			if inRange(s.CreatedAt, from, to) || inRange(s.UpdatedAt, from, to) {
				seen[e.ID] = true
				out = append(out, s)
			}
		}

		slog.Debug("email asset page listed", "page", page, "elements", len(list.Elements), "matched", len(out))
		if len(list.Elements) < f.pageSize || page*f.pageSize >= list.Total {
			return out, nil
		}
	}
}

// EmailHTML returns the HTML body of one email asset.
func (f *ContentFetcher) EmailHTML(ctx context.Context, assetID string) (string, error) {
	var e restEmail
	if err := f.api.GetJSON(ctx, "/api/REST/2.0/assets/email/"+url.PathEscape(assetID), &e); err != nil {
		return "", fmt.Errorf("fetch email %s: %w", assetID, err)
	}
	if e.HTMLContent.HTMLBody != "" {
		return e.HTMLContent.HTMLBody, nil
	}
	if e.HTML != "" {
		return e.HTML, nil
	}
	return "", fmt.Errorf("email %s: %w", assetID, ErrNoHTML)
}

// Download saves each asset's creative as dir/<id>.html, workers at a time.
// A failed asset never stops the others; its error is in the result.
func (f *ContentFetcher) Download(ctx context.Context, assetIDs []string, dir string, workers int) ([]workpool.Result[string, string], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	return workpool.Map(ctx, workers, assetIDs, func(ctx context.Context, id string) (string, error) {
		html, err := f.EmailHTML(ctx, id)
		if err != nil {
			slog.Warn("email download failed", "asset_id", id, "error", err)
			return "", err
		}
		path := filepath.Join(dir, filepath.Base(id)+".html")
		if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
			return "", fmt.Errorf("save email %s: %w", id, err)
		}
		return path, nil
	})
}

// epoch parses the asset API's unix-seconds timestamps.
func epoch(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func inRange(t, from, to time.Time) bool {
	return !t.IsZero() && !t.Before(from) && t.Before(to)
}
