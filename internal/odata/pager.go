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

// Package odata pages through Eloqua's synchronous OData endpoints. Pages
// are followed through @odata.nextLink when the server provides one, and by
// page number otherwise.
package odata

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
)

// Getter is the subset of transport.Client the pager needs.
type Getter interface {
	GetJSON(ctx context.Context, url string, out any) error
	PageDelay(ctx context.Context) error
}

// page is one OData response envelope.
type page struct {
	Value      []map[string]any `json:"value"`
	NextLink   string           `json:"@odata.nextLink"`
	LegacyLink string           `json:"odata.nextLink"`
}

func (p *page) next() string {
	if p.NextLink != "" {
		return p.NextLink
	}
	return p.LegacyLink
}

// FetchError reports which endpoint and page failed.
type FetchError struct {
	Endpoint string
	Page     int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("odata fetch %s page %d: %v", e.Endpoint, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Pager fetches every page of an endpoint up to a page cap.
type Pager struct {
	client   Getter
	pageSize int
	maxPages int
}

// NewPager creates a pager. maxPages bounds the rows one query can return;
// rows past the cap are dropped with a warning.
func NewPager(client Getter, pageSize, maxPages int) *Pager {
	if pageSize <= 0 {
		pageSize = 1000
	}
	if maxPages <= 0 {
		maxPages = 200
	}
	return &Pager{client: client, pageSize: pageSize, maxPages: maxPages}
}

// Fetch returns all records for endpoint with the given query parameters
// (typically $filter). On error no partial result is returned.
func (p *Pager) Fetch(ctx context.Context, endpoint string, params url.Values) ([]map[string]any, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string(nil), v...)
	}
	query.Set("count", strconv.Itoa(p.pageSize))

	var (
		records   []map[string]any
		cursor    string
		useCursor bool
	)

	for pageNum := 1; ; pageNum++ {
		if pageNum > 1 {
			if err := p.client.PageDelay(ctx); err != nil {
				return nil, err
			}
		}

		target := cursor
		if !useCursor {
			query.Set("page", strconv.Itoa(pageNum))
			target = withQuery(endpoint, query)
		}

		var pg page
		if err := p.client.GetJSON(ctx, target, &pg); err != nil {
			return nil, &FetchError{Endpoint: endpoint, Page: pageNum, Err: err}
		}

		if len(pg.Value) == 0 {
			break
		}
		records = append(records, pg.Value...)

		slog.Debug("odata page fetched",
			"endpoint", endpoint,
			"page", pageNum,
			"records", len(pg.Value),
		)

		if pageNum >= p.maxPages {
			slog.Warn("odata page cap reached, remaining rows dropped",
				"endpoint", endpoint,
				"pages", pageNum,
				"max_records", p.maxPages*p.pageSize,
			)
			break
		}

		if next := pg.next(); next != "" {
			cursor, useCursor = next, true
			continue
		}
		if useCursor || len(pg.Value) < p.pageSize {
			break
		}
	}

	slog.Info("odata fetch complete", "endpoint", endpoint, "records", len(records))
	return records, nil
}

func withQuery(endpoint string, q url.Values) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + q.Encode()
}
