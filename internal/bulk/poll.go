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

package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jinjernot/eloqua/internal/transport"
)

// Sync statuses reported by GET /syncs/{id}.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

// syncStatus is the body of GET /syncs/{id}.
type syncStatus struct {
	URI    string `json:"uri"`
	Status string `json:"status"`
}

// dataPage is the body of GET /syncs/{id}/data.
type dataPage struct {
	Items        []map[string]any `json:"items"`
	HasMore      *bool            `json:"hasMore"`
	TotalResults int              `json:"totalResults"`
}

// Poll waits for the sync to finish. The interval is fixed; the attempt
// count bounds the total wait. A transport error on one poll consumes an
// attempt rather than failing the stream.
func (c *Client) Poll(ctx context.Context, stream, syncURI string) error {
	url := syncPath(syncURI)
	last := ""

	for attempt := 1; attempt <= c.cfg.PollAttempts; attempt++ {
		if err := transport.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}

		var st syncStatus
		if err := c.api.GetJSON(ctx, url, &st); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("bulk sync poll failed", "stream", stream, "attempt", attempt, "error", err)
			continue
		}
		last = st.Status

		switch st.Status {
		case StatusSuccess:
			slog.Info("bulk sync succeeded", "stream", stream, "attempts", attempt)
			return nil
		case StatusWarning:
			slog.Warn("bulk sync completed with warnings", "stream", stream, "uri", syncURI)
			return nil
		case StatusError:
			slog.Error("bulk sync reported error", "stream", stream, "uri", syncURI)
			return fmt.Errorf("%w: %s sync %s reported status %q", ErrSyncTimeout, stream, syncURI, st.Status)
		default:
			slog.Debug("bulk sync in progress", "stream", stream, "status", st.Status, "attempt", attempt)
		}
	}

	return fmt.Errorf("%w: %s sync %s still %q after %d attempts", ErrSyncTimeout, stream, syncURI, last, c.cfg.PollAttempts)
}

// Download pages through the sync's data with offset/limit until a short
// page or hasMore=false. Each page is retried with a fixed delay; when a
// page exhausts its attempts the whole stream fails with DownloadError.
func (c *Client) Download(ctx context.Context, stream, syncURI string) ([]map[string]any, error) {
	base := syncPath(syncURI) + "/data"
	var items []map[string]any

	for offset := 0; ; {
		url := base + "?offset=" + strconv.Itoa(offset) + "&limit=" + strconv.Itoa(c.cfg.PageSize)

		page, err := c.downloadPage(ctx, stream, url, offset)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)

		slog.Debug("bulk data page downloaded",
			"stream", stream,
			"offset", offset,
			"records", len(page.Items),
			"total", page.TotalResults,
		)

		if page.HasMore != nil && !*page.HasMore {
			break
		}
		if len(page.Items) < c.cfg.PageSize {
			break
		}
		offset += len(page.Items)
	}

	return items, nil
}

func (c *Client) downloadPage(ctx context.Context, stream, url string, offset int) (*dataPage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.DownloadAttempts; attempt++ {
		if attempt > 1 {
			if err := transport.Sleep(ctx, c.cfg.DownloadDelay); err != nil {
				return nil, err
			}
		}

		var page dataPage
		err := c.api.GetJSON(ctx, url, &page)
		if err == nil {
			return &page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		slog.Warn("bulk data page failed",
			"stream", stream,
			"offset", offset,
			"attempt", attempt,
			"error", err,
		)
	}

	return nil, &DownloadError{Stream: stream, Offset: offset, Attempts: c.cfg.DownloadAttempts, Err: lastErr}
}
