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

// Package bulk drives the Eloqua Bulk API 2.0 activity export workflow:
// define an export, start a sync, poll the sync until it finishes, then
// page through the sync's data.
//
// API docs: https://docs.oracle.com/en/cloud/saas/marketing/eloqua-develop/Developers/BulkAPI/
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"
)

// APIPrefix is the Bulk API 2.0 root relative to the instance base URL.
const APIPrefix = "/api/bulk/2.0"

// API is the subset of transport.Client the bulk client needs.
type API interface {
	GetJSON(ctx context.Context, url string, out any) error
	PostJSON(ctx context.Context, url string, in, out any) error
}

// StreamSpec describes one logical activity export.
type StreamSpec struct {
	// Stream is a short label used in logs and errors ("EmailSend").
	Stream string
	// ExportName is the definition name shown in Eloqua.
	ExportName string
	// Fields maps output column alias to Eloqua field expression.
	Fields map[string]string
	// Filter is the Eloqua export filter expression.
	Filter string
}

// Config tunes polling and download.
type Config struct {
	PollInterval     time.Duration
	PollAttempts     int
	PageSize         int
	DownloadAttempts int
	DownloadDelay    time.Duration
}

// ErrSyncTimeout is returned when a sync reports "error" or polling runs
// out of attempts.
var ErrSyncTimeout = errors.New("bulk sync did not complete")

// ExportError is a failed export definition request.
type ExportError struct {
	Stream string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("define %s export: %v", e.Stream, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// SyncStartError is a failed sync creation request.
type SyncStartError struct {
	Stream string
	Err    error
}

func (e *SyncStartError) Error() string {
	return fmt.Sprintf("start %s sync: %v", e.Stream, e.Err)
}

func (e *SyncStartError) Unwrap() error { return e.Err }

// DownloadError is a data page that failed every download attempt.
type DownloadError struct {
	Stream   string
	Offset   int
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s at offset %d after %d attempts: %v", e.Stream, e.Offset, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Client runs exports. One Client may run many streams concurrently.
type Client struct {
	api API
	cfg Config
}

// NewClient creates a bulk export client.
func NewClient(api API, cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 60
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50000
	}
	if cfg.DownloadAttempts <= 0 {
		cfg.DownloadAttempts = 3
	}
	if cfg.DownloadDelay < 0 {
		cfg.DownloadDelay = 0
	}
	return &Client{api: api, cfg: cfg}
}

// exportRequest is the body of POST /activities/exports.
type exportRequest struct {
	Name   string            `json:"name"`
	Fields map[string]string `json:"fields"`
	Filter string            `json:"filter"`
}

// syncRequest is the body of POST /syncs.
type syncRequest struct {
	SyncedInstanceURI string `json:"syncedInstanceUri"`
}

// uriResponse is the common {uri} reply of definition and sync creation.
type uriResponse struct {
	URI    string `json:"uri"`
	Status string `json:"status,omitempty"`
}

// Run executes the full define → sync → poll → download sequence.
func (c *Client) Run(ctx context.Context, spec StreamSpec) ([]map[string]any, error) {
	start := time.Now()

	exportURI, err := c.Define(ctx, spec)
	if err != nil {
		return nil, err
	}

	syncURI, err := c.StartSync(ctx, spec.Stream, exportURI)
	if err != nil {
		return nil, err
	}

	if err := c.Poll(ctx, spec.Stream, syncURI); err != nil {
		return nil, err
	}

	items, err := c.Download(ctx, spec.Stream, syncURI)
	if err != nil {
		return nil, err
	}

	slog.Info("bulk export complete",
		"stream", spec.Stream,
		"records", len(items),
		"elapsed", time.Since(start),
	)
	return items, nil
}

// Define creates the export definition and returns its URI.
func (c *Client) Define(ctx context.Context, spec StreamSpec) (string, error) {
	body := exportRequest{Name: spec.ExportName, Fields: spec.Fields, Filter: spec.Filter}

	var resp uriResponse
	if err := c.api.PostJSON(ctx, APIPrefix+"/activities/exports", body, &resp); err != nil {
		return "", &ExportError{Stream: spec.Stream, Err: err}
	}
	if resp.URI == "" {
		return "", &ExportError{Stream: spec.Stream, Err: errors.New("response carried no uri")}
	}

	slog.Info("bulk export defined", "stream", spec.Stream, "uri", resp.URI, "filter", spec.Filter)
	return resp.URI, nil
}

// StartSync submits an export URI for synchronisation and returns the
// sync URI.
func (c *Client) StartSync(ctx context.Context, stream, exportURI string) (string, error) {
	var resp uriResponse
	if err := c.api.PostJSON(ctx, APIPrefix+"/syncs", syncRequest{SyncedInstanceURI: exportURI}, &resp); err != nil {
		return "", &SyncStartError{Stream: stream, Err: err}
	}
	if resp.URI == "" {
		return "", &SyncStartError{Stream: stream, Err: errors.New("response carried no uri")}
	}

	slog.Info("bulk sync started", "stream", stream, "uri", resp.URI)
	return resp.URI, nil
}

// syncPath turns "/syncs/123" (or a full URL ending in it) into the
// request path for that sync.
func syncPath(syncURI string) string {
	return APIPrefix + "/syncs/" + path.Base(syncURI)
}
