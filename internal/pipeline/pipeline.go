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

// Package pipeline generates the report for one date: it fetches every
// stream concurrently, reconciles them, writes the file and records the
// outcome. Range runs repeat that for many dates on a bounded pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jinjernot/eloqua/internal/bulk"
	"github.com/jinjernot/eloqua/internal/eloqua"
	"github.com/jinjernot/eloqua/internal/history"
	"github.com/jinjernot/eloqua/internal/ledger"
	"github.com/jinjernot/eloqua/internal/metrics"
	"github.com/jinjernot/eloqua/internal/models"
	"github.com/jinjernot/eloqua/internal/queue"
	"github.com/jinjernot/eloqua/internal/reconcile"
	"github.com/jinjernot/eloqua/internal/report"
)

// BulkRunner runs one bulk export. *bulk.Client satisfies it.
type BulkRunner interface {
	Run(ctx context.Context, spec bulk.StreamSpec) ([]map[string]any, error)
}

// ODataFetcher pages through one OData query. *odata.Pager satisfies it.
type ODataFetcher interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) ([]map[string]any, error)
}

// Builder reconciles one day. *reconcile.Engine satisfies it.
type Builder interface {
	Build(ctx context.Context, in reconcile.Input) (*reconcile.Result, error)
}

// ReportWriter persists rows. report.Writer satisfies it.
type ReportWriter interface {
	Write(rows []models.ReportRow, path string) (string, error)
}

// Uploader copies a written report elsewhere.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Ledger guards dates against concurrent or repeated generation.
type Ledger interface {
	Lock(ctx context.Context, day time.Time) (func(context.Context) error, error)
	MarkDone(ctx context.Context, day time.Time, e ledger.Entry) error
	Done(ctx context.Context, day time.Time) (ledger.Entry, bool, error)
	Forget(ctx context.Context, day time.Time) error
}

// History records every run attempt.
type History interface {
	Start(ctx context.Context, runID string, day time.Time) error
	Finish(ctx context.Context, r history.Run) error
}

// Notifier announces finished reports. *queue.Publisher satisfies it.
type Notifier interface {
	PublishReport(ctx context.Context, ev queue.ReportEvent) error
}

// CacheSizer reports the contact cache size for metrics.
type CacheSizer interface {
	Len() int
}

// Deps are the collaborators of a Pipeline. Bulk, OData, Engine and
// Writer are required; the rest are optional.
type Deps struct {
	Bulk    BulkRunner
	OData   ODataFetcher
	Engine  Builder
	Writer  ReportWriter
	Upload  Uploader
	Ledger  Ledger
	History History
	Notify  Notifier
	Metrics *metrics.Metrics
	Cache   CacheSizer
}

// Endpoints are the OData endpoints of the non-bulk streams.
type Endpoints struct {
	EmailOpens  string
	EmailClicks string
	Campaigns   string
	Users       string
	EmailAssets string
}

// Options tune a Pipeline.
type Options struct {
	Location           *time.Location
	OutputDir          string
	Endpoints          Endpoints
	BounceWindowDays   int
	ActivityWindowDays int
	ActivityChunkDays  int
	WatchedAssetIDs    []string
	AssetBatchSize     int
	FetchWorkers       int
	RangeWorkers       int
	SkipExisting       bool
}

// Pipeline generates daily reports.
type Pipeline struct {
	deps   Deps
	opts   Options
	parser *eloqua.Parser
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "data"
	}
	if opts.BounceWindowDays <= 0 {
		opts.BounceWindowDays = 7
	}
	if opts.ActivityWindowDays <= 0 {
		opts.ActivityWindowDays = 30
	}
	if opts.ActivityChunkDays <= 0 {
		opts.ActivityChunkDays = 7
	}
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = 6
	}
	if opts.RangeWorkers <= 0 {
		opts.RangeWorkers = 3
	}
	return &Pipeline{deps: deps, opts: opts, parser: eloqua.NewParser(opts.Location)}
}

// Run describes one single-date run.
type Run struct {
	RunID     string
	Date      time.Time
	Status    string
	Path      string
	UploadKey string
	Rows      int
	Stats     reconcile.Stats
	Streams   map[string]int
	Degraded  []string
	Elapsed   time.Duration
}

// ReportPath is where the report for day is written.
func (p *Pipeline) ReportPath(day time.Time) string {
	return filepath.Join(p.opts.OutputDir, report.FileName(day))
}

// Day normalises t to midnight of its calendar date in the report zone.
func (p *Pipeline) Day(t time.Time) time.Time {
	y, m, d := t.In(p.opts.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.opts.Location)
}

// RunDate generates the report for day. A run that completes with some
// optional streams empty returns status degraded, not an error.
func (p *Pipeline) RunDate(ctx context.Context, day time.Time) (*Run, error) {
	day = p.Day(day)
	run := &Run{RunID: uuid.NewString(), Date: day, Path: p.ReportPath(day)}
	log := slog.With("date", day.Format(time.DateOnly), "run_id", run.RunID)
	start := time.Now()

	if skip, err := p.alreadyDone(ctx, day, run.Path); err != nil {
		return nil, err
	} else if skip {
		run.Status = history.StatusSkipped
		log.Info("report already generated, skipping", "path", run.Path)
		return run, nil
	}

	if p.deps.Ledger != nil {
		release, err := p.deps.Ledger.Lock(ctx, day)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release date lock", "error", err)
			}
		}()
	}

	if p.deps.History != nil {
		if err := p.deps.History.Start(ctx, run.RunID, day); err != nil {
			log.Warn("failed to record run start", "error", err)
		}
	}

	log.Info("report run starting")
	err := p.generate(ctx, run)
	run.Elapsed = time.Since(start)
	p.finish(ctx, run, err)
	if err != nil {
		log.Error("report run failed", "error", err, "elapsed", run.Elapsed)
		return run, err
	}
	log.Info("report run complete",
		"status", run.Status,
		"path", run.Path,
		"rows", run.Rows,
		"degraded", run.Degraded,
		"elapsed", run.Elapsed,
	)
	return run, nil
}

// Reset forgets that day was generated: the local report is removed and
// the ledger marker cleared, so the next run regenerates it even with
// SkipExisting set.
func (p *Pipeline) Reset(ctx context.Context, day time.Time) error {
	day = p.Day(day)
	path := p.ReportPath(day)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove report: %w", err)
	}
	if p.deps.Ledger != nil {
		if err := p.deps.Ledger.Forget(ctx, day); err != nil {
			return fmt.Errorf("clear ledger: %w", err)
		}
	}
	slog.Info("report reset", "date", day.Format(time.DateOnly), "path", path)
	return nil
}

func (p *Pipeline) alreadyDone(ctx context.Context, day time.Time, path string) (bool, error) {
	if !p.opts.SkipExisting {
		return false, nil
	}
	if _, err := os.Stat(path); err == nil {
		return true, nil
	}
	if p.deps.Ledger == nil {
		return false, nil
	}
	_, done, err := p.deps.Ledger.Done(ctx, day)
	if err != nil {
		return false, fmt.Errorf("check ledger: %w", err)
	}
	return done, nil
}

func (p *Pipeline) generate(ctx context.Context, run *Run) error {
	f, err := p.fetch(ctx, run.Date)
	if err != nil {
		return err
	}
	run.Streams = f.counts
	run.Degraded = f.degraded

	in := reconcile.Input{
		Date:        run.Date,
		Sends:       p.parser.Sends(f.raw[eloqua.StreamSends]),
		Opens:       p.parser.Activities(models.ActivityOpen, f.raw[eloqua.StreamOpens]),
		Clicks:      p.parser.Activities(models.ActivityClick, f.raw[eloqua.StreamClicks]),
		Bouncebacks: p.parser.Bouncebacks(f.raw[eloqua.StreamBounces]),
		Campaigns:   p.parser.Campaigns(f.raw[eloqua.StreamCampaigns]),
		Users:       p.parser.Users(f.raw[eloqua.StreamUsers]),
		Assets:      p.parser.EmailAssets(f.raw[eloqua.StreamAssets]),
	}

	res, err := p.deps.Engine.Build(ctx, in)
	if err != nil {
		return err
	}
	run.Stats = res.Stats
	run.Rows = len(res.Rows)

	if _, err := p.deps.Writer.Write(res.Rows, run.Path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if p.deps.Upload != nil {
		key, err := p.deps.Upload.Upload(ctx, run.Path)
		p.observeUpload(err)
		if err != nil {
			slog.Error("report upload failed", "path", run.Path, "error", err)
			run.Degraded = append(run.Degraded, "upload")
		} else {
			run.UploadKey = key
		}
	}

	run.Status = history.StatusSucceeded
	if len(run.Degraded) > 0 {
		run.Status = history.StatusDegraded
	}
	return nil
}

// finish records the outcome in history, metrics and the ledger. These
// writes never change the run's result.
func (p *Pipeline) finish(ctx context.Context, run *Run, runErr error) {
	ctx = context.WithoutCancel(ctx)
	if runErr != nil {
		run.Status = history.StatusFailed
	}

	if p.deps.History != nil {
		rec := history.Run{
			RunID:      run.RunID,
			Status:     run.Status,
			Rows:       run.Rows,
			Sends:      run.Stats.Sends,
			Forwards:   run.Stats.Forwards,
			Degraded:   run.Degraded,
			ReportPath: run.Path,
			UploadKey:  run.UploadKey,
		}
		if runErr != nil {
			rec.Error = runErr.Error()
			rec.ReportPath = ""
		}
		if err := p.deps.History.Finish(ctx, rec); err != nil {
			slog.Warn("failed to record run outcome", "run_id", run.RunID, "error", err)
		}
	}

	if m := p.deps.Metrics; m != nil {
		m.ObserveRun(run.Status, run.Elapsed, time.Now())
		if runErr == nil {
			s := run.Stats
			m.ObserveRows(s.Sends, s.Forwards, s.Bounced, s.Opened, s.Clicked)
			m.ObserveContacts(p.cacheSize(), s.Contacts.Hits, s.Contacts.Fetched, s.Contacts.Failed)
		}
	}

	if runErr == nil && p.deps.Ledger != nil {
		entry := ledger.Entry{
			RunID:       run.RunID,
			Path:        run.Path,
			Rows:        run.Rows,
			UploadKey:   run.UploadKey,
			GeneratedAt: time.Now().UTC(),
		}
		if err := p.deps.Ledger.MarkDone(ctx, run.Date, entry); err != nil {
			slog.Warn("failed to mark date done", "date", run.Date.Format(time.DateOnly), "error", err)
		}
	}

	if runErr == nil && p.deps.Notify != nil {
		ev := queue.ReportEvent{
			RunID:       run.RunID,
			ReportDate:  run.Date.Format(time.DateOnly),
			Status:      run.Status,
			Path:        run.Path,
			UploadKey:   run.UploadKey,
			Rows:        run.Rows,
			Degraded:    run.Degraded,
			GeneratedAt: time.Now().UTC(),
		}
		if err := p.deps.Notify.PublishReport(ctx, ev); err != nil {
			slog.Warn("failed to publish report event", "date", ev.ReportDate, "error", err)
		}
	}
}

func (p *Pipeline) cacheSize() int {
	if p.deps.Cache == nil {
		return 0
	}
	return p.deps.Cache.Len()
}

func (p *Pipeline) observeUpload(err error) {
	if p.deps.Metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.deps.Metrics.UploadsTotal.WithLabelValues(result).Inc()
}

// IsNoSends reports whether err means the date had nothing to report.
func IsNoSends(err error) bool {
	return errors.Is(err, reconcile.ErrNoSendsForDate)
}
