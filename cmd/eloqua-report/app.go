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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinjernot/eloqua/internal/auth"
	"github.com/jinjernot/eloqua/internal/bulk"
	"github.com/jinjernot/eloqua/internal/config"
	"github.com/jinjernot/eloqua/internal/contacts"
	"github.com/jinjernot/eloqua/internal/eloqua"
	"github.com/jinjernot/eloqua/internal/history"
	"github.com/jinjernot/eloqua/internal/ledger"
	"github.com/jinjernot/eloqua/internal/metrics"
	"github.com/jinjernot/eloqua/internal/odata"
	"github.com/jinjernot/eloqua/internal/pipeline"
	"github.com/jinjernot/eloqua/internal/queue"
	"github.com/jinjernot/eloqua/internal/reconcile"
	"github.com/jinjernot/eloqua/internal/report"
	"github.com/jinjernot/eloqua/internal/transport"
	"github.com/jinjernot/eloqua/internal/upload"
)

// app holds the wired pipeline and everything that must be closed.
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	cache    *contacts.Cache
	metrics  *metrics.Metrics
	closers  []func()
}

type appOptions struct {
	noUpload     bool
	skipExisting bool
}

// tokenProvider prefers a fixed access token over the refreshable file.
func tokenProvider(cfg *config.Config) transport.TokenProvider {
	if cfg.Auth.AccessToken != "" {
		return auth.StaticToken(cfg.Auth.AccessToken)
	}
	return fileTokenSource(cfg)
}

func fileTokenSource(cfg *config.Config) *auth.FileTokenSource {
	return auth.NewFileTokenSource(auth.FileTokenConfig{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RedirectURL:  cfg.Auth.RedirectURL,
		TokenURL:     cfg.Auth.TokenURL,
		TokenFile:    cfg.Auth.TokenFile,
	})
}

func newTransport(cfg *config.Config) *transport.Client {
	return transport.New(cfg.Eloqua.BaseURL, tokenProvider(cfg), transport.Options{
		Timeout:             cfg.HTTP.Timeout,
		MaxIdleConnsPerHost: cfg.HTTP.MaxIdleConnsPerHost,
		MaxRetries:          cfg.HTTP.MaxRetries,
		BaseDelay:           cfg.HTTP.RetryBaseDelay,
		MaxDelay:            cfg.HTTP.RetryMaxDelay,
		PageDelay:           cfg.OData.PageDelay,
	})
}

func newContactCache(cfg *config.Config, api *transport.Client) (*contacts.Cache, error) {
	var fetcher contacts.Fetcher
	if api != nil {
		fetcher = eloqua.NewContactFetcher(api, eloqua.FieldIDs{
			Role:        cfg.Eloqua.FieldIDs.Role,
			PartnerID:   cfg.Eloqua.FieldIDs.PartnerID,
			PartnerName: cfg.Eloqua.FieldIDs.PartnerName,
			Market:      cfg.Eloqua.FieldIDs.Market,
		})
	}
	return contacts.New(&contacts.FileStore{
		Path:       cfg.Contacts.CacheFile,
		LegacyPath: cfg.Contacts.LegacyCacheFile,
	}, fetcher, contacts.Options{
		Workers:      cfg.Contacts.Workers,
		RequestDelay: cfg.Contacts.RequestDelay,
	})
}

// newApp wires every collaborator. Redis, Postgres and S3 are attached
// only when configured.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}
	loc := cfg.Location()

	api := newTransport(cfg)
	cache, err := newContactCache(cfg, api)
	if err != nil {
		return nil, err
	}
	a.cache = cache

	deps := pipeline.Deps{
		Bulk: bulk.NewClient(api, bulk.Config{
			PollInterval:     cfg.Bulk.PollInterval,
			PollAttempts:     cfg.Bulk.PollAttempts,
			PageSize:         cfg.Bulk.PageSize,
			DownloadAttempts: cfg.Bulk.DownloadAttempts,
			DownloadDelay:    cfg.Bulk.DownloadDelay,
		}),
		OData: odata.NewPager(api, cfg.OData.PageSize, cfg.OData.MaxPages),
		Engine: reconcile.New(reconcile.Config{
			Location:         loc,
			ExcludedAssetIDs: cfg.Report.ExcludedAssetIDs,
			InternalDomains:  cfg.Report.InternalDomains,
			DeniedAddresses:  cfg.Report.DeniedAddresses,
		}, cache),
		Writer:  report.Writer{Location: loc},
		Metrics: a.metrics,
		Cache:   cache,
	}

	if cfg.S3.Bucket != "" && !opts.noUpload {
		up, err := upload.NewS3Uploader(ctx, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Region)
		if err != nil {
			return nil, err
		}
		if err := up.Ping(ctx); err != nil {
			return nil, err
		}
		deps.Upload = up
	}

	if cfg.Redis.URL != "" {
		rdb, err := ledger.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { rdb.Close() })
		deps.Ledger = ledger.New(rdb, ledger.Options{
			KeyPrefix: cfg.Redis.KeyPrefix,
			LockTTL:   cfg.Redis.LockTTL,
			DoneTTL:   cfg.Redis.DoneTTL,
		})
		slog.Info("run ledger enabled")

		if cfg.Redis.Queue != "" {
			deps.Notify = queue.NewPublisher(rdb, cfg.Redis.Queue)
			slog.Info("report events enabled", "queue", cfg.Redis.Queue)
		}
	}

	if cfg.Database.URL != "" {
		store, err := history.Connect(ctx, cfg.Database.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		deps.History = store
		slog.Info("run history enabled")
	}

	a.pipeline = pipeline.New(deps, pipeline.Options{
		Location:  loc,
		OutputDir: cfg.Report.OutputDir,
		Endpoints: pipeline.Endpoints{
			EmailOpens:  cfg.Eloqua.Endpoints.EmailOpens,
			EmailClicks: cfg.Eloqua.Endpoints.EmailClicks,
			Campaigns:   cfg.Eloqua.Endpoints.Campaigns,
			Users:       cfg.Eloqua.Endpoints.Users,
			EmailAssets: cfg.Eloqua.Endpoints.EmailAssets,
		},
		BounceWindowDays:   cfg.Report.BounceWindowDays,
		ActivityWindowDays: cfg.Report.ActivityWindowDays,
		ActivityChunkDays:  cfg.Report.ActivityChunkDays,
		WatchedAssetIDs:    cfg.Report.WatchedAssetIDs,
		AssetBatchSize:     cfg.Report.AssetBatchSize,
		FetchWorkers:       cfg.Pipeline.FetchWorkers,
		RangeWorkers:       cfg.Pipeline.RangeWorkers,
		SkipExisting:       cfg.Pipeline.SkipExisting || opts.skipExisting,
	})
	return a, nil
}

// close flushes metrics and releases connections.
func (a *app) close() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.TextfilePath); err != nil {
		slog.Warn("failed to write metrics textfile", "path", a.cfg.Metrics.TextfilePath, "error", err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// parseDay reads YYYY-MM-DD as a calendar date in loc.
func parseDay(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

// yesterday is the default report date in loc.
func yesterday(now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day()-1, 0, 0, 0, 0, loc)
}
