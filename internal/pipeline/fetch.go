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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/jinjernot/eloqua/internal/auth"
	"github.com/jinjernot/eloqua/internal/bulk"
	"github.com/jinjernot/eloqua/internal/eloqua"
	"github.com/jinjernot/eloqua/internal/workpool"
)

// fetchTask is one unit of the fetch stage. Opens and clicks are split
// into several tasks sharing a stream name.
type fetchTask struct {
	stream    string
	label     string
	mandatory bool
	run       func(ctx context.Context) ([]map[string]any, error)
}

// fetched is the keyed result map of the fetch stage.
type fetched struct {
	raw      map[string][]map[string]any
	counts   map[string]int
	degraded []string
}

// tasks lists every fetch for day.
func (p *Pipeline) tasks(day time.Time) []fetchTask {
	o := p.opts
	sends := eloqua.SendsExport(eloqua.DayWindow(day, 1))
	bounces := eloqua.BouncebacksExport(eloqua.DayWindow(day, o.BounceWindowDays))

	out := []fetchTask{
		{stream: eloqua.StreamSends, label: sends.ExportName, mandatory: true, run: p.bulkTask(sends)},
		{stream: eloqua.StreamBounces, label: bounces.ExportName, run: p.bulkTask(bounces)},
		{stream: eloqua.StreamCampaigns, label: eloqua.StreamCampaigns, run: p.odataTask(o.Endpoints.Campaigns, nil)},
		{stream: eloqua.StreamUsers, label: eloqua.StreamUsers, run: p.odataTask(o.Endpoints.Users, nil)},
		{stream: eloqua.StreamAssets, label: eloqua.StreamAssets, run: p.odataTask(o.Endpoints.EmailAssets, nil)},
	}

	activity := eloqua.DayWindow(day, o.ActivityWindowDays)
	for _, plan := range []eloqua.ActivityPlan{
		{Stream: eloqua.StreamOpens, Endpoint: o.Endpoints.EmailOpens},
		{Stream: eloqua.StreamClicks, Endpoint: o.Endpoints.EmailClicks},
	} {
		plan.DateField = "dateHour"
		plan.Window = activity
		plan.ChunkDays = o.ActivityChunkDays
		plan.AssetIDs = o.WatchedAssetIDs
		plan.BatchSize = o.AssetBatchSize
		for _, q := range plan.Queries() {
			out = append(out, fetchTask{stream: q.Stream, label: q.Label, run: p.odataTask(q.Endpoint, q.Params)})
		}
	}
	return out
}

func (p *Pipeline) bulkTask(spec bulk.StreamSpec) func(context.Context) ([]map[string]any, error) {
	return func(ctx context.Context) ([]map[string]any, error) {
		return p.deps.Bulk.Run(ctx, spec)
	}
}

func (p *Pipeline) odataTask(endpoint string, params url.Values) func(context.Context) ([]map[string]any, error) {
	return func(ctx context.Context) ([]map[string]any, error) {
		return p.deps.OData.Fetch(ctx, endpoint, params)
	}
}

// fetch runs every task on one bounded pool. A failed optional task
// degrades its stream to whatever other tasks returned; a failed
// mandatory task or a missing token aborts the run.
func (p *Pipeline) fetch(ctx context.Context, day time.Time) (*fetched, error) {
	tasks := p.tasks(day)
	slog.Info("fetch stage starting", "date", day.Format(time.DateOnly), "tasks", len(tasks), "workers", p.opts.FetchWorkers)

	type timed struct {
		rows []map[string]any
		took time.Duration
	}
	results, err := workpool.Map(ctx, p.opts.FetchWorkers, tasks, func(ctx context.Context, t fetchTask) (timed, error) {
		start := time.Now()
		rows, err := t.run(ctx)
		return timed{rows: rows, took: time.Since(start)}, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch stage: %w", err)
	}

	out := &fetched{raw: map[string][]map[string]any{}, counts: map[string]int{}}
	failed := map[string]error{}
	took := map[string]time.Duration{}
	for _, r := range results {
		t := r.Input
		took[t.stream] += r.Value.took
		if r.Err != nil {
			if t.mandatory || errors.Is(r.Err, auth.ErrAuthRequired) {
				p.observeStream(t.stream, 0, took[t.stream], r.Err)
				return nil, fmt.Errorf("fetch %s: %w", t.label, r.Err)
			}
			slog.Warn("stream degraded", "stream", t.stream, "task", t.label, "error", r.Err)
			if _, seen := failed[t.stream]; !seen {
				failed[t.stream] = r.Err
			}
			continue
		}
		out.raw[t.stream] = append(out.raw[t.stream], r.Value.rows...)
		slog.Info("stream task complete", "stream", t.stream, "task", t.label, "records", len(r.Value.rows), "took", r.Value.took)
	}

	for stream, n := range took {
		out.counts[stream] = len(out.raw[stream])
		p.observeStream(stream, out.counts[stream], n, failed[stream])
	}
	for stream := range failed {
		out.degraded = append(out.degraded, stream)
	}
	sort.Strings(out.degraded)
	return out, nil
}

func (p *Pipeline) observeStream(stream string, records int, took time.Duration, err error) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveStream(stream, records, took, err)
	}
}
