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
	"time"

	"github.com/jinjernot/eloqua/internal/auth"
	"github.com/jinjernot/eloqua/internal/history"
	"github.com/jinjernot/eloqua/internal/workpool"
)

// RangeRequest defines the scope of a multi-day run.
type RangeRequest struct {
	From time.Time
	To   time.Time // inclusive
}

// DayResult tracks one date of a range run.
type DayResult struct {
	Date time.Time
	Run  *Run
	Err  error
}

// RangeResult summarises a completed range run.
type RangeResult struct {
	Days      []DayResult
	Succeeded int
	Degraded  int
	Skipped   int
	Empty     int
	Failed    int
	Elapsed   time.Duration
}

// Dates lists every calendar date of req in the report zone.
func (p *Pipeline) Dates(req RangeRequest) ([]time.Time, error) {
	from, to := p.Day(req.From), p.Day(req.To)
	if to.Before(from) {
		return nil, fmt.Errorf("range end %s is before start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

// RunRange generates reports for every date in req, RangeWorkers dates at
// a time. A failed date never stops the others; only cancellation or a
// missing token ends the range early.
func (p *Pipeline) RunRange(ctx context.Context, req RangeRequest) (*RangeResult, error) {
	days, err := p.Dates(req)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	slog.Info("starting range run",
		"from", days[0].Format(time.DateOnly),
		"to", days[len(days)-1].Format(time.DateOnly),
		"days", len(days),
		"workers", p.opts.RangeWorkers,
	)

	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	results, _ := workpool.Map(ctx, p.opts.RangeWorkers, days, func(ctx context.Context, day time.Time) (*Run, error) {
		run, err := p.RunDate(ctx, day)
		if errors.Is(err, auth.ErrAuthRequired) {
			cancel()
		}
		return run, err
	})

	res := &RangeResult{}
	var authErr error
	for _, r := range results {
		res.Days = append(res.Days, DayResult{Date: r.Input, Run: r.Value, Err: r.Err})
		switch {
		case r.Err == nil && r.Value != nil && r.Value.Status == history.StatusSkipped:
			res.Skipped++
		case r.Err == nil && r.Value != nil && r.Value.Status == history.StatusDegraded:
			res.Degraded++
		case r.Err == nil:
			res.Succeeded++
		case IsNoSends(r.Err):
			res.Empty++
			slog.Info("no sends for date", "date", r.Input.Format(time.DateOnly))
		default:
			res.Failed++
			if errors.Is(r.Err, auth.ErrAuthRequired) && authErr == nil {
				authErr = r.Err
			}
			slog.Error("range date failed", "date", r.Input.Format(time.DateOnly), "error", r.Err)
		}
	}
	res.Elapsed = time.Since(start)

	slog.Info("range run complete",
		"succeeded", res.Succeeded,
		"degraded", res.Degraded,
		"skipped", res.Skipped,
		"empty", res.Empty,
		"failed", res.Failed,
		"elapsed", res.Elapsed,
	)

	if authErr != nil {
		return res, authErr
	}
	if err := parent.Err(); err != nil {
		return res, err
	}
	return res, nil
}
