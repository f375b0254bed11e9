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
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinjernot/eloqua/internal/auth"
	"github.com/jinjernot/eloqua/internal/bulk"
	"github.com/jinjernot/eloqua/internal/eloqua"
	"github.com/jinjernot/eloqua/internal/history"
	"github.com/jinjernot/eloqua/internal/ledger"
	"github.com/jinjernot/eloqua/internal/metrics"
	"github.com/jinjernot/eloqua/internal/queue"
	"github.com/jinjernot/eloqua/internal/reconcile"
	"github.com/jinjernot/eloqua/internal/report"
)

var day = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

type fakeBulk struct {
	mu    sync.Mutex
	calls []bulk.StreamSpec
	fn    func(spec bulk.StreamSpec) ([]map[string]any, error)
}

func (f *fakeBulk) Run(_ context.Context, spec bulk.StreamSpec) ([]map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()
	return f.fn(spec)
}

type fakeOData struct {
	mu    sync.Mutex
	calls []string
	data  map[string][]map[string]any
	errs  map[string]error
}

func (f *fakeOData) Fetch(_ context.Context, endpoint string, params url.Values) ([]map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, endpoint+"?"+params.Encode())
	f.mu.Unlock()
	if err := f.errs[endpoint]; err != nil {
		return nil, err
	}
	return f.data[endpoint], nil
}

type fakeHistory struct {
	mu       sync.Mutex
	started  []string
	finished []history.Run
}

func (f *fakeHistory) Start(_ context.Context, runID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, runID)
	return nil
}

func (f *fakeHistory) Finish(_ context.Context, r history.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, r)
	return nil
}

type fakeUpload struct {
	err  error
	keys []string
}

func (f *fakeUpload) Upload(_ context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := "reports/" + filepath.Base(path)
	f.keys = append(f.keys, key)
	return key, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []queue.ReportEvent
}

func (f *fakeNotifier) PublishReport(_ context.Context, ev queue.ReportEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

var endpoints = Endpoints{
	EmailOpens:  "/opens",
	EmailClicks: "/clicks",
	Campaigns:   "/campaigns",
	Users:       "/users",
	EmailAssets: "/assets",
}

func sendRow(asset, contact, date string) map[string]any {
	return map[string]any{
		"ActivityId":   asset + "-" + contact + "-" + date,
		"AssetId":      asset,
		"ContactId":    contact,
		"ActivityDate": date + " 09:00:00",
		"EmailAddress": strings.ToLower(contact) + "@example.com",
		"AssetName":    "Email " + asset,
		"SubjectLine":  "Subject " + asset,
		"CampaignId":   "55",
	}
}

// sendsFor returns the bulk fake used by most tests: sends dated in the
// export filter's window, and no bouncebacks.
func sendsFor(rows func(date string) []map[string]any) func(bulk.StreamSpec) ([]map[string]any, error) {
	return func(spec bulk.StreamSpec) ([]map[string]any, error) {
		if spec.Stream != eloqua.StreamSends {
			return nil, nil
		}
		for _, d := range []string{"2025-01-09", "2025-01-10", "2025-01-11", "2025-01-12"} {
			if strings.Contains(spec.Filter, ">= '"+d) {
				return rows(d), nil
			}
		}
		return nil, nil
	}
}

func defaultSends(date string) []map[string]any {
	return []map[string]any{sendRow("1", "A", date), sendRow("2", "B", date)}
}

type harness struct {
	p       *Pipeline
	bulk    *fakeBulk
	odata   *fakeOData
	history *fakeHistory
	metrics *metrics.Metrics
	ledger  *ledger.Ledger
	dir     string
}

func newHarness(t *testing.T, mutate func(*Deps, *Options)) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := &harness{
		bulk: &fakeBulk{fn: sendsFor(defaultSends)},
		odata: &fakeOData{data: map[string][]map[string]any{
			"/opens":     {{"emailID": "2", "contactID": "A", "dateHour": "2025-01-10T12:00:00"}},
			"/campaigns": {{"eloquaCampaignId": "55", "createdBy": "7"}},
			"/users":     {{"userID": "7", "userName": "Ana Lopez"}},
			"/assets":    {{"emailID": "1", "emailGroup": "Partners"}},
		}},
		history: &fakeHistory{},
		metrics: metrics.New(),
		ledger:  ledger.New(rdb, ledger.Options{KeyPrefix: "t:"}),
		dir:     t.TempDir(),
	}
	deps := Deps{
		Bulk:    h.bulk,
		OData:   h.odata,
		Engine:  reconcile.New(reconcile.Config{Location: time.UTC}, nil),
		Writer:  report.Writer{Location: time.UTC},
		Ledger:  h.ledger,
		History: h.history,
		Metrics: h.metrics,
	}
	opts := Options{
		Location:           time.UTC,
		OutputDir:          h.dir,
		Endpoints:          endpoints,
		ActivityWindowDays: 1,
		FetchWorkers:       4,
	}
	if mutate != nil {
		mutate(&deps, &opts)
	}
	h.p = New(deps, opts)
	return h
}

// TestRunDate_WritesReport verifies a successful run writes the report.
func TestRunDate_WritesReport(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	run, err := h.p.RunDate(ctx, day.Add(15*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, history.StatusSucceeded, run.Status)
	assert.Equal(t, filepath.Join(h.dir, "2025-01-10.csv"), run.Path)
	assert.Equal(t, 3, run.Rows, "two sends and one forward")
	assert.Empty(t, run.Degraded)
	assert.Equal(t, 2, run.Streams[eloqua.StreamSends])
	assert.Equal(t, 1, run.Streams[eloqua.StreamOpens])

	rows, err := report.Read(run.Path, time.UTC)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Ana Lopez", rows[0].LastActivatedBy)
	assert.Equal(t, "Partners", rows[0].EmailGroup)
	assert.Equal(t, 1, report.Summarize(rows).Forwards)

	entry, done, err := h.ledger.Done(ctx, day)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, run.Path, entry.Path)

	require.Len(t, h.history.finished, 1)
	assert.Equal(t, run.RunID, h.history.started[0])
	assert.Equal(t, history.StatusSucceeded, h.history.finished[0].Status)
	assert.Equal(t, 2, h.history.finished[0].Sends)
	assert.Equal(t, 1, h.history.finished[0].Forwards)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.StreamRecords.WithLabelValues(eloqua.StreamSends)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ReportRows.WithLabelValues("forward")))

	var sendSpec bulk.StreamSpec
	for _, c := range h.bulk.calls {
		if c.Stream == eloqua.StreamSends {
			sendSpec = c
		}
	}
	assert.Contains(t, sendSpec.Filter, ">= '2025-01-10T00:00:00Z'")
}

// TestRunDate_OptionalStreamFailureDegrades verifies an optional stream failure degrades the run.
func TestRunDate_OptionalStreamFailureDegrades(t *testing.T) {
	h := newHarness(t, nil)
	base := h.bulk.fn
	h.bulk.fn = func(spec bulk.StreamSpec) ([]map[string]any, error) {
		if spec.Stream == eloqua.StreamBounces {
			return nil, bulk.ErrSyncTimeout
		}
		return base(spec)
	}
	h.odata.errs = map[string]error{"/users": errors.New("HTTP 500")}

	run, err := h.p.RunDate(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, history.StatusDegraded, run.Status)
	assert.Equal(t, []string{eloqua.StreamBounces, eloqua.StreamUsers}, run.Degraded)
	assert.FileExists(t, run.Path)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StreamFailuresTotal.WithLabelValues(eloqua.StreamBounces)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues("degraded")))
}

// TestRunDate_SendStreamFailureAborts verifies a send stream failure aborts the run.
func TestRunDate_SendStreamFailureAborts(t *testing.T) {
	h := newHarness(t, nil)
	h.bulk.fn = func(spec bulk.StreamSpec) ([]map[string]any, error) {
		if spec.Stream == eloqua.StreamSends {
			return nil, &bulk.DownloadError{Stream: spec.Stream, Attempts: 3, Err: errors.New("EOF")}
		}
		return nil, nil
	}

	run, err := h.p.RunDate(context.Background(), day)
	var de *bulk.DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, history.StatusFailed, run.Status)
	assert.NoFileExists(t, filepath.Join(h.dir, "2025-01-10.csv"))

	require.Len(t, h.history.finished, 1)
	assert.Equal(t, history.StatusFailed, h.history.finished[0].Status)
	assert.NotEmpty(t, h.history.finished[0].Error)

	_, done, err := h.ledger.Done(context.Background(), day)
	require.NoError(t, err)
	assert.False(t, done)
}

// TestRunDate_AuthFailureAborts verifies an authorization failure aborts the run.
func TestRunDate_AuthFailureAborts(t *testing.T) {
	h := newHarness(t, nil)
	h.odata.errs = map[string]error{"/campaigns": auth.ErrAuthRequired}

	_, err := h.p.RunDate(context.Background(), day)
	assert.ErrorIs(t, err, auth.ErrAuthRequired)
}

// TestRunDate_NoSends verifies a date without sends is reported as such.
func TestRunDate_NoSends(t *testing.T) {
	h := newHarness(t, nil)
	h.bulk.fn = sendsFor(func(string) []map[string]any { return nil })

	_, err := h.p.RunDate(context.Background(), day)
	assert.True(t, IsNoSends(err))
}

// TestRunDate_SkipExisting verifies dates with a report are skipped.
func TestRunDate_SkipExisting(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) { o.SkipExisting = true })
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "2025-01-10.csv"), []byte("x"), 0o644))
	run, err := h.p.RunDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, history.StatusSkipped, run.Status)

	require.NoError(t, h.ledger.MarkDone(ctx, day.AddDate(0, 0, 1), ledger.Entry{Path: "elsewhere"}))
	run, err = h.p.RunDate(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, history.StatusSkipped, run.Status)

	assert.Empty(t, h.bulk.calls)
	assert.Empty(t, h.history.started)
}

// TestReset_RegeneratesSkippedDate verifies a reset date is generated again
// even when existing reports are skipped.
func TestReset_RegeneratesSkippedDate(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) { o.SkipExisting = true })
	ctx := context.Background()

	first, err := h.p.RunDate(ctx, day)
	require.NoError(t, err)
	require.Equal(t, history.StatusSucceeded, first.Status)

	run, err := h.p.RunDate(ctx, day)
	require.NoError(t, err)
	require.Equal(t, history.StatusSkipped, run.Status)

	require.NoError(t, h.p.Reset(ctx, day))
	assert.NoFileExists(t, first.Path)
	_, done, err := h.ledger.Done(ctx, day)
	require.NoError(t, err)
	assert.False(t, done)

	run, err = h.p.RunDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, history.StatusSucceeded, run.Status)
	assert.NotEqual(t, first.RunID, run.RunID)

	require.NoError(t, h.p.Reset(ctx, day.AddDate(0, 0, 5)), "resetting a date never generated is a no-op")
}

// TestRunDate_LockedDate verifies a date locked by another run is skipped.
func TestRunDate_LockedDate(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	release, err := h.ledger.Lock(ctx, day)
	require.NoError(t, err)
	defer release(ctx)

	_, err = h.p.RunDate(ctx, day)
	assert.ErrorIs(t, err, ledger.ErrLocked)
	assert.Empty(t, h.bulk.calls)
}

// TestRunDate_Upload verifies the report is uploaded after writing.
func TestRunDate_Upload(t *testing.T) {
	up := &fakeUpload{}
	h := newHarness(t, func(d *Deps, _ *Options) { d.Upload = up })

	run, err := h.p.RunDate(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, "reports/2025-01-10.csv", run.UploadKey)

	up.err = errors.New("access denied")
	run, err = h.p.RunDate(context.Background(), day.AddDate(0, 0, 1))
	require.NoError(t, err, "upload failure never fails the run")
	assert.Equal(t, history.StatusDegraded, run.Status)
	assert.Contains(t, run.Degraded, "upload")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.UploadsTotal.WithLabelValues("error")))
}

// TestRunDate_PublishesReportEvent verifies a report event is published after a run.
func TestRunDate_PublishesReportEvent(t *testing.T) {
	n := &fakeNotifier{}
	h := newHarness(t, func(d *Deps, _ *Options) { d.Notify = n })

	run, err := h.p.RunDate(context.Background(), day)
	require.NoError(t, err)

	h.bulk.fn = sendsFor(func(string) []map[string]any { return nil })
	_, err = h.p.RunDate(context.Background(), day.AddDate(0, 0, 1))
	require.True(t, IsNoSends(err))

	require.Len(t, n.events, 1, "only written reports are announced")
	ev := n.events[0]
	assert.Equal(t, run.RunID, ev.RunID)
	assert.Equal(t, "2025-01-10", ev.ReportDate)
	assert.Equal(t, run.Path, ev.Path)
	assert.Equal(t, 3, ev.Rows)
	assert.Equal(t, history.StatusSucceeded, ev.Status)
}

// TestTasks_SplitsActivityQueries verifies activity streams are split into tasks.
func TestTasks_SplitsActivityQueries(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) {
		o.ActivityWindowDays = 14
		o.ActivityChunkDays = 7
		o.WatchedAssetIDs = []string{"1", "2", "3"}
		o.AssetBatchSize = 2
	})

	tasks := h.p.tasks(day)
	count := map[string]int{}
	mandatory := 0
	for _, tk := range tasks {
		count[tk.stream]++
		if tk.mandatory {
			mandatory++
		}
	}
	assert.Equal(t, 4, count[eloqua.StreamOpens])
	assert.Equal(t, 4, count[eloqua.StreamClicks])
	assert.Equal(t, 1, count[eloqua.StreamSends])
	assert.Equal(t, 1, mandatory)
	assert.Len(t, tasks, 13)
}

// TestRunRange verifies each date in a range is run.
func TestRunRange(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) { o.RangeWorkers = 2 })
	h.bulk.fn = sendsFor(func(date string) []map[string]any {
		if date == "2025-01-11" {
			return nil
		}
		return defaultSends(date)
	})

	res, err := h.p.RunRange(context.Background(), RangeRequest{From: day, To: day.AddDate(0, 0, 2)})
	require.NoError(t, err)
	require.Len(t, res.Days, 3)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Empty)
	assert.Zero(t, res.Failed)

	assert.FileExists(t, filepath.Join(h.dir, "2025-01-10.csv"))
	assert.NoFileExists(t, filepath.Join(h.dir, "2025-01-11.csv"))
	assert.FileExists(t, filepath.Join(h.dir, "2025-01-12.csv"))
}

// TestRunRange_AuthStopsRange verifies an authorization failure stops the range.
func TestRunRange_AuthStopsRange(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) { o.RangeWorkers = 1 })
	h.bulk.fn = func(bulk.StreamSpec) ([]map[string]any, error) {
		return nil, auth.ErrAuthRequired
	}

	res, err := h.p.RunRange(context.Background(), RangeRequest{From: day, To: day.AddDate(0, 0, 3)})
	assert.ErrorIs(t, err, auth.ErrAuthRequired)
	assert.Equal(t, 4, res.Failed)
	assert.Len(t, h.history.started, 1, "later dates never start")
}

// TestDates verifies inclusive date range expansion.
func TestDates(t *testing.T) {
	h := newHarness(t, nil)

	days, err := h.p.Dates(RangeRequest{From: day, To: day.AddDate(0, 0, 1).Add(5 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day, day.AddDate(0, 0, 1)}, days)

	_, err = h.p.Dates(RangeRequest{From: day, To: day.AddDate(0, 0, -1)})
	assert.Error(t, err)
}
