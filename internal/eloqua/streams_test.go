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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	require.NoError(t, err)
	return d
}

// TestExportFilter verifies the bulk export date filter expression.
func TestExportFilter(t *testing.T) {
	w := DayWindow(day(t, "2025-01-10"), 1)

	got := ExportFilter("EmailSend", w)
	assert.Equal(t,
		"'{{Activity.Type}}' = 'EmailSend' AND '{{Activity.CreatedAt}}' >= '2025-01-10T00:00:00Z' AND '{{Activity.CreatedAt}}' < '2025-01-11T00:00:00Z'",
		got)
}

// TestExportFilter_ConvertsToUTC verifies filter bounds are converted to UTC.
func TestExportFilter_ConvertsToUTC(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	w := DayWindow(time.Date(2025, 1, 10, 15, 0, 0, 0, ny), 1)
	got := ExportFilter("Bounceback", w)
	assert.Contains(t, got, ">= '2025-01-10T05:00:00Z'")
	assert.Contains(t, got, "< '2025-01-11T05:00:00Z'")
}

// TestSendsExport verifies the email send export definition.
func TestSendsExport(t *testing.T) {
	spec := SendsExport(DayWindow(day(t, "2025-01-10"), 1))

	assert.Equal(t, StreamSends, spec.Stream)
	assert.True(t, strings.HasPrefix(spec.ExportName, "Bulk_EmailSend_2025-01-10_"))
	assert.Equal(t, "{{Activity.Asset.Id}}", spec.Fields["AssetId"])
	assert.Contains(t, spec.Filter, "'EmailSend'")

	other := SendsExport(DayWindow(day(t, "2025-01-10"), 1))
	assert.NotEqual(t, spec.ExportName, other.ExportName, "export names must be unique per run")
}

// TestBouncebacksExport_UsesSMTPFields verifies the bounceback export selects the SMTP fields.
func TestBouncebacksExport_UsesSMTPFields(t *testing.T) {
	spec := BouncebacksExport(DayWindow(day(t, "2025-01-10"), 7))

	assert.Equal(t, "{{Activity.Field(SmtpStatusCode)}}", spec.Fields["SmtpStatusCode"])
	assert.Contains(t, spec.Filter, "< '2025-01-17T00:00:00Z'")
}

// TestWindowChunks verifies a date window is split into fixed size chunks.
func TestWindowChunks(t *testing.T) {
	w := DayWindow(day(t, "2025-01-10"), 10)

	chunks := w.Chunks(4)
	require.Len(t, chunks, 3)
	assert.Equal(t, day(t, "2025-01-10"), chunks[0].Start)
	assert.Equal(t, day(t, "2025-01-14"), chunks[1].Start)
	assert.Equal(t, day(t, "2025-01-18"), chunks[2].Start)
	assert.Equal(t, day(t, "2025-01-20"), chunks[2].End)

	assert.Equal(t, []Window{w}, w.Chunks(0))
}

// TestActivityPlan_Queries verifies one query per window chunk and asset batch.
func TestActivityPlan_Queries(t *testing.T) {
	plan := ActivityPlan{
		Stream:    StreamOpens,
		Endpoint:  "/API/OData/ActivityDetails/1/EmailOpen",
		DateField: "dateHour",
		Window:    DayWindow(day(t, "2025-01-10"), 14),
		ChunkDays: 7,
		AssetIDs:  []string{"1", "2", "3"},
		BatchSize: 2,
	}

	qs := plan.Queries()
	require.Len(t, qs, 4, "2 window chunks x 2 asset batches")

	assert.Equal(t, "EmailOpen 2025-01-10 batch 1", qs[0].Label)
	assert.Equal(t,
		"dateHour ge 2025-01-10T00:00:00Z and dateHour lt 2025-01-17T00:00:00Z and (emailID eq 1 or emailID eq 2)",
		qs[0].Params.Get("$filter"))
	assert.Equal(t,
		"dateHour ge 2025-01-17T00:00:00Z and dateHour lt 2025-01-24T00:00:00Z and (emailID eq 3)",
		qs[3].Params.Get("$filter"))
}

// TestActivityPlan_NoAssetsSingleBatch verifies a plan without assets issues one query.
func TestActivityPlan_NoAssetsSingleBatch(t *testing.T) {
	plan := ActivityPlan{
		Stream:    StreamClicks,
		DateField: "dateHour",
		Window:    DayWindow(day(t, "2025-01-10"), 3),
	}

	qs := plan.Queries()
	require.Len(t, qs, 1)
	assert.Equal(t, "EmailClickthrough 2025-01-10", qs[0].Label)
	assert.NotContains(t, qs[0].Params.Get("$filter"), "emailID")
}

// TestODataFilter_QuotesNonNumericIDs verifies non numeric ids are quoted in filters.
func TestODataFilter_QuotesNonNumericIDs(t *testing.T) {
	got := ODataFilter("dateHour", DayWindow(day(t, "2025-01-10"), 1), "emailID", []string{"a'b"})
	assert.True(t, strings.HasSuffix(got, "(emailID eq 'a''b')"))
}
