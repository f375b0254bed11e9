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

// Package eloqua knows the shape of Eloqua's data: which bulk fields to
// export, how filters are written, how OData queries are split to stay
// under result caps, and how raw payloads become typed records.
package eloqua

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinjernot/eloqua/internal/bulk"
)

// Stream names, used as fetch task keys and log labels.
const (
	StreamSends     = "EmailSend"
	StreamBounces   = "Bounceback"
	StreamOpens     = "EmailOpen"
	StreamClicks    = "EmailClickthrough"
	StreamCampaigns = "Campaign"
	StreamUsers     = "User"
	StreamAssets    = "EmailAsset"
)

// SendFields is the EmailSend export field map.
var SendFields = map[string]string{
	"ActivityId":       "{{Activity.Id}}",
	"ActivityType":     "{{Activity.Type}}",
	"ActivityDate":     "{{Activity.CreatedAt}}",
	"EmailAddress":     "{{Activity.Field(EmailAddress)}}",
	"ContactId":        "{{Activity.Contact.Id}}",
	"AssetType":        "{{Activity.Asset.Type}}",
	"AssetName":        "{{Activity.Asset.Name}}",
	"AssetId":          "{{Activity.Asset.Id}}",
	"CampaignId":       "{{Activity.Campaign.Id}}",
	"ExternalId":       "{{Activity.ExternalId}}",
	"EmailRecipientId": "{{Activity.Field(EmailRecipientId)}}",
	"DeploymentId":     "{{Activity.Field(EmailDeploymentId)}}",
	"SubjectLine":      "{{Activity.Field(SubjectLine)}}",
	"EmailSendType":    "{{Activity.Field(EmailSendType)}}",
	"ContactCountry":   "{{Activity.Contact.Field(C_Country)}}",
}

// BouncebackFields is the Bounceback export field map.
var BouncebackFields = map[string]string{
	"ActivityId":       "{{Activity.Id}}",
	"ActivityType":     "{{Activity.Type}}",
	"ActivityDate":     "{{Activity.CreatedAt}}",
	"EmailAddress":     "{{Activity.Field(EmailAddress)}}",
	"ContactId":        "{{Activity.Contact.Id}}",
	"AssetType":        "{{Activity.Asset.Type}}",
	"AssetName":        "{{Activity.Asset.Name}}",
	"AssetId":          "{{Activity.Asset.Id}}",
	"CampaignId":       "{{Activity.Campaign.Id}}",
	"ExternalId":       "{{Activity.ExternalId}}",
	"EmailRecipientId": "{{Activity.Field(EmailRecipientId)}}",
	"DeploymentId":     "{{Activity.Field(EmailDeploymentId)}}",
	"SmtpErrorCode":    "{{Activity.Field(SmtpErrorCode)}}",
	"SmtpStatusCode":   "{{Activity.Field(SmtpStatusCode)}}",
	"SmtpMessage":      "{{Activity.Field(SmtpMessage)}}",
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// DayWindow returns the window starting at midnight of day (in day's
// location) and spanning days calendar days.
func DayWindow(day time.Time, days int) Window {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Window{Start: start, End: start.AddDate(0, 0, days)}
}

// Chunks splits w into consecutive windows of at most days calendar days.
func (w Window) Chunks(days int) []Window {
	if days <= 0 {
		return []Window{w}
	}
	var out []Window
	for s := w.Start; s.Before(w.End); {
		e := s.AddDate(0, 0, days)
		if e.After(w.End) {
			e = w.End
		}
		out = append(out, Window{Start: s, End: e})
		s = e
	}
	return out
}

const filterTimeLayout = "2006-01-02T15:04:05Z"

// ExportFilter builds a bulk activity filter for one activity type over w.
func ExportFilter(activityType string, w Window) string {
	return fmt.Sprintf("'{{Activity.Type}}' = '%s' AND '{{Activity.CreatedAt}}' >= '%s' AND '{{Activity.CreatedAt}}' < '%s'",
		activityType,
		w.Start.UTC().Format(filterTimeLayout),
		w.End.UTC().Format(filterTimeLayout),
	)
}

// SendsExport is the export spec for the day's EmailSend activities.
func SendsExport(w Window) bulk.StreamSpec {
	return exportSpec(StreamSends, SendFields, w)
}

// BouncebacksExport is the export spec for bounces over w.
func BouncebacksExport(w Window) bulk.StreamSpec {
	return exportSpec(StreamBounces, BouncebackFields, w)
}

func exportSpec(activityType string, fields map[string]string, w Window) bulk.StreamSpec {
	return bulk.StreamSpec{
		Stream:     activityType,
		ExportName: fmt.Sprintf("Bulk_%s_%s_%s", activityType, w.Start.Format(time.DateOnly), uuid.NewString()[:8]),
		Fields:     fields,
		Filter:     ExportFilter(activityType, w),
	}
}

// ODataQuery is one synchronous query in a fetch plan.
type ODataQuery struct {
	Stream   string
	Label    string
	Endpoint string
	Params   url.Values
}

// ActivityPlan describes how to fetch an engagement stream.
type ActivityPlan struct {
	Stream    string
	Endpoint  string
	DateField string
	Window    Window
	ChunkDays int
	// AssetIDs, when set, restricts queries to these emails. The set is
	// split into batches of BatchSize so no single query hits the row cap.
	AssetIDs  []string
	AssetKey  string
	BatchSize int
}

// Queries expands the plan into window chunks times asset batches.
func (p ActivityPlan) Queries() []ODataQuery {
	assetKey := p.AssetKey
	if assetKey == "" {
		assetKey = "emailID"
	}
	batches := batchIDs(p.AssetIDs, p.BatchSize)

	var out []ODataQuery
	for _, chunk := range p.Window.Chunks(p.ChunkDays) {
		for bi, batch := range batches {
			label := p.Stream + " " + chunk.Start.Format(time.DateOnly)
			if len(batch) > 0 {
				label = fmt.Sprintf("%s batch %d", label, bi+1)
			}
			out = append(out, ODataQuery{
				Stream:   p.Stream,
				Label:    label,
				Endpoint: p.Endpoint,
				Params:   url.Values{"$filter": {ODataFilter(p.DateField, chunk, assetKey, batch)}},
			})
		}
	}
	return out
}

// batchIDs always returns at least one (possibly nil) batch.
func batchIDs(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return [][]string{nil}
	}
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		out = append(out, ids[i:end])
	}
	return out
}

var numericID = regexp.MustCompile(`^[0-9]+$`)

// ODataFilter builds a $filter over a date field, optionally restricted
// to a set of asset ids.
func ODataFilter(dateField string, w Window, assetKey string, assetIDs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s ge %s and %s lt %s",
		dateField, w.Start.UTC().Format(filterTimeLayout),
		dateField, w.End.UTC().Format(filterTimeLayout),
	)
	if len(assetIDs) > 0 {
		terms := make([]string, len(assetIDs))
		for i, id := range assetIDs {
			if numericID.MatchString(id) {
				terms[i] = fmt.Sprintf("%s eq %s", assetKey, id)
			} else {
				terms[i] = fmt.Sprintf("%s eq '%s'", assetKey, strings.ReplaceAll(id, "'", "''"))
			}
		}
		fmt.Fprintf(&b, " and (%s)", strings.Join(terms, " or "))
	}
	return b.String()
}
