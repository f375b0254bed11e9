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

// Package reconcile joins the fetched activity streams of one day into
// report rows: real sends with their bounce, open and click aggregates,
// plus forwards inferred from engagement that has no matching send.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinjernot/eloqua/internal/contacts"
	"github.com/jinjernot/eloqua/internal/models"
)

// ErrNoSendsForDate aborts a report: nothing was sent on the target date.
var ErrNoSendsForDate = errors.New("no email sends for target date")

// ContactResolver looks contacts up, fetching misses. contacts.Cache
// satisfies it.
type ContactResolver interface {
	Resolve(ctx context.Context, contactIDs []string) (map[string]models.ContactRecord, contacts.ResolveStats, error)
}

// Config holds the engine's filtering rules.
type Config struct {
	Location *time.Location

	// ExcludedAssetIDs are administrative or test emails never reported.
	ExcludedAssetIDs []string

	// InternalDomains are address suffixes such as "@hp.com".
	InternalDomains []string
	DeniedAddresses []string
}

// Input is everything fetched for one target date. Opens and clicks span
// a wider window than the date; bouncebacks extend past it.
type Input struct {
	Date        time.Time
	Sends       []models.SendRecord
	Opens       []models.ActivityRecord
	Clicks      []models.ActivityRecord
	Bouncebacks []models.BouncebackRecord
	Campaigns   []models.CampaignRecord
	Users       []models.UserRecord
	Assets      []models.EmailAsset
}

// Stats counts what happened during one Build.
type Stats struct {
	RawSends          int
	UniqueSends       int
	SendsForDate      int
	ExcludedSends     int
	Sends             int
	Forwards          int
	DroppedForwards   int
	ExcludedAddresses int
	Bounced           int
	HardBounces       int
	SoftBounces       int
	Opened            int
	Clicked           int
	Contacts          contacts.ResolveStats
}

// Result is the ordered row set for one date.
type Result struct {
	Date  time.Time
	Rows  []models.ReportRow
	Stats Stats
}

// Engine reconciles the streams of one day. It holds no per-run state and
// may be reused.
type Engine struct {
	cfg      Config
	contacts ContactResolver
	excluded map[string]struct{}
	denied   map[string]struct{}
	domains  []string
}

// New creates an engine. resolver may be nil, in which case rows keep
// the attributes carried by their send records.
func New(cfg Config, resolver ContactResolver) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	e := &Engine{
		cfg:      cfg,
		contacts: resolver,
		excluded: make(map[string]struct{}, len(cfg.ExcludedAssetIDs)),
		denied:   make(map[string]struct{}, len(cfg.DeniedAddresses)),
	}
	for _, id := range cfg.ExcludedAssetIDs {
		e.excluded[strings.TrimSpace(id)] = struct{}{}
	}
	for _, a := range cfg.DeniedAddresses {
		e.denied[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	for _, d := range cfg.InternalDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			e.domains = append(e.domains, d)
		}
	}
	return e
}

type lookups struct {
	campaigns map[string]models.CampaignRecord
	users     map[string]string
	assets    map[string]models.EmailAsset
}

func newLookups(in Input) lookups {
	l := lookups{
		campaigns: make(map[string]models.CampaignRecord, len(in.Campaigns)),
		users:     make(map[string]string, len(in.Users)),
		assets:    make(map[string]models.EmailAsset, len(in.Assets)),
	}
	for _, c := range in.Campaigns {
		l.campaigns[c.CampaignID] = c
	}
	for _, u := range in.Users {
		l.users[u.UserID] = u.Name
	}
	for _, a := range in.Assets {
		l.assets[a.AssetID] = a
	}
	return l
}

// Build runs the full reconciliation for in.Date.
func (e *Engine) Build(ctx context.Context, in Input) (*Result, error) {
	loc := e.cfg.Location
	res := &Result{Date: in.Date}
	st := &res.Stats
	st.RawSends = len(in.Sends)

	unique := DedupSends(in.Sends)
	st.UniqueSends = len(unique)

	dated := FilterByDate(unique, in.Date, loc)
	st.SendsForDate = len(dated)
	if len(dated) == 0 {
		return nil, fmt.Errorf("%s: %w", in.Date.In(loc).Format(time.DateOnly), ErrNoSendsForDate)
	}

	bounces := AggregateBounces(in.Bouncebacks)
	opens := AggregateActivities(in.Opens)
	clicks := AggregateActivities(in.Clicks)
	lk := newLookups(in)

	// Real sends, minus excluded assets.
	sends := make([]models.SendRecord, 0, len(dated))
	sentPairs := make(map[models.PairKey]struct{}, len(dated))
	firstSend := make(map[string]models.SendRecord)
	for _, s := range dated {
		if e.isExcludedAsset(s.AssetID) {
			st.ExcludedSends++
			continue
		}
		sends = append(sends, s)
		sentPairs[s.Key()] = struct{}{}
		if f, ok := firstSend[s.AssetID]; !ok || s.SentAt.Before(f.SentAt) {
			firstSend[s.AssetID] = s
		}
	}

	rows := make([]models.ReportRow, 0, len(sends))
	for _, s := range sends {
		rows = append(rows, models.ReportRow{
			AssetID:          s.AssetID,
			ContactID:        s.ContactID,
			Opens:            opens[s.Key()].Count,
			Clicks:           clicks[s.Key()].Count,
			EmailName:        s.AssetName,
			EmailSubjectLine: s.SubjectLine,
			LastActivatedBy:  lk.sendUser(s),
			SentAt:           s.SentAt,
			EmailAddress:     strings.ToLower(s.EmailAddress),
			Contact:          s.Contact,
		})
	}
	rows = append(rows, e.forwards(sentPairs, firstSend, opens, clicks, lk)...)

	if err := e.enrich(ctx, rows, st); err != nil {
		return nil, err
	}

	rows = e.filter(rows, st)

	for i := range rows {
		r := &rows[i]
		if a, ok := lk.assets[r.AssetID]; ok {
			r.EmailGroup = a.EmailGroup
			if r.EmailName == "" {
				r.EmailName = a.Name
			}
			if r.EmailSubjectLine == "" {
				r.EmailSubjectLine = a.SubjectLine
			}
		}
		b := bounces[r.Key()]
		applyRates(r, b)
		e.count(r, b, st)
	}
	sortRows(rows)
	res.Rows = rows

	slog.Info("reconciliation complete",
		"date", in.Date.In(loc).Format(time.DateOnly),
		"sends", st.Sends,
		"forwards", st.Forwards,
		"bounced", st.Bounced,
		"opened", st.Opened,
		"clicked", st.Clicked,
		"excluded_sends", st.ExcludedSends,
		"excluded_addresses", st.ExcludedAddresses,
		"dropped_forwards", st.DroppedForwards,
	)
	return res, nil
}

// forwards infers rows for engagement on an asset sent today by a contact
// who received no send of it. Forward rows borrow the asset's earliest
// send for naming and date.
func (e *Engine) forwards(sentPairs map[models.PairKey]struct{}, firstSend map[string]models.SendRecord, opens, clicks map[models.PairKey]ActivityCounts, lk lookups) []models.ReportRow {
	candidates := make(map[models.PairKey]struct{})
	for _, agg := range []map[models.PairKey]ActivityCounts{opens, clicks} {
		for k := range agg {
			if _, sent := firstSend[k.AssetID]; !sent {
				continue
			}
			if _, sent := sentPairs[k]; sent || k.ContactID == "" {
				continue
			}
			candidates[k] = struct{}{}
		}
	}

	var rows []models.ReportRow
	for k := range candidates {
		o, c := opens[k], clicks[k]
		if o.Count == 0 && c.Count == 0 {
			continue
		}
		src := firstSend[k.AssetID]
		email := o.EmailAddress
		if email == "" {
			email = c.EmailAddress
		}
		rows = append(rows, models.ReportRow{
			AssetID:          k.AssetID,
			ContactID:        k.ContactID,
			Forward:          true,
			Opens:            o.Count,
			Clicks:           c.Count,
			EmailName:        src.AssetName,
			EmailSubjectLine: src.SubjectLine,
			LastActivatedBy:  lk.assetUser(k.AssetID),
			SentAt:           src.SentAt,
			EmailAddress:     strings.ToLower(email),
		})
	}
	return rows
}

// enrich substitutes cached proper-case addresses and fills contact
// attributes. Unresolvable contacts keep empty attributes.
func (e *Engine) enrich(ctx context.Context, rows []models.ReportRow, st *Stats) error {
	if e.contacts == nil || len(rows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ContactID)
	}
	resolved, cs, err := e.contacts.Resolve(ctx, ids)
	st.Contacts = cs
	if err != nil {
		return fmt.Errorf("resolve contacts: %w", err)
	}

	for i := range rows {
		r := &rows[i]
		c, ok := resolved[r.ContactID]
		if !ok {
			continue
		}
		if c.EmailAddress != "" && (r.EmailAddress == "" || strings.ToLower(c.EmailAddress) == r.EmailAddress) {
			r.EmailAddress = c.EmailAddress
		}
		if r.Forward {
			r.Contact = c.Attributes()
			continue
		}
		r.Contact = fillBlank(r.Contact, c.Attributes())
	}
	return nil
}

func fillBlank(have, from models.ContactAttributes) models.ContactAttributes {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return models.ContactAttributes{
		Country:     pick(have.Country, from.Country),
		Role:        pick(have.Role, from.Role),
		PartnerID:   pick(have.PartnerID, from.PartnerID),
		PartnerName: pick(have.PartnerName, from.PartnerName),
		Market:      pick(have.Market, from.Market),
	}
}

// filter drops internal and denied addresses, then any forward whose
// asset no longer has a surviving real send.
func (e *Engine) filter(rows []models.ReportRow, st *Stats) []models.ReportRow {
	kept := rows[:0]
	liveAssets := make(map[string]struct{})
	for _, r := range rows {
		if e.isExcludedAddress(r.EmailAddress) {
			st.ExcludedAddresses++
			continue
		}
		if !r.Forward {
			liveAssets[r.AssetID] = struct{}{}
		}
		kept = append(kept, r)
	}

	out := kept[:0]
	for _, r := range kept {
		if r.Forward {
			if _, ok := liveAssets[r.AssetID]; !ok {
				st.DroppedForwards++
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func (e *Engine) count(r *models.ReportRow, b BounceCounts, st *Stats) {
	if r.Forward {
		st.Forwards++
	} else {
		st.Sends++
		st.Bounced += b.Total
		st.HardBounces += b.Hard
		st.SoftBounces += b.Soft
	}
	if r.Opens > 0 {
		st.Opened++
	}
	if r.Clicks > 0 {
		st.Clicked++
	}
}

func (e *Engine) isExcludedAsset(id string) bool {
	_, ok := e.excluded[id]
	return ok
}

func (e *Engine) isExcludedAddress(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return false
	}
	if _, ok := e.denied[addr]; ok {
		return true
	}
	for _, d := range e.domains {
		if strings.HasSuffix(addr, d) {
			return true
		}
	}
	return false
}

// sendUser attributes a real send: campaign creator, else the campaign's
// last activator, else the email asset's creator.
func (l lookups) sendUser(s models.SendRecord) string {
	if c, ok := l.campaigns[s.CampaignID]; ok && s.CampaignID != "" {
		for _, id := range []string{c.CreatedByUserID, c.LastActivatedByUserID} {
			if name := l.users[id]; id != "" && name != "" {
				return name
			}
		}
	}
	return l.assetUser(s.AssetID)
}

// assetUser attributes by email asset creator; forwards carry no campaign.
func (l lookups) assetUser(assetID string) string {
	a, ok := l.assets[assetID]
	if !ok || a.CreatedByUserID == "" {
		return ""
	}
	return l.users[a.CreatedByUserID]
}
