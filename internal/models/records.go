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

// Package models defines the record types shared across the report pipeline.
// Raw vendor payloads are normalised into these types at the ingestion
// boundary (see package eloqua); nothing downstream touches untyped maps.
package models

import "time"

// SendType distinguishes a real send from an inferred forward.
type SendType string

const (
	SendTypeSend    SendType = "Send"
	SendTypeForward SendType = "Forward"
)

// ActivityKind is the engagement type of an ActivityRecord.
type ActivityKind string

const (
	ActivityOpen  ActivityKind = "Open"
	ActivityClick ActivityKind = "Click"
)

// PairKey is the join key used throughout reconciliation.
type PairKey struct {
	AssetID   string
	ContactID string
}

// ContactAttributes is the contact snapshot carried on a send and on a row.
type ContactAttributes struct {
	Country     string
	Role        string
	PartnerID   string
	PartnerName string
	Market      string
}

// SendRecord is one EmailSend activity from the bulk export.
type SendRecord struct {
	ActivityID   string
	AssetID      string
	ContactID    string
	SendType     SendType
	SentAt       time.Time
	CampaignID   string
	EmailAddress string
	SubjectLine  string
	AssetName    string
	Contact      ContactAttributes
}

// Key returns the (asset, contact) pair of the send.
func (s SendRecord) Key() PairKey {
	return PairKey{AssetID: s.AssetID, ContactID: s.ContactID}
}

// ActivityRecord is one open or click.
type ActivityRecord struct {
	Kind         ActivityKind
	AssetID      string
	ContactID    string
	OccurredAt   time.Time
	EmailAddress string
	CampaignID   string
}

// Key returns the (asset, contact) pair of the activity.
func (a ActivityRecord) Key() PairKey {
	return PairKey{AssetID: a.AssetID, ContactID: a.ContactID}
}

// BouncebackRecord is one bounceback activity.
type BouncebackRecord struct {
	ActivityID     string
	AssetID        string
	ContactID      string
	IsHard         bool
	OccurredAt     time.Time
	EmailAddress   string
	SMTPStatusCode string
}

// Key returns the (asset, contact) pair of the bounce.
func (b BouncebackRecord) Key() PairKey {
	return PairKey{AssetID: b.AssetID, ContactID: b.ContactID}
}

// ContactRecord is the cached REST view of a contact. The JSON tags are the
// on-disk cache format and must stay stable across releases.
type ContactRecord struct {
	ContactID    string `json:"id,omitempty"`
	EmailAddress string `json:"emailAddress"`
	Country      string `json:"country"`
	Role         string `json:"hp_role"`
	PartnerID    string `json:"hp_partner_id"`
	PartnerName  string `json:"partner_name"`
	Market       string `json:"market"`
}

// Attributes returns the contact's report attributes.
func (c ContactRecord) Attributes() ContactAttributes {
	return ContactAttributes{
		Country:     c.Country,
		Role:        c.Role,
		PartnerID:   c.PartnerID,
		PartnerName: c.PartnerName,
		Market:      c.Market,
	}
}

// CampaignRecord maps a campaign to the users that own it.
type CampaignRecord struct {
	CampaignID            string
	Name                  string
	CreatedByUserID       string
	LastActivatedByUserID string
}

// UserRecord maps a user id to a display name.
type UserRecord struct {
	UserID string
	Name   string
}

// EmailAsset carries email-level metadata used for Email Group and for
// attributing forwards, which have no campaign id.
type EmailAsset struct {
	AssetID         string
	Name            string
	SubjectLine     string
	EmailGroup      string
	CreatedByUserID string
}

// ReportRow is one output line: a real send or an inferred forward.
type ReportRow struct {
	AssetID   string
	ContactID string
	Forward   bool
	Opens     int
	Clicks    int

	EmailName              string
	EmailSubjectLine       string
	LastActivatedBy        string
	TotalDelivered         int
	TotalHardBouncebacks   int
	TotalSends             int
	TotalSoftBouncebacks   int
	TotalBouncebacks       int
	UniqueOpens            int
	HardBouncebackRate     int
	SoftBouncebackRate     int
	BouncebackRate         int
	ClickthroughRate       int
	UniqueClickthroughRate int
	DeliveredRate          int
	UniqueOpenRate         int
	EmailGroup             string
	SentAt                 time.Time
	EmailAddress           string
	Contact                ContactAttributes
}

// Key returns the (asset, contact) pair of the row.
func (r ReportRow) Key() PairKey {
	return PairKey{AssetID: r.AssetID, ContactID: r.ContactID}
}
