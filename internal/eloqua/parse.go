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
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jinjernot/eloqua/internal/models"
)

// Key spellings differ between bulk exports, OData tables, and API
// versions. Each list is tried in order; the first non-empty value wins.
var (
	keysActivityID = []string{"ActivityId", "activityId", "activityID", "id"}
	keysAssetID    = []string{"AssetId", "assetId", "assetID", "emailID", "emailId", "EmailID", "EmailId"}
	keysContactID  = []string{"ContactId", "contactId", "contactID", "ContactID"}
	keysEmail      = []string{"EmailAddress", "emailAddress", "email"}
	keysCampaignID = []string{"CampaignId", "campaignId", "campaignID", "eloquaCampaignId", "eloquaCampaignID"}
	keysActivityAt = []string{"ActivityDate", "activityDate", "CreatedAt", "createdAt", "dateHour", "openDateHour", "clickDateHour", "sentDateHour", "date"}
	keysAssetName  = []string{"AssetName", "assetName", "emailName", "EmailName"}
	keysSubject    = []string{"SubjectLine", "subjectLine", "Subject", "subject"}
	keysSendType   = []string{"EmailSendType", "emailSendType", "SendType", "sendType"}
	keysCountry    = []string{"ContactCountry", "Country", "country"}
	keysRole       = []string{"HPRole", "hp_role", "ContactRole"}
	keysPartnerID  = []string{"HPPartnerId", "hp_partner_id", "PartnerId"}
	keysPartner    = []string{"PartnerName", "partner_name"}
	keysMarket     = []string{"Market", "market"}
	keysHardFlag   = []string{"IsHardBounce", "isHardBounce", "hardBounce", "HardBounce"}
	keysSMTPStatus = []string{"SmtpStatusCode", "smtpStatusCode"}
	keysSMTPError  = []string{"SmtpErrorCode", "smtpErrorCode"}
	keysBounceType = []string{"BouncebackType", "bouncebackType", "BounceType"}

	keysCampaignKey  = []string{"eloquaCampaignId", "eloquaCampaignID", "campaignId", "campaignID", "id"}
	keysCampaignName = []string{"campaignName", "CampaignName", "name"}
	keysCreatedBy    = []string{"createdBy", "createdByUserId", "createdByUserID", "CreatedBy"}
	keysActivatedBy  = []string{"lastActivatedByUserId", "lastActivatedByUserID", "LastActivatedBy"}
	keysUserID       = []string{"userID", "userId", "UserId", "id"}
	keysUserName     = []string{"userName", "UserName", "name"}
	keysAssetKey     = []string{"emailID", "emailId", "EmailID", "assetId", "id"}
	keysEmailGroup   = []string{"emailGroup", "emailGroupName", "EmailGroup"}
)

// Timestamp layouts seen in Eloqua payloads. Layouts without a zone are
// interpreted in the report location.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"1/2/2006 3:04:05 PM",
	"01/02/2006 03:04:05 PM",
	time.DateOnly,
}

// Parser normalises raw payloads into typed records.
type Parser struct {
	loc *time.Location
}

// NewParser creates a parser that reports timestamps in loc.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc}
}

// Sends converts EmailSend export rows. Rows without an asset or contact
// id cannot be joined and are dropped.
func (p *Parser) Sends(raw []map[string]any) []models.SendRecord {
	out := make([]models.SendRecord, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		s := models.SendRecord{
			ActivityID:   str(r, keysActivityID),
			AssetID:      str(r, keysAssetID),
			ContactID:    str(r, keysContactID),
			SendType:     sendType(str(r, keysSendType)),
			CampaignID:   str(r, keysCampaignID),
			EmailAddress: strings.ToLower(str(r, keysEmail)),
			SubjectLine:  str(r, keysSubject),
			AssetName:    str(r, keysAssetName),
			Contact: models.ContactAttributes{
				Country:     str(r, keysCountry),
				Role:        str(r, keysRole),
				PartnerID:   str(r, keysPartnerID),
				PartnerName: str(r, keysPartner),
				Market:      str(r, keysMarket),
			},
		}
		if s.AssetID == "" || s.ContactID == "" {
			dropped++
			continue
		}
		s.SentAt, _ = p.Time(str(r, keysActivityAt))
		out = append(out, s)
	}
	logDropped(StreamSends, dropped, len(raw))
	return out
}

// Activities converts open or click rows.
func (p *Parser) Activities(kind models.ActivityKind, raw []map[string]any) []models.ActivityRecord {
	out := make([]models.ActivityRecord, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		a := models.ActivityRecord{
			Kind:         kind,
			AssetID:      str(r, keysAssetID),
			ContactID:    str(r, keysContactID),
			EmailAddress: strings.ToLower(str(r, keysEmail)),
			CampaignID:   str(r, keysCampaignID),
		}
		if a.AssetID == "" || a.ContactID == "" {
			dropped++
			continue
		}
		a.OccurredAt, _ = p.Time(str(r, keysActivityAt))
		out = append(out, a)
	}
	logDropped(string(kind), dropped, len(raw))
	return out
}

// Bouncebacks converts Bounceback export rows.
func (p *Parser) Bouncebacks(raw []map[string]any) []models.BouncebackRecord {
	out := make([]models.BouncebackRecord, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		b := models.BouncebackRecord{
			ActivityID:     str(r, keysActivityID),
			AssetID:        str(r, keysAssetID),
			ContactID:      str(r, keysContactID),
			EmailAddress:   strings.ToLower(str(r, keysEmail)),
			SMTPStatusCode: str(r, keysSMTPStatus),
			IsHard:         isHardBounce(r),
		}
		if b.AssetID == "" || b.ContactID == "" {
			dropped++
			continue
		}
		b.OccurredAt, _ = p.Time(str(r, keysActivityAt))
		out = append(out, b)
	}
	logDropped(StreamBounces, dropped, len(raw))
	return out
}

// Campaigns converts campaign analysis rows.
func (p *Parser) Campaigns(raw []map[string]any) []models.CampaignRecord {
	out := make([]models.CampaignRecord, 0, len(raw))
	for _, r := range raw {
		c := models.CampaignRecord{
			CampaignID:            str(r, keysCampaignKey),
			Name:                  str(r, keysCampaignName),
			CreatedByUserID:       str(r, keysCreatedBy),
			LastActivatedByUserID: str(r, keysActivatedBy),
		}
		if c.CampaignID != "" {
			out = append(out, c)
		}
	}
	return out
}

// Users converts user rows.
func (p *Parser) Users(raw []map[string]any) []models.UserRecord {
	out := make([]models.UserRecord, 0, len(raw))
	for _, r := range raw {
		u := models.UserRecord{UserID: str(r, keysUserID), Name: str(r, keysUserName)}
		if u.UserID != "" {
			out = append(out, u)
		}
	}
	return out
}

// EmailAssets converts email asset rows.
func (p *Parser) EmailAssets(raw []map[string]any) []models.EmailAsset {
	out := make([]models.EmailAsset, 0, len(raw))
	for _, r := range raw {
		a := models.EmailAsset{
			AssetID:         str(r, keysAssetKey),
			Name:            str(r, keysAssetName),
			SubjectLine:     str(r, keysSubject),
			EmailGroup:      str(r, keysEmailGroup),
			CreatedByUserID: firstNonEmpty(str(r, keysCreatedBy), str(r, keysActivatedBy)),
		}
		if a.AssetID != "" {
			out = append(out, a)
		}
	}
	return out
}

// Time parses an Eloqua timestamp into the parser's location.
func (p *Parser) Time(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t.In(p.loc), true
		}
	}
	return time.Time{}, false
}

// isHardBounce prefers an explicit flag, then the bounce type, then the
// SMTP class: 4xx is transient (soft), anything else is permanent.
func isHardBounce(r map[string]any) bool {
	if v, ok := first(r, keysHardFlag); ok {
		switch t := v.(type) {
		case bool:
			return t
		default:
			if b, err := strconv.ParseBool(toString(t)); err == nil {
				return b
			}
		}
	}
	if kind := strings.ToLower(str(r, keysBounceType)); kind != "" {
		return !strings.Contains(kind, "soft")
	}
	code := firstNonEmpty(str(r, keysSMTPStatus), str(r, keysSMTPError))
	return !strings.HasPrefix(code, "4")
}

func sendType(v string) models.SendType {
	if strings.Contains(strings.ToLower(v), "forward") {
		return models.SendTypeForward
	}
	return models.SendTypeSend
}

func first(r map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil && toString(v) != "" {
			return v, true
		}
	}
	return nil, false
}

func str(r map[string]any, keys []string) string {
	v, ok := first(r, keys)
	if !ok {
		return ""
	}
	return strings.TrimSpace(toString(v))
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func logDropped(stream string, dropped, total int) {
	if dropped > 0 {
		slog.Warn("dropped records without asset or contact id",
			"stream", stream,
			"dropped", dropped,
			"total", total,
		)
	}
}
