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
	"context"
	"fmt"
	"net/url"

	"github.com/jinjernot/eloqua/internal/models"
)

// Getter is the subset of transport.Client the contact fetcher needs.
type Getter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// FieldIDs maps custom contact fields to their Eloqua field ids.
type FieldIDs struct {
	Role        string
	PartnerID   string
	PartnerName string
	Market      string
}

// restContact is the relevant part of GET /api/REST/2.0/data/contact/{id}.
type restContact struct {
	ID           string       `json:"id"`
	EmailAddress string       `json:"emailAddress"`
	Country      string       `json:"country"`
	FieldValues  []FieldValue `json:"fieldValues"`
}

// FieldValue is one contact field as returned at depth=complete.
type FieldValue struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ContactFetcher retrieves single contacts from the REST API.
type ContactFetcher struct {
	api    Getter
	fields FieldIDs
}

// NewContactFetcher creates a REST contact fetcher.
func NewContactFetcher(api Getter, fields FieldIDs) *ContactFetcher {
	return &ContactFetcher{api: api, fields: fields}
}

// FetchContact returns the contact with its custom fields resolved.
func (f *ContactFetcher) FetchContact(ctx context.Context, contactID string) (models.ContactRecord, error) {
	rc, err := f.get(ctx, contactID)
	if err != nil {
		return models.ContactRecord{}, err
	}

	rec := models.ContactRecord{
		ContactID:    contactID,
		EmailAddress: rc.EmailAddress,
		Country:      rc.Country,
	}
	for _, fv := range rc.FieldValues {
		if fv.Value == "" {
			continue
		}
		switch fv.ID {
		case f.fields.Role:
			rec.Role = fv.Value
		case f.fields.PartnerID:
			rec.PartnerID = fv.Value
		case f.fields.PartnerName:
			rec.PartnerName = fv.Value
		case f.fields.Market:
			rec.Market = fv.Value
		}
	}
	return rec, nil
}

// Fields returns the contact's populated fields with their ids, for finding
// the ids of custom fields.
func (f *ContactFetcher) Fields(ctx context.Context, contactID string) (string, []FieldValue, error) {
	rc, err := f.get(ctx, contactID)
	if err != nil {
		return "", nil, err
	}
	var out []FieldValue
	for _, fv := range rc.FieldValues {
		if fv.Value != "" {
			out = append(out, fv)
		}
	}
	return rc.EmailAddress, out, nil
}

func (f *ContactFetcher) get(ctx context.Context, contactID string) (*restContact, error) {
	u := fmt.Sprintf("/api/REST/2.0/data/contact/%s?depth=complete", url.PathEscape(contactID))

	var rc restContact
	if err := f.api.GetJSON(ctx, u, &rc); err != nil {
		return nil, fmt.Errorf("fetch contact %s: %w", contactID, err)
	}
	return &rc, nil
}
