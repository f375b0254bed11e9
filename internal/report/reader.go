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

package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jinjernot/eloqua/internal/models"
)

// ErrBadHeader means the file does not carry the report columns.
var ErrBadHeader = errors.New("unexpected report header")

// Read parses a report written by Writer. Send dates are interpreted in
// loc. Rows with zero Total Sends are marked as forwards.
func Read(path string, loc *time.Location) ([]models.ReportRow, error) {
	if loc == nil {
		loc = time.UTC
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))
	cr.Comma = '\t'
	cr.FieldsPerRecord = len(Columns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read report header: %w", err)
	}
	for i, c := range Columns {
		if header[i] != c {
			return nil, fmt.Errorf("column %d is %q, want %q: %w", i, header[i], c, ErrBadHeader)
		}
	}

	var rows []models.ReportRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read report line %d: %w", line, err)
		}
		row, err := parseRecord(rec, loc)
		if err != nil {
			return nil, fmt.Errorf("parse report line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

func parseRecord(rec []string, loc *time.Location) (models.ReportRow, error) {
	var perr error
	num := func(i int) int {
		if perr != nil {
			return 0
		}
		n, err := strconv.Atoi(rec[i])
		if err != nil {
			perr = fmt.Errorf("%s: %w", Columns[i], err)
		}
		return n
	}

	r := models.ReportRow{
		EmailName:              rec[0],
		AssetID:                rec[1],
		EmailSubjectLine:       rec[2],
		LastActivatedBy:        rec[3],
		TotalDelivered:         num(4),
		TotalHardBouncebacks:   num(5),
		TotalSends:             num(6),
		TotalSoftBouncebacks:   num(7),
		TotalBouncebacks:       num(8),
		UniqueOpens:            num(9),
		HardBouncebackRate:     num(10),
		SoftBouncebackRate:     num(11),
		BouncebackRate:         num(12),
		ClickthroughRate:       num(13),
		UniqueClickthroughRate: num(14),
		DeliveredRate:          num(15),
		UniqueOpenRate:         num(16),
		EmailGroup:             rec[17],
		EmailAddress:           rec[19],
		Contact: models.ContactAttributes{
			Country:     rec[20],
			Role:        rec[21],
			PartnerID:   rec[22],
			PartnerName: rec[23],
			Market:      rec[24],
		},
	}
	if perr != nil {
		return models.ReportRow{}, perr
	}
	if rec[18] != "" {
		t, err := time.ParseInLocation(SendDateLayout, rec[18], loc)
		if err != nil {
			return models.ReportRow{}, fmt.Errorf("Email Send Date: %w", err)
		}
		r.SentAt = t
	}
	r.Forward = r.TotalSends == 0
	return r, nil
}

// Summary counts the rows of a written report. The file carries no raw
// click counts and forward rows have every rate at zero, so clicks are only
// visible on real sends.
type Summary struct {
	Rows         int
	Sends        int
	Forwards     int
	Delivered    int
	Bounced      int
	Opened       int
	ClickedSends int
	Assets       int

	// Forward rows with attribution gaps.
	ForwardsMissingSendDate int
	ForwardsMissingEmail    int
	ForwardsMissingUser     int
}

// Summarize counts sends, forwards and engagement in rows.
func Summarize(rows []models.ReportRow) Summary {
	s := Summary{Rows: len(rows)}
	assets := make(map[string]struct{})
	for _, r := range rows {
		assets[r.AssetID] = struct{}{}
		if r.UniqueOpens > 0 {
			s.Opened++
		}
		s.Delivered += r.TotalDelivered
		s.Bounced += r.TotalBouncebacks

		if !r.Forward {
			s.Sends++
			if r.UniqueClickthroughRate > 0 {
				s.ClickedSends++
			}
			continue
		}
		s.Forwards++
		if r.SentAt.IsZero() {
			s.ForwardsMissingSendDate++
		}
		if strings.TrimSpace(r.EmailAddress) == "" {
			s.ForwardsMissingEmail++
		}
		if strings.TrimSpace(r.LastActivatedBy) == "" {
			s.ForwardsMissingUser++
		}
	}
	s.Assets = len(assets)
	return s
}
