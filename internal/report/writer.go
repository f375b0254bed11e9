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

// Package report serialises reconciled rows to the tab-delimited daily
// report and reads such files back.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jinjernot/eloqua/internal/models"
)

// SendDateLayout is the Email Send Date column format.
const SendDateLayout = "2006-01-02 03:04:05 PM"

// Columns is the fixed column order of the report.
var Columns = []string{
	"Email Name",
	"Email ID",
	"Email Subject Line",
	"Last Activated by User",
	"Total Delivered",
	"Total Hard Bouncebacks",
	"Total Sends",
	"Total Soft Bouncebacks",
	"Total Bouncebacks",
	"Unique Opens",
	"Hard Bounceback Rate",
	"Soft Bounceback Rate",
	"Bounceback Rate",
	"Clickthrough Rate",
	"Unique Clickthrough Rate",
	"Delivered Rate",
	"Unique Open Rate",
	"Email Group",
	"Email Send Date",
	"Email Address",
	"Contact Country",
	"HP Role",
	"HP Partner Id",
	"Partner Name",
	"Market",
}

var sanitizer = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

// Sanitize replaces characters that would break the delimited format with
// spaces. Everything else is written as is.
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}

// FileName is the report name for day.
func FileName(day time.Time) string {
	return day.Format(time.DateOnly) + ".csv"
}

// createTemp is swapped in tests to simulate a failing disk.
var createTemp = os.CreateTemp

// Writer writes reports in a fixed location.
type Writer struct {
	Location *time.Location
}

// Write serialises rows to path and returns the path written. The file is
// built under a temporary name and renamed into place, so path either holds
// a complete report or is left as it was.
func (w Writer) Write(rows []models.ReportRow, path string) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	f, err := createTemp(dir, ".report-*.csv")
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer os.Remove(f.Name())

	if err := w.encode(f, rows); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod report: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return "", fmt.Errorf("replace report: %w", err)
	}
	return path, nil
}

func (w Writer) encode(out io.Writer, rows []models.ReportRow) error {
	enc := transform.NewWriter(out, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(enc)
	cw.Comma = '\t'

	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	for i, r := range rows {
		if err := cw.Write(w.record(r)); err != nil {
			return fmt.Errorf("write report row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func (w Writer) record(r models.ReportRow) []string {
	sentAt := ""
	if !r.SentAt.IsZero() {
		loc := w.Location
		if loc == nil {
			loc = r.SentAt.Location()
		}
		sentAt = r.SentAt.In(loc).Format(SendDateLayout)
	}
	itoa := strconv.Itoa
	return []string{
		Sanitize(r.EmailName),
		Sanitize(r.AssetID),
		Sanitize(r.EmailSubjectLine),
		Sanitize(r.LastActivatedBy),
		itoa(r.TotalDelivered),
		itoa(r.TotalHardBouncebacks),
		itoa(r.TotalSends),
		itoa(r.TotalSoftBouncebacks),
		itoa(r.TotalBouncebacks),
		itoa(r.UniqueOpens),
		itoa(r.HardBouncebackRate),
		itoa(r.SoftBouncebackRate),
		itoa(r.BouncebackRate),
		itoa(r.ClickthroughRate),
		itoa(r.UniqueClickthroughRate),
		itoa(r.DeliveredRate),
		itoa(r.UniqueOpenRate),
		Sanitize(r.EmailGroup),
		sentAt,
		Sanitize(r.EmailAddress),
		Sanitize(r.Contact.Country),
		Sanitize(r.Contact.Role),
		Sanitize(r.Contact.PartnerID),
		Sanitize(r.Contact.PartnerName),
		Sanitize(r.Contact.Market),
	}
}
