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

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestYesterday_UsesReportZone verifies the default report date is yesterday in the configured zone.
func TestYesterday_UsesReportZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC on the 11th is still the 10th in New York.
	now := time.Date(2025, 1, 11, 2, 0, 0, 0, time.UTC)
	got := yesterday(now, ny)
	assert.Equal(t, time.Date(2025, 1, 9, 0, 0, 0, 0, ny), got)

	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), yesterday(now, time.UTC))
}

// TestParseDay verifies parsing of YYYY-MM-DD dates and rejection of malformed input.
func TestParseDay(t *testing.T) {
	d, err := parseDay("2025-03-01", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDay("03/01/2025", time.UTC)
	assert.ErrorContains(t, err, "want YYYY-MM-DD")
}

// TestRedaction verifies secrets and URL passwords are masked for display.
func TestRedaction(t *testing.T) {
	assert.Equal(t, "abcd****", redact("abcdefgh"))
	assert.Equal(t, "***", redact("abc"))

	assert.Equal(t, "postgres://report:xxxxx@db:5432/eloqua", redactURL("postgres://report:secret@db:5432/eloqua"))
	assert.Equal(t, "redis://localhost:6379/0", redactURL("redis://localhost:6379/0"))
}

// TestCoverage verifies count and percentage formatting.
func TestCoverage(t *testing.T) {
	assert.Equal(t, "0", coverage(0, 0))
	assert.Equal(t, "1 (25.0%)", coverage(1, 4))
}

// TestSetupLogging verifies log level and format selection.
func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging("debug"))
	assert.NoError(t, setupLogging("WARN"))
	assert.Error(t, setupLogging("loud"))
}
