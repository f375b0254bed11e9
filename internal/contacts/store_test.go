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

package contacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinjernot/eloqua/internal/models"
)

// TestFileStore_MissingFileStartsEmpty verifies a missing cache file loads as empty.
func TestFileStore_MissingFileStartsEmpty(t *testing.T) {
	s := &FileStore{Path: filepath.Join(t.TempDir(), "cache.json.gz")}

	entries, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestFileStore_SaveLoadRoundTrip verifies saved entries load back.
func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json.gz")
	s := &FileStore{Path: path}

	want := map[string]models.ContactRecord{
		"1": {ContactID: "1", EmailAddress: "Jane.Doe@Example.com", Country: "Mexico", Role: "Sales"},
		"2": {ContactID: "2", EmailAddress: "bob@example.com", Market: "LATAM"},
	}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestFileStore_OnDiskFormat verifies the cache file layout.
func TestFileStore_OnDiskFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json.gz")
	s := &FileStore{Path: path}
	require.NoError(t, s.Save(map[string]models.ContactRecord{
		"7": {EmailAddress: "a@b.com", Country: "US", Role: "r", PartnerID: "p", PartnerName: "n", Market: "m"},
	}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)

	var raw map[string]map[string]string
	require.NoError(t, json.NewDecoder(zr).Decode(&raw))
	assert.Equal(t, map[string]string{
		"emailAddress":  "a@b.com",
		"country":       "US",
		"hp_role":       "r",
		"hp_partner_id": "p",
		"partner_name":  "n",
		"market":        "m",
	}, raw["7"])
}

// TestFileStore_MigratesLegacyCache verifies the legacy cache format is upgraded.
func TestFileStore_MigratesLegacyCache(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "contact_cache.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"42": {"emailAddress": "Old@Example.com", "country": "Chile"}}`), 0o644))

	s := &FileStore{Path: filepath.Join(dir, "contact_cache.json.gz"), LegacyPath: legacy}
	entries, err := s.Load()
	require.NoError(t, err)
	require.Contains(t, entries, "42")
	assert.Equal(t, "42", entries["42"].ContactID, "id is filled from the map key")
	assert.Equal(t, "Old@Example.com", entries["42"].EmailAddress)

	_, err = os.Stat(s.Path)
	require.NoError(t, err, "migration writes the compressed cache")

	again, err := (&FileStore{Path: s.Path}).Load()
	require.NoError(t, err)
	assert.Equal(t, entries, again)
}

// TestFileStore_CorruptCacheIsAnError verifies a corrupt cache file is reported.
func TestFileStore_CorruptCacheIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json.gz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o644))

	_, err := (&FileStore{Path: path}).Load()
	assert.Error(t, err)
}
