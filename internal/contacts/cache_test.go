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
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinjernot/eloqua/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]models.ContactRecord
	saves   int
	saveErr error
}

func (m *memStore) Load() (map[string]models.ContactRecord, error) {
	out := map[string]models.ContactRecord{}
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Save(entries map[string]models.ContactRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries = map[string]models.ContactRecord{}
	for k, v := range entries {
		m.entries[k] = v
	}
	return nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	records map[string]models.ContactRecord
}

func (f *fakeFetcher) FetchContact(_ context.Context, id string) (models.ContactRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return models.ContactRecord{}, errors.New("not found")
	}
	return rec, nil
}

// TestCache_ResolveHitsAndMisses verifies cached contacts are reused and misses fetched.
func TestCache_ResolveHitsAndMisses(t *testing.T) {
	store := &memStore{entries: map[string]models.ContactRecord{
		"1": {ContactID: "1", EmailAddress: "Cached@Example.com"},
	}}
	fetcher := &fakeFetcher{records: map[string]models.ContactRecord{
		"2": {EmailAddress: "Fresh@Example.com", Country: "Peru"},
	}}

	c, err := New(store, fetcher, Options{Workers: 2})
	require.NoError(t, err)

	got, stats, err := c.Resolve(context.Background(), []string{"1", "2", "2", "", "3"})
	require.NoError(t, err)

	assert.Equal(t, "Cached@Example.com", got["1"].EmailAddress)
	assert.Equal(t, "Fresh@Example.com", got["2"].EmailAddress)
	assert.Equal(t, "2", got["2"].ContactID)
	assert.NotContains(t, got, "3", "unresolvable contacts are omitted")

	assert.Equal(t, ResolveStats{Requested: 3, Hits: 1, Fetched: 1, Failed: 1}, stats)
	assert.ElementsMatch(t, []string{"2", "3"}, fetcher.calls, "cached and duplicate ids are not refetched")

	assert.Equal(t, 1, store.saves)
	assert.Contains(t, store.entries, "2")
	assert.Equal(t, 2, c.Len())
}

// TestCache_NoSaveWithoutNewEntries verifies the cache is not saved when nothing changed.
func TestCache_NoSaveWithoutNewEntries(t *testing.T) {
	store := &memStore{entries: map[string]models.ContactRecord{"1": {ContactID: "1"}}}
	c, err := New(store, &fakeFetcher{}, Options{})
	require.NoError(t, err)

	_, _, err = c.Resolve(context.Background(), []string{"1"})
	require.NoError(t, err)
	assert.Zero(t, store.saves)
}

// TestCache_SaveFailureIsNotFatal verifies a save failure does not fail resolution.
func TestCache_SaveFailureIsNotFatal(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	fetcher := &fakeFetcher{records: map[string]models.ContactRecord{"9": {EmailAddress: "x@y.com"}}}
	c, err := New(store, fetcher, Options{})
	require.NoError(t, err)

	got, _, err := c.Resolve(context.Background(), []string{"9"})
	require.NoError(t, err)
	assert.Equal(t, "x@y.com", got["9"].EmailAddress)
}

// TestCache_CancelledContext verifies resolution stops when the context is cancelled.
func TestCache_CancelledContext(t *testing.T) {
	fetcher := &fakeFetcher{records: map[string]models.ContactRecord{"1": {}}}
	c, err := New(&memStore{}, fetcher, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = c.Resolve(ctx, []string{"1", "2"})
	assert.ErrorIs(t, err, context.Canceled)
}

// TestCache_PersistsThroughFileStore verifies resolved contacts survive a reload.
func TestCache_PersistsThroughFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json.gz")
	fetcher := &fakeFetcher{records: map[string]models.ContactRecord{"5": {EmailAddress: "Mixed@Case.com"}}}

	c, err := New(&FileStore{Path: path}, fetcher, Options{})
	require.NoError(t, err)
	_, _, err = c.Resolve(context.Background(), []string{"5"})
	require.NoError(t, err)

	reopened, err := New(&FileStore{Path: path}, nil, Options{})
	require.NoError(t, err)
	rec, ok := reopened.Get("5")
	require.True(t, ok)
	assert.Equal(t, "Mixed@Case.com", rec.EmailAddress)
}

// TestCache_Stats verifies hit and miss counters.
func TestCache_Stats(t *testing.T) {
	store := &memStore{entries: map[string]models.ContactRecord{
		"1": {EmailAddress: "a@b.com", Country: "US", Role: "Sales"},
		"2": {EmailAddress: "c@d.com", Market: "EU"},
		"3": {},
	}}
	c, err := New(store, nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, Stats{Contacts: 3, WithEmail: 2, WithCountry: 1, WithRole: 1, WithMarket: 1}, c.Stats())
}
