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

// Package contacts is the persistent contact cache. It is the only source
// of correctly cased email addresses; every bulk stream is lower-case.
package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jinjernot/eloqua/internal/models"
	"github.com/jinjernot/eloqua/internal/transport"
	"github.com/jinjernot/eloqua/internal/workpool"
)

// Fetcher retrieves one contact from Eloqua.
type Fetcher interface {
	FetchContact(ctx context.Context, contactID string) (models.ContactRecord, error)
}

// Options tunes live fetches on cache miss.
type Options struct {
	Workers      int
	RequestDelay time.Duration
}

// Cache is an append-only contact map loaded once and rewritten whole
// whenever new contacts are fetched.
type Cache struct {
	store   Store
	fetcher Fetcher
	workers int
	delay   time.Duration

	mu      sync.RWMutex
	entries map[string]models.ContactRecord
}

// ResolveStats summarises one Resolve call.
type ResolveStats struct {
	Requested int
	Hits      int
	Fetched   int
	Failed    int
}

// New loads the cache from store.
func New(store Store, fetcher Fetcher, opts Options) (*Cache, error) {
	entries, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load contact cache: %w", err)
	}
	if opts.Workers <= 0 {
		opts.Workers = 20
	}
	return &Cache{
		store:   store,
		fetcher: fetcher,
		workers: opts.Workers,
		delay:   opts.RequestDelay,
		entries: entries,
	}, nil
}

// Len returns the number of cached contacts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Get returns a cached contact without fetching.
func (c *Cache) Get(contactID string) (models.ContactRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries[contactID]
	return rec, ok
}

// Resolve returns every requested contact that is cached or fetchable.
// Misses are fetched concurrently; a contact that cannot be fetched is
// logged and omitted, never fatal. New entries are persisted before
// Resolve returns. Only ctx cancellation produces an error.
func (c *Cache) Resolve(ctx context.Context, contactIDs []string) (map[string]models.ContactRecord, ResolveStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]models.ContactRecord, len(contactIDs))
	var missing []string
	seen := make(map[string]bool, len(contactIDs))
	for _, id := range contactIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if rec, ok := c.entries[id]; ok {
			out[id] = rec
			continue
		}
		missing = append(missing, id)
	}

	stats := ResolveStats{Requested: len(seen), Hits: len(out)}
	slog.Info("contact cache lookup", "requested", stats.Requested, "hits", stats.Hits, "to_fetch", len(missing))
	if len(missing) == 0 || c.fetcher == nil {
		stats.Failed = len(missing)
		return out, stats, nil
	}

	results, err := workpool.Map(ctx, c.workers, missing, func(ctx context.Context, id string) (models.ContactRecord, error) {
		if err := transport.Sleep(ctx, c.delay); err != nil {
			return models.ContactRecord{}, err
		}
		return c.fetcher.FetchContact(ctx, id)
	})

	fetched := 0
	for _, r := range results {
		if r.Err != nil {
			stats.Failed++
			if ctx.Err() == nil {
				slog.Warn("contact resolution failed", "contact_id", r.Input, "error", r.Err)
			}
			continue
		}
		rec := r.Value
		rec.ContactID = r.Input
		if _, exists := c.entries[r.Input]; !exists {
			c.entries[r.Input] = rec
			fetched++
		}
		out[r.Input] = rec
	}
	stats.Fetched = fetched

	if fetched > 0 {
		if perr := c.store.Save(c.entries); perr != nil {
			slog.Error("failed to persist contact cache", "error", perr)
		} else {
			slog.Info("contact cache saved", "contacts", len(c.entries), "new", fetched)
		}
	}

	if err != nil {
		return out, stats, err
	}
	return out, stats, nil
}

// Stats describes cache coverage for the cache stats command.
type Stats struct {
	Contacts        int
	WithEmail       int
	WithCountry     int
	WithRole        int
	WithPartnerID   int
	WithPartnerName int
	WithMarket      int
}

// Stats counts populated attributes across the cache.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Contacts: len(c.entries)}
	for _, rec := range c.entries {
		if rec.EmailAddress != "" {
			s.WithEmail++
		}
		if rec.Country != "" {
			s.WithCountry++
		}
		if rec.Role != "" {
			s.WithRole++
		}
		if rec.PartnerID != "" {
			s.WithPartnerID++
		}
		if rec.PartnerName != "" {
			s.WithPartnerName++
		}
		if rec.Market != "" {
			s.WithMarket++
		}
	}
	return s
}
