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

// Package ledger records which report dates are in progress or done using
// Redis, so concurrent or repeated runs do not regenerate the same day.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLockTTL bounds how long a crashed run blocks a date.
	DefaultLockTTL = 2 * time.Hour

	// DefaultDoneTTL is how long a generated date is remembered.
	DefaultDoneTTL = 90 * 24 * time.Hour

	// DefaultKeyPrefix namespaces ledger keys in Redis.
	DefaultKeyPrefix = "eloqua:report:"
)

// ErrLocked means another run holds the date.
var ErrLocked = errors.New("report date is locked by another run")

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Entry describes a finished report.
type Entry struct {
	RunID       string    `json:"run_id"`
	Path        string    `json:"path"`
	Rows        int       `json:"rows"`
	UploadKey   string    `json:"upload_key,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Options configures a Ledger.
type Options struct {
	KeyPrefix string
	LockTTL   time.Duration
	DoneTTL   time.Duration
}

// Ledger tracks report dates in Redis.
type Ledger struct {
	rdb     *redis.Client
	prefix  string
	lockTTL time.Duration
	doneTTL time.Duration
}

// New creates a ledger backed by Redis.
func New(rdb *redis.Client, opts Options) *Ledger {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.DoneTTL <= 0 {
		opts.DoneTTL = DefaultDoneTTL
	}
	return &Ledger{rdb: rdb, prefix: opts.KeyPrefix, lockTTL: opts.LockTTL, doneTTL: opts.DoneTTL}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func dateKey(day time.Time) string {
	return day.Format(time.DateOnly)
}

func (l *Ledger) lockKey(day time.Time) string {
	return l.prefix + "lock:" + dateKey(day)
}

func (l *Ledger) doneKey(day time.Time) string {
	return l.prefix + "done:" + dateKey(day)
}

// Lock claims day for this process. The returned release func is safe to
// call after the lock expired or was taken over.
func (l *Ledger) Lock(ctx context.Context, day time.Time) (release func(context.Context) error, err error) {
	token := uuid.NewString()
	key := l.lockKey(day)

	// SET NX = set only if key does not exist.
	ok, err := l.rdb.SetNX(ctx, key, token, l.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger SETNX: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", dateKey(day), ErrLocked)
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("ledger release: %w", err)
		}
		return nil
	}, nil
}

// MarkDone records a finished report for day.
func (l *Ledger) MarkDone(ctx context.Context, day time.Time, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := l.rdb.Set(ctx, l.doneKey(day), data, l.doneTTL).Err(); err != nil {
		return fmt.Errorf("ledger SET: %w", err)
	}
	return nil
}

// Done returns the recorded entry for day, if any.
func (l *Ledger) Done(ctx context.Context, day time.Time) (Entry, bool, error) {
	data, err := l.rdb.Get(ctx, l.doneKey(day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("ledger GET: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode ledger entry: %w", err)
	}
	return e, true, nil
}

// Forget clears the done marker so day is regenerated.
func (l *Ledger) Forget(ctx context.Context, day time.Time) error {
	return l.rdb.Del(ctx, l.doneKey(day)).Err()
}
