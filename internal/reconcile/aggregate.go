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

package reconcile

import (
	"strconv"
	"time"

	"github.com/jinjernot/eloqua/internal/models"
)

// sendKey identifies a send for deduplication. The vendor activity id is
// preferred; without it two re-sends sharing a timestamp collapse.
func sendKey(s models.SendRecord) string {
	if s.ActivityID != "" {
		return "id:" + s.ActivityID
	}
	return "k:" + s.AssetID + "|" + s.ContactID + "|" + string(s.SendType) + "|" + strconv.FormatInt(s.SentAt.UnixNano(), 10)
}

// DedupSends keeps the first send of every dedup group, preserving input
// order. Applying it to its own output is a no-op.
func DedupSends(sends []models.SendRecord) []models.SendRecord {
	seen := make(map[string]struct{}, len(sends))
	out := make([]models.SendRecord, 0, len(sends))
	for _, s := range sends {
		k := sendKey(s)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

// SameDay reports whether t falls on day's calendar date in loc.
func SameDay(t, day time.Time, loc *time.Location) bool {
	if t.IsZero() {
		return false
	}
	ty, tm, td := t.In(loc).Date()
	dy, dm, dd := day.In(loc).Date()
	return ty == dy && tm == dm && td == dd
}

// FilterByDate keeps real sends dated on day and collapses every
// (asset, contact) pair to its earliest send.
func FilterByDate(sends []models.SendRecord, day time.Time, loc *time.Location) []models.SendRecord {
	index := make(map[models.PairKey]int)
	var out []models.SendRecord
	for _, s := range sends {
		if s.SendType == models.SendTypeForward || !SameDay(s.SentAt, day, loc) {
			continue
		}
		if i, ok := index[s.Key()]; ok {
			if s.SentAt.Before(out[i].SentAt) {
				out[i] = s
			}
			continue
		}
		index[s.Key()] = len(out)
		out = append(out, s)
	}
	return out
}

// BounceCounts is the clamped bounce aggregate of one pair. Each field is
// 0 or 1 no matter how many vendor retries were reported.
type BounceCounts struct {
	Hard  int
	Soft  int
	Total int
}

// AggregateBounces groups bouncebacks by pair and clamps the counts.
func AggregateBounces(bounces []models.BouncebackRecord) map[models.PairKey]BounceCounts {
	out := make(map[models.PairKey]BounceCounts)
	for _, b := range bounces {
		c := out[b.Key()]
		if b.IsHard {
			c.Hard = 1
		} else {
			c.Soft = 1
		}
		c.Total = 1
		out[b.Key()] = c
	}
	return out
}

// ActivityCounts is the open or click aggregate of one pair.
type ActivityCounts struct {
	Count        int
	First        time.Time
	EmailAddress string
}

// AggregateActivities groups opens or clicks by pair, counting them and
// tracking the earliest occurrence.
func AggregateActivities(activities []models.ActivityRecord) map[models.PairKey]ActivityCounts {
	out := make(map[models.PairKey]ActivityCounts)
	for _, a := range activities {
		c := out[a.Key()]
		c.Count++
		if !a.OccurredAt.IsZero() && (c.First.IsZero() || a.OccurredAt.Before(c.First)) {
			c.First = a.OccurredAt
		}
		if c.EmailAddress == "" {
			c.EmailAddress = a.EmailAddress
		}
		out[a.Key()] = c
	}
	return out
}
