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
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jinjernot/eloqua/internal/models"
)

// rate returns round(100*num/den), or 0 when den is 0.
func rate(num, den int) int {
	if den == 0 {
		return 0
	}
	return int(math.Round(100 * float64(num) / float64(den)))
}

func minOne(n int) int {
	if n > 0 {
		return 1
	}
	return 0
}

// applyRates fills the count and rate columns. Opens and clicks divide by
// delivered, bounces and delivery by sends. Forwards carry raw counts only.
func applyRates(row *models.ReportRow, bounce BounceCounts) {
	row.UniqueOpens = minOne(row.Opens)
	if row.Forward {
		return
	}

	row.TotalSends = 1
	row.TotalHardBouncebacks = bounce.Hard
	row.TotalSoftBouncebacks = bounce.Soft
	row.TotalBouncebacks = bounce.Total
	if bounce.Total == 0 {
		row.TotalDelivered = 1
	}

	row.HardBouncebackRate = rate(row.TotalHardBouncebacks, row.TotalSends)
	row.SoftBouncebackRate = rate(row.TotalSoftBouncebacks, row.TotalSends)
	row.BouncebackRate = rate(row.TotalBouncebacks, row.TotalSends)
	row.DeliveredRate = rate(row.TotalDelivered, row.TotalSends)
	row.ClickthroughRate = rate(row.Clicks, row.TotalDelivered)
	row.UniqueClickthroughRate = rate(minOne(row.Clicks), row.TotalDelivered)
	row.UniqueOpenRate = rate(row.UniqueOpens, row.TotalDelivered)
}

// compareIDs orders numeric ids numerically and everything else lexically.
func compareIDs(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// sortRows orders rows by send date, asset, real before forward, address
// and contact.
func sortRows(rows []models.ReportRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.SentAt.Equal(b.SentAt) {
			return a.SentAt.Before(b.SentAt)
		}
		if c := compareIDs(a.AssetID, b.AssetID); c != 0 {
			return c < 0
		}
		if a.Forward != b.Forward {
			return !a.Forward
		}
		if a.EmailAddress != b.EmailAddress {
			return a.EmailAddress < b.EmailAddress
		}
		return compareIDs(a.ContactID, b.ContactID) < 0
	})
}
