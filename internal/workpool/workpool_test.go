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

package workpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMap_PreservesOrderAndIsolatesErrors verifies results keep input order and errors stay per item.
func TestMap_PreservesOrderAndIsolatesErrors(t *testing.T) {
	boom := errors.New("boom")
	inputs := []int{1, 2, 3, 4, 5}

	results, err := Map(context.Background(), 2, inputs, func(_ context.Context, n int) (int, error) {
		if n == 3 {
			return 0, boom
		}
		return n * 10, nil
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, inputs[i], r.Input)
		if r.Input == 3 {
			assert.ErrorIs(t, r.Err, boom)
			continue
		}
		assert.NoError(t, r.Err)
		assert.Equal(t, r.Input*10, r.Value)
	}
}

// TestMap_BoundsConcurrency verifies no more than the worker limit run at once.
func TestMap_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	inputs := make([]int, 20)

	_, err := Map(context.Background(), 3, inputs, func(_ context.Context, _ int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

// TestMap_CancelledContext verifies a cancelled context fails pending items.
func TestMap_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results, err := Map(ctx, 4, []string{"a", "b"}, func(context.Context, string) (int, error) {
		calls.Add(1)
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}
