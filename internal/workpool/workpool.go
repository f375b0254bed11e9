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

// Package workpool is the one bounded-concurrency primitive used by the
// stream fetch stage, contact resolution, and multi-day runs.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result pairs an input with its outcome. Err is per item; Map itself only
// fails when the context is cancelled.
type Result[In, Out any] struct {
	Input In
	Value Out
	Err   error
}

// Map runs fn over inputs with at most limit calls in flight and returns
// one Result per input, in input order. A failing item never cancels its
// siblings; callers decide which errors are fatal.
func Map[In, Out any](ctx context.Context, limit int, inputs []In, fn func(context.Context, In) (Out, error)) ([]Result[In, Out], error) {
	if limit <= 0 {
		limit = 1
	}
	results := make([]Result[In, Out], len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, in := range inputs {
		results[i].Input = in
		if err := gctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		i, in := i, in
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Value, results[i].Err = fn(gctx, in)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
