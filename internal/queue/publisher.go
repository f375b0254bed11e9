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

// Package queue announces finished reports on a Redis list so downstream
// loaders can pick them up without polling the output directory.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueue is the list report events are pushed to.
const DefaultQueue = "eloqua:report:ready"

// ReportEvent describes one generated report.
type ReportEvent struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	ReportDate  string    `json:"report_date"`
	Status      string    `json:"status"`
	Path        string    `json:"path"`
	UploadKey   string    `json:"upload_key,omitempty"`
	Rows        int       `json:"rows"`
	Degraded    []string  `json:"degraded,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Publisher pushes report events to a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a publisher targeting queueName.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// PublishReport LPUSHes ev; consumers BRPOP the other end.
func (p *Publisher) PublishReport(ctx context.Context, ev ReportEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal report event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, msg).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published report event",
		"event_id", ev.ID,
		"date", ev.ReportDate,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
