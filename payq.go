/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package payq

import (
	"embed"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blnkfinance/payq/config"
	"github.com/blnkfinance/payq/database"
	"github.com/blnkfinance/payq/internal/cache"
	"github.com/blnkfinance/payq/internal/processor"
	redis_db "github.com/blnkfinance/payq/internal/redis-db"
)

// Payq drains the outbound payment queue and reconciles the transaction ledger.
type Payq struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	processor  processor.Processor
	config     *config.Configuration
	now        func() time.Time
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// Option customises a Payq built by NewPayq.
type Option func(*Payq)

// WithProcessor replaces the processor client built from configuration.
func WithProcessor(p processor.Processor) Option {
	return func(q *Payq) {
		q.processor = p
	}
}

// WithClock sets the time source used for every timestamp Payq writes.
func WithClock(now func() time.Time) Option {
	return func(q *Payq) {
		q.now = now
	}
}

// NewPayq builds a Payq on top of db using the loaded configuration. Unless overridden, payment
// lookups go through a Redis backed cache in front of the processor client.
func NewPayq(db database.IDataSource, opts ...Option) (*Payq, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	newQueue, err := NewQueue(configuration)
	if err != nil {
		return nil, err
	}

	newQueue.registerWebhookSender()

	p := &Payq{
		queue:      newQueue,
		redis:      redisClient,
		datasource: db,
		config:     configuration,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.processor == nil {
		p.processor = processor.NewCachedProcessor(
			processor.NewClient(configuration.Processor),
			cache.NewCache(redisClient),
			configuration.Processor.PaymentCacheTTL(),
		)
	}
	return p, nil
}

func (p *Payq) clock() time.Time {
	return p.now().UTC()
}

// Queue returns the task queue used to trigger background cycles.
func (p *Payq) Queue() *Queue {
	return p.queue
}

// Close releases the redis and task queue connections.
func (p *Payq) Close() error {
	if err := p.queue.Close(); err != nil {
		return err
	}
	return p.redis.Close()
}
