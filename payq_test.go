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
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/payq/config"
	"github.com/blnkfinance/payq/internal/processor"
	"github.com/blnkfinance/payq/model"
)

const testWebhookSecret = "whsec_test_secret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubProcessor creates one payment per idempotency key and records every key it is called with.
type stubProcessor struct {
	mu       sync.Mutex
	keys     []string
	byKey    map[string]*processor.OutboundPayment
	byID     map[string]*processor.OutboundPayment
	nextIDs  []string
	failures []error
	failAll  error
	getErr   error
	seq      int
}

func newStubProcessor() *stubProcessor {
	return &stubProcessor{
		byKey: map[string]*processor.OutboundPayment{},
		byID:  map[string]*processor.OutboundPayment{},
	}
}

func (s *stubProcessor) CreateOutboundPayment(_ context.Context, params processor.OutboundPaymentParams, idempotencyKey string) (*processor.OutboundPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, idempotencyKey)

	if s.failAll != nil {
		return nil, s.failAll
	}

	payment, ok := s.byKey[idempotencyKey]
	if !ok {
		s.seq++
		id := fmt.Sprintf("obp_%d", s.seq)
		if len(s.nextIDs) > 0 {
			id, s.nextIDs = s.nextIDs[0], s.nextIDs[1:]
		}
		payment = &processor.OutboundPayment{
			ID:       id,
			Status:   "processing",
			Amount:   params.MoneyMovementAmounts.Source,
			Metadata: params.Metadata,
		}
		s.byKey[idempotencyKey] = payment
		s.byID[id] = payment
	}

	// a failure after creation models a response lost in transit
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}
	return payment, nil
}

func (s *stubProcessor) GetOutboundPayment(_ context.Context, id string) (*processor.OutboundPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	payment, ok := s.byID[id]
	if !ok {
		return nil, &processor.Error{StatusCode: http.StatusNotFound, Code: "resource_missing", Message: "no such payment"}
	}
	return payment, nil
}

func (s *stubProcessor) addPayment(payment *processor.OutboundPayment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[payment.ID] = payment
}

func (s *stubProcessor) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func (s *stubProcessor) paymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

func transientError(msg string) error {
	return &processor.Error{StatusCode: http.StatusServiceUnavailable, Type: "api_error", Message: msg}
}

func newTestConfig(redisAddr string) *config.Configuration {
	return &config.Configuration{
		ProjectName: "payq test",
		DataSource:  config.DataSourceConfig{Dns: "postgres://localhost/payq"},
		Redis:       config.RedisConfig{Dns: redisAddr},
		Queue: config.QueueConfig{
			BatchSize:          10,
			MaxSendAttempts:    3,
			MaxRetries:         3,
			MaxConcurrentSends: 4,
			RetentionSeconds:   86400,
			StaleThresholdSec:  900,
			Backoff:            config.BackoffConfig{Policy: config.BackoffConstant},
			MaintenanceQueue:   "payq_maintenance",
			WebhookQueue:       "payq_webhook_queue",
		},
		Processor: config.ProcessorConfig{
			SecretKey:               "sk_test",
			BaseURL:                 "https://processor.test/v2/money_management",
			FinancialAccountID:      "fa_platform",
			WebhookSecret:           testWebhookSecret,
			WebhookToleranceSeconds: 300,
			TimeoutSeconds:          5,
			PaymentCacheTTLSeconds:  60,
		},
	}
}

type testEnv struct {
	payq  *Payq
	store *memStore
	proc  *stubProcessor
	clock *testClock
	redis *miniredis.Miniredis
	cfg   *config.Configuration
}

func newTestEnv(t *testing.T, mutate ...func(*config.Configuration)) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := newTestConfig(mr.Addr())
	for _, m := range mutate {
		m(cfg)
	}
	config.MockConfig(cfg)

	store := newMemStore()
	proc := newStubProcessor()
	clock := newTestClock()

	p, err := NewPayq(store, WithProcessor(proc), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	return &testEnv{payq: p, store: store, proc: proc, clock: clock, redis: mr, cfg: cfg}
}

// seedItems inserts n enqueued items created one second apart.
func (e *testEnv) seedItems(n int) []string {
	ids := make([]string, n)
	base := e.clock.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		ids[i] = gofakeit.UUID()
		e.store.seed(&model.QueueItem{
			QueueID: ids[i],
			Status:  model.QueueStatusEnqueued,
			Payload: model.PaymentDetails{
				From:     "fa_" + gofakeit.LetterN(8),
				To:       "acct_" + gofakeit.LetterN(8),
				Amount:   int64(gofakeit.Number(1, 100000)),
				Currency: "usd",
			},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return ids
}

func TestNewPayq(t *testing.T) {
	mr := miniredis.RunT(t)
	config.MockConfig(newTestConfig(mr.Addr()))

	p, err := NewPayq(newMemStore())
	require.NoError(t, err)
	defer p.Close()

	_, cached := p.processor.(*processor.CachedProcessor)
	assert.True(t, cached)
	assert.NotNil(t, p.Queue())
	assert.WithinDuration(t, time.Now().UTC(), p.clock(), time.Minute)
}

func TestNewPayqRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	config.MockConfig(newTestConfig(addr))

	_, err := NewPayq(newMemStore())
	assert.Error(t, err)
}
