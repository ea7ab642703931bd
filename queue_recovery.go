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
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// minStaleThreshold keeps recovery away from items whose send is still in flight.
const minStaleThreshold = 2 * time.Minute

// StaleProcessingRecoveryProcessor periodically returns abandoned processing items to the queue.
type StaleProcessingRecoveryProcessor struct {
	payq         *Payq
	pollInterval time.Duration
	threshold    time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	running      bool
	mu           sync.Mutex
}

func NewStaleProcessingRecoveryProcessor(payq *Payq) *StaleProcessingRecoveryProcessor {
	threshold := payq.config.Queue.StaleThreshold()
	if threshold < minStaleThreshold {
		threshold = minStaleThreshold
	}

	return &StaleProcessingRecoveryProcessor{
		payq:         payq,
		pollInterval: threshold / 2,
		threshold:    threshold,
		stopCh:       make(chan struct{}),
	}
}

func (p *StaleProcessingRecoveryProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Stale processing recovery started")
}

func (p *StaleProcessingRecoveryProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Stale processing recovery stopped")
}

func (p *StaleProcessingRecoveryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *StaleProcessingRecoveryProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if _, err := p.payq.RequeueStaleItems(ctx, p.threshold); err != nil {
				logrus.Errorf("stale processing recovery failed: %v", err)
			}
		}
	}
}

// RequeueStaleItems returns processing items untouched for longer than threshold to the enqueued
// state, provided they still have retry budget. This covers crashed workers and items that ran out
// of send attempts within one cycle. Thresholds under two minutes are raised to two minutes.
func (p *Payq) RequeueStaleItems(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold < minStaleThreshold {
		threshold = minStaleThreshold
	}

	now := p.clock()
	ids, err := p.datasource.RequeueStaleQueueItems(ctx, now.Add(-threshold), p.config.Queue.MaxRetries, now)
	if err != nil {
		return 0, err
	}

	if len(ids) > 0 {
		logrus.WithFields(logrus.Fields{"requeued": len(ids), "threshold": threshold}).Info("requeued stale payments")
	}
	return len(ids), nil
}

// RequeueStale runs RequeueStaleItems with the configured stale threshold.
func (p *Payq) RequeueStale(ctx context.Context) (int, error) {
	return p.RequeueStaleItems(ctx, p.config.Queue.StaleThreshold())
}
