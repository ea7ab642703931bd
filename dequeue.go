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
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/payq/config"
	"github.com/blnkfinance/payq/internal/processor"
	"github.com/blnkfinance/payq/model"
)

// SendResult is the outcome of driving one claimed item through the processor.
type SendResult struct {
	Success           bool   `json:"success"`
	QueueID           string `json:"queue_id"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	Message           string `json:"message,omitempty"`
}

// BatchResult aggregates one claim and send cycle.
type BatchResult struct {
	Claimed   int          `json:"claimed"`
	Successes int          `json:"successes"`
	Failures  int          `json:"failures"`
	Results   []SendResult `json:"-"`
}

// Summary describes the cycle for the trigger's caller.
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("%d payments sent to the processor. %d payments failed to send", r.Successes, r.Failures)
}

// ProcessBatch claims the oldest eligible payments and sends them concurrently. Claim failures
// fail the cycle; per item failures are recorded on the item and counted.
func (p *Payq) ProcessBatch(ctx context.Context) (*BatchResult, error) {
	ctx, span := otel.Tracer("payq.queue").Start(ctx, "Process batch")
	defer span.End()

	cfg := p.config.Queue
	items, err := p.datasource.ClaimQueueItems(ctx, cfg.BatchSize, cfg.MaxRetries, p.clock())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &BatchResult{Claimed: len(items)}
	span.SetAttributes(attribute.Int("payq.batch.claimed", len(items)))
	if len(items) == 0 {
		return result, nil
	}

	// claimed items are always run to completion, whatever happens to the trigger
	sendCtx := context.WithoutCancel(ctx)

	workers := cfg.MaxConcurrentSends
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}
	sem := make(chan struct{}, workers)
	results := make([]SendResult, len(items))
	var wg sync.WaitGroup

	for i, item := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, item *model.QueueItem) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.sendPayment(sendCtx, item)
		}(i, item)
	}
	wg.Wait()

	for _, r := range results {
		if r.Success {
			result.Successes++
		} else {
			result.Failures++
		}
	}
	result.Results = results

	span.SetAttributes(
		attribute.Int("payq.batch.successes", result.Successes),
		attribute.Int("payq.batch.failures", result.Failures),
	)
	return result, nil
}

func newBackOff(cfg config.BackoffConfig) backoff.BackOff {
	if cfg.Policy == config.BackoffExponential {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.InitialInterval()
		b.MaxInterval = cfg.MaxInterval()
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
	return backoff.NewConstantBackOff(cfg.InitialInterval())
}

// paymentMetadata is attached to every outbound payment so webhook events can be traced back.
func paymentMetadata(item *model.QueueItem) map[string]string {
	metadata := map[string]string{"queueId": item.QueueID}
	if item.TransactionID != "" {
		metadata["transactionId"] = item.TransactionID
	}
	return metadata
}

// sendPayment makes up to MaxSendAttempts processor calls for a claimed item, recording every
// failed attempt. The queue id is the idempotency key so a repeated call never creates a second
// payment. An item that runs out of attempts with retry budget left stays processing until stale
// recovery returns it to the queue.
func (p *Payq) sendPayment(ctx context.Context, item *model.QueueItem) SendResult {
	ctx, span := otel.Tracer("payq.queue").Start(ctx, "Send payment")
	defer span.End()
	span.SetAttributes(attribute.String("payq.queue_id", item.QueueID))

	cfg := p.config.Queue
	logger := logrus.WithFields(logrus.Fields{"queue_id": item.QueueID, "transaction_id": item.TransactionID})
	params := processor.NewOutboundPaymentParams(item.Payload.From, item.Payload.To, item.Payload.Amount, item.Payload.Currency, paymentMetadata(item))

	attempts := cfg.MaxSendAttempts
	if attempts <= 0 {
		attempts = 1
	}

	retries := item.Retries
	var payment *processor.OutboundPayment

	operation := func() error {
		var err error
		payment, err = p.processor.CreateOutboundPayment(ctx, params, item.QueueID)
		if err == nil {
			return nil
		}

		retries++
		if !processor.IsRetryable(err) && retries < cfg.MaxRetries {
			retries = cfg.MaxRetries
		}
		status := model.QueueStatusProcessing
		if retries >= cfg.MaxRetries {
			status = model.QueueStatusFailed
		}

		updated, storeErr := p.datasource.RecordSendFailure(ctx, item.QueueID, retries, status, err.Error(), p.clock())
		if storeErr != nil {
			return backoff.Permanent(storeErr)
		}
		if !updated {
			logger.Warn("queue item changed state while sending; abandoning")
			return backoff.Permanent(err)
		}
		if status.IsTerminal() {
			logger.WithError(err).WithField("retries", retries).Error("payment failed")
			p.notifyQueueEvent(ctx, "payment.failed", item.QueueID)
			return backoff.Permanent(err)
		}

		logger.WithError(err).WithField("retries", retries).Warn("payment attempt failed")
		return err
	}

	policy := backoff.WithMaxRetries(newBackOff(cfg.Backoff), uint64(attempts-1))
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		span.RecordError(err)
		return SendResult{QueueID: item.QueueID, Message: err.Error()}
	}

	return p.settle(ctx, item, payment.ID, logger)
}

// settle records a successful send and links the payment to its Transaction.
func (p *Payq) settle(ctx context.Context, item *model.QueueItem, externalPaymentID string, logger *logrus.Entry) SendResult {
	now := p.clock()
	ttl := now.Add(p.config.Queue.SettlementRetention())

	updated, err := p.datasource.RecordSendSuccess(ctx, item.QueueID, externalPaymentID, ttl, now)
	if err != nil {
		// the payment exists; a later resend with the same idempotency key returns it again
		logger.WithError(err).Error("failed to record sent payment")
		return SendResult{QueueID: item.QueueID, ExternalPaymentID: externalPaymentID, Message: err.Error()}
	}
	if !updated {
		logger.Warn("queue item was no longer processing when settling")
	}

	if item.TransactionID != "" {
		if _, err := p.datasource.AttachExternalPaymentID(ctx, item.TransactionID, externalPaymentID, now); err != nil {
			logger.WithError(err).Warn("failed to link external payment to transaction")
		}
	}

	logger.WithField("external_payment_id", externalPaymentID).Info("payment sent")
	p.notifyQueueEvent(ctx, "payment.dequeued", item.QueueID)
	return SendResult{Success: true, QueueID: item.QueueID, ExternalPaymentID: externalPaymentID}
}

func (p *Payq) notifyQueueEvent(ctx context.Context, event, queueID string) {
	if p.config.Notification.Webhook.Url == "" {
		return
	}
	item, err := p.datasource.GetQueueItem(ctx, queueID)
	if err != nil {
		return
	}
	if err := p.queue.SendWebhook(ctx, NewWebhook{Event: event, Payload: item}); err != nil {
		logrus.WithError(err).WithField("event", event).Warn("failed to queue webhook")
	}
}
