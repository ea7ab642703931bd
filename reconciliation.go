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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	redlock "github.com/blnkfinance/payq/internal/lock"
	"github.com/blnkfinance/payq/internal/processor"
	"github.com/blnkfinance/payq/model"
)

var (
	// ErrInvalidSignature is returned when a webhook fails signature verification.
	ErrInvalidSignature = processor.ErrInvalidSignature
	// ErrMalformedEvent is returned when a verified webhook body is not a usable event.
	ErrMalformedEvent = processor.ErrMalformedEvent
	// ErrUnresolvedTransaction is returned when an event cannot be matched to a Transaction.
	ErrUnresolvedTransaction = errors.New("processor event does not match a transaction")
)

// eventDedupeWindow covers the processor's redelivery schedule.
const eventDedupeWindow = 72 * time.Hour

// eventStatuses maps processor events to the Transaction status they settle on.
var eventStatuses = map[string]model.TransactionStatus{
	processor.EventOutboundTransferCanceled: model.TransactionStatusCanceled,
	processor.EventOutboundTransferFailed:   model.TransactionStatusFailed,
	processor.EventOutboundPaymentPosted:    model.TransactionStatusPosted,
	processor.EventOutboundPaymentReturned:  model.TransactionStatusReturned,
}

// VerifyProcessorEvent checks a webhook's signature and decodes it. Nothing in the body is
// read before the signature is verified.
func (p *Payq) VerifyProcessorEvent(payload []byte, signatureHeader string) (*processor.Event, error) {
	cfg := p.config.Processor
	if err := processor.VerifySignature(payload, signatureHeader, cfg.WebhookSecret, cfg.WebhookTolerance(), p.clock()); err != nil {
		return nil, err
	}
	return processor.ParseEvent(payload)
}

// AuditProcessorEvent verifies a webhook and records it without changing any state.
func (p *Payq) AuditProcessorEvent(payload []byte, signatureHeader string) (*processor.Event, error) {
	event, err := p.VerifyProcessorEvent(payload, signatureHeader)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"payment_id": event.PaymentID(),
		"created":    event.Created,
	}).Info("processor event received")
	return event, nil
}

// HandleProcessorEvent reconciles a Transaction from a signed processor webhook. Events that do
// not move a payment to a terminal status are acknowledged without work, as are redeliveries of
// an event already handled. A Transaction that is no longer created is left as it is.
func (p *Payq) HandleProcessorEvent(ctx context.Context, payload []byte, signatureHeader string) error {
	ctx, span := otel.Tracer("payq.reconciliation").Start(ctx, "Handle processor event")
	defer span.End()

	event, err := p.VerifyProcessorEvent(payload, signatureHeader)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("payq.event_id", event.ID), attribute.String("payq.event_type", event.Type))
	logger := logrus.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.Type})

	if !event.IsMoneyMovement() {
		logger.Debug("ignoring processor event outside money management")
		return nil
	}
	status, ok := eventStatuses[event.Type]
	if !ok {
		logger.Debug("ignoring processor event")
		return nil
	}
	if event.PaymentID() == "" {
		return fmt.Errorf("%w: %s has no related payment", ErrMalformedEvent, event.ID)
	}

	locker := redlock.NewLocker(p.redis, "payq:processor-event:"+event.ID, uuid.New().String())
	if err := locker.Lock(ctx, eventDedupeWindow); err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			logger.Info("processor event already handled")
			return nil
		}
		logger.WithError(err).Warn("event de-duplication unavailable")
		locker = nil
	}

	if err := p.applyEventStatus(ctx, event, status, logger); err != nil {
		if locker != nil {
			if unlockErr := locker.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
				logger.WithError(unlockErr).Warn("failed to release event guard")
			}
		}
		span.RecordError(err)
		return err
	}
	return nil
}

func (p *Payq) applyEventStatus(ctx context.Context, event *processor.Event, status model.TransactionStatus, logger *logrus.Entry) error {
	transactionID, err := p.resolveTransactionID(ctx, event.PaymentID())
	if err != nil {
		return err
	}
	logger = logger.WithField("transaction_id", transactionID)

	updated, err := p.datasource.UpdateTransactionStatus(ctx, transactionID, status, p.clock())
	if err != nil {
		return err
	}
	if !updated {
		txn, err := p.datasource.GetTransaction(ctx, transactionID)
		if err != nil {
			logger.WithError(err).Warn("transaction not found; event ignored")
			return nil
		}
		if txn.Status.IsTerminal() {
			logger.WithFields(logrus.Fields{"status": status, "settled_as": txn.Status}).Info("transaction already settled; event ignored")
		}
		return nil
	}

	logger.WithField("status", status).Info("transaction reconciled")
	return nil
}

// resolveTransactionID finds the Transaction behind an outbound payment, preferring the
// correlation id written into the payment's metadata at send time.
func (p *Payq) resolveTransactionID(ctx context.Context, paymentID string) (string, error) {
	payment, err := p.processor.GetOutboundPayment(ctx, paymentID)
	if err == nil && payment.Metadata["transactionId"] != "" {
		return payment.Metadata["transactionId"], nil
	}
	if err != nil {
		logrus.WithError(err).WithField("payment_id", paymentID).Warn("outbound payment lookup failed")
	}

	txn, lookupErr := p.datasource.GetTransactionByExternalPaymentID(ctx, paymentID)
	if lookupErr != nil {
		if err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: payment %s", ErrUnresolvedTransaction, paymentID)
	}
	return txn.ID, nil
}
