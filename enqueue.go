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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/payq/internal/apierror"
	"github.com/blnkfinance/payq/model"
)

// EnqueuePayment validates a payment intent and queues it for sending. transactionID links the
// payment to a ledger Transaction and may be empty. An empty source account falls back to the
// configured platform financial account.
func (p *Payq) EnqueuePayment(ctx context.Context, details model.PaymentDetails, transactionID, createdBy string) (*model.QueueItem, error) {
	ctx, span := otel.Tracer("payq.queue").Start(ctx, "Enqueue payment")
	defer span.End()

	details.Currency = model.NormalizeCurrency(details.Currency)
	if details.From == "" {
		details.From = p.config.Processor.FinancialAccountID
	}
	if err := details.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("invalid payment: %v", err), nil)
	}

	if transactionID != "" {
		if _, err := p.datasource.GetTransaction(ctx, transactionID); err != nil {
			return nil, err
		}
	}

	now := p.clock()
	item := &model.QueueItem{
		QueueID:       uuid.New().String(),
		Status:        model.QueueStatusEnqueued,
		Payload:       details,
		TransactionID: transactionID,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := p.datasource.EnqueuePayment(ctx, item); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("payq.queue_id", item.QueueID))
	logrus.WithFields(logrus.Fields{
		"queue_id":       item.QueueID,
		"transaction_id": transactionID,
		"amount":         details.Amount,
		"currency":       details.Currency,
	}).Info("payment enqueued")
	return item, nil
}

// GetQueueItem returns a queued payment by id.
func (p *Payq) GetQueueItem(ctx context.Context, queueID string) (*model.QueueItem, error) {
	return p.datasource.GetQueueItem(ctx, queueID)
}
