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

package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// QueueStatus is the lifecycle state of a queued outbound payment.
type QueueStatus string

const (
	QueueStatusEnqueued   QueueStatus = "enqueued"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusDequeued   QueueStatus = "dequeued"
	QueueStatusFailed     QueueStatus = "failed"
)

// IsTerminal reports whether no further sends will be attempted for an item in this status.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusDequeued || s == QueueStatusFailed
}

// PaymentDetails is the immutable payload of a queued payment. Amount is in minor units.
type PaymentDetails struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Validate checks a payment intent before it is queued. Currency is expected normalized.
func (p PaymentDetails) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.From, validation.Required),
		validation.Field(&p.To, validation.Required, validation.By(func(value interface{}) error {
			if value.(string) == p.From {
				return errors.New("must differ from the source account")
			}
			return nil
		})),
		validation.Field(&p.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&p.Currency, validation.Required, validation.By(func(value interface{}) error {
			if !IsSupportedCurrency(value.(string)) {
				return errors.New("currency is not supported")
			}
			return nil
		})),
	)
}

// QueueItem is a durable work item representing one outbound payment to send.
type QueueItem struct {
	QueueID            string         `json:"queue_id"`
	Status             QueueStatus    `json:"status"`
	Payload            PaymentDetails `json:"payload"`
	TransactionID      string         `json:"transaction_id,omitempty"`
	Retries            int            `json:"retries"`
	LastFailureMessage *string        `json:"last_failure_message,omitempty"`
	ExternalPaymentID  *string        `json:"external_payment_id,omitempty"`
	TTL                *time.Time     `json:"ttl,omitempty"`
	CreatedBy          string         `json:"created_by,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}
