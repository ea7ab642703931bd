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
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// TransactionStatus is the ledger state of a Transaction as reported by the processor.
type TransactionStatus string

const (
	TransactionStatusCreated  TransactionStatus = "created"
	TransactionStatusPosted   TransactionStatus = "posted"
	TransactionStatusCanceled TransactionStatus = "canceled"
	TransactionStatusFailed   TransactionStatus = "failed"
	TransactionStatusReturned TransactionStatus = "returned"
)

// IsTerminal reports whether the status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusCreated
}

type Transaction struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	ExternalPaymentID *string           `json:"external_payment_id,omitempty"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	Status            TransactionStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// TransactionIntent is a request to record a payout to the user with Email.
type TransactionIntent struct {
	Email    string `json:"email"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Normalize trims the email and normalizes the currency.
func (t *TransactionIntent) Normalize() {
	t.Email = strings.TrimSpace(t.Email)
	t.Currency = NormalizeCurrency(t.Currency)
}

// Validate checks a normalized intent.
func (t TransactionIntent) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Email, validation.Required, is.EmailFormat),
		validation.Field(&t.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&t.Currency, validation.Required, validation.By(func(value interface{}) error {
			if !IsSupportedCurrency(value.(string)) {
				return errors.New("currency is not supported")
			}
			return nil
		})),
	)
}
