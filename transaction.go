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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/payq/internal/apierror"
	"github.com/blnkfinance/payq/model"
)

// ErrProcessorAccountMissing is returned when a payout is requested for a user who has not
// finished processor onboarding.
var ErrProcessorAccountMissing = errors.New("user has no processor account")

// CreateTransaction records a ledger entry for a payout to the user identified by email. The
// Transaction starts as created and only moves on when the processor reports on it.
func (p *Payq) CreateTransaction(ctx context.Context, email string, amount int64, currency string) (*model.Transaction, error) {
	ctx, span := otel.Tracer("payq.transaction").Start(ctx, "Create transaction")
	defer span.End()

	intent := model.TransactionIntent{Email: email, Amount: amount, Currency: currency}
	intent.Normalize()
	if err := intent.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("invalid transaction: %v", err), nil)
	}

	user, err := p.datasource.GetUserByEmail(ctx, intent.Email)
	if err != nil {
		return nil, err
	}
	if !user.HasProcessorAccount() {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, ErrProcessorAccountMissing.Error(), ErrProcessorAccountMissing)
	}

	now := p.clock()
	txn, err := p.datasource.CreateTransaction(ctx, &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Amount:    intent.Amount,
		Currency:  intent.Currency,
		Status:    model.TransactionStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"transaction_id": txn.ID, "user_id": user.ID}).Info("transaction created")
	return txn, nil
}

func (p *Payq) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return p.datasource.GetTransaction(ctx, id)
}
