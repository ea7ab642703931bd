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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/payq/internal/apierror"
	"github.com/blnkfinance/payq/model"
)

const transactionColumns = `id, user_id, external_payment_id, amount, currency, transaction_status, created_at, updated_at`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	txn := &model.Transaction{}
	err := row.Scan(&txn.ID, &txn.UserID, &txn.ExternalPaymentID, &txn.Amount, &txn.Currency, &txn.Status, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (d Datasource) CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Saving transaction to db")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO payq.transactions (id, user_id, amount, currency, transaction_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, txn.ID, txn.UserID, txn.Amount, txn.Currency, txn.Status, txn.CreatedAt, txn.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", err)
	}

	return txn, nil
}

func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Get transaction")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM payq.transactions WHERE id = $1`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return txn, nil
}

func (d Datasource) GetTransactionByExternalPaymentID(ctx context.Context, externalPaymentID string) (*model.Transaction, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Get transaction by external payment id")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM payq.transactions WHERE external_payment_id = $1`, externalPaymentID)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with external payment ID '%s' not found", externalPaymentID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return txn, nil
}

// AttachExternalPaymentID links a processor payment to a transaction. A link that already exists is never replaced.
func (d Datasource) AttachExternalPaymentID(ctx context.Context, id, externalPaymentID string, now time.Time) (bool, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Attach external payment id")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE payq.transactions
		SET external_payment_id = $2, updated_at = $3
		WHERE id = $1 AND external_payment_id IS NULL
	`, id, externalPaymentID, now)
	if err != nil {
		span.RecordError(err)
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to attach external payment id", err)
	}

	return rowsChanged(result)
}

// UpdateTransactionStatus moves a created transaction to status. Transactions already in a terminal
// status are left untouched and false is returned.
func (d Datasource) UpdateTransactionStatus(ctx context.Context, id string, status model.TransactionStatus, now time.Time) (bool, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Update transaction status")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE payq.transactions
		SET transaction_status = $2, updated_at = $3
		WHERE id = $1 AND transaction_status = 'created'
	`, id, status, now)
	if err != nil {
		span.RecordError(err)
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update transaction status", err)
	}

	return rowsChanged(result)
}
