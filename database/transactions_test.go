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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/payq/internal/apierror"
	"github.com/blnkfinance/payq/model"
)

var transactionRowColumns = []string{"id", "user_id", "external_payment_id", "amount", "currency", "transaction_status", "created_at", "updated_at"}

func TestCreateTransaction_Success(t *testing.T) {
	ds, mock := newTestDataSource(t)

	tracer := otel.Tracer("transaction.database")
	ctx, span := tracer.Start(context.Background(), "TestCreateTransaction")
	defer span.End()

	now := time.Now().UTC()
	txn := &model.Transaction{
		ID:        gofakeit.UUID(),
		UserID:    gofakeit.UUID(),
		Amount:    50000,
		Currency:  "usd",
		Status:    model.TransactionStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO payq.transactions").
		WithArgs(txn.ID, txn.UserID, int64(50000), "usd", string(model.TransactionStatusCreated), now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := ds.CreateTransaction(ctx, txn)
	assert.NoError(t, err)
	assert.Equal(t, txn, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTransaction_Failure(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectExec("INSERT INTO payq.transactions").
		WillReturnError(errors.New("db error"))

	_, err := ds.CreateTransaction(context.Background(), &model.Transaction{ID: gofakeit.UUID()})
	assert.Error(t, err)
	assert.IsType(t, apierror.APIError{}, err)
}

func TestGetTransaction_Success(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(transactionRowColumns).
		AddRow("txn_1", "user_1", "pay_123", 500, "usd", "posted", now, now)
	mock.ExpectQuery("SELECT (.+) FROM payq.transactions WHERE id = \\$1").
		WithArgs("txn_1").
		WillReturnRows(rows)

	txn, err := ds.GetTransaction(context.Background(), "txn_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", txn.UserID)
	assert.Equal(t, int64(500), txn.Amount)
	assert.Equal(t, model.TransactionStatusPosted, txn.Status)
	require.NotNil(t, txn.ExternalPaymentID)
	assert.Equal(t, "pay_123", *txn.ExternalPaymentID)
}

func TestGetTransaction_NotFound(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery("SELECT (.+) FROM payq.transactions WHERE id = \\$1").
		WithArgs("txn_1").
		WillReturnError(sql.ErrNoRows)

	_, err := ds.GetTransaction(context.Background(), "txn_1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestGetTransactionByExternalPaymentID(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(transactionRowColumns).
		AddRow("txn_1", "user_1", "pay_123", 500, "usd", "created", now, now)
	mock.ExpectQuery("SELECT (.+) FROM payq.transactions WHERE external_payment_id = \\$1").
		WithArgs("pay_123").
		WillReturnRows(rows)

	txn, err := ds.GetTransactionByExternalPaymentID(context.Background(), "pay_123")
	require.NoError(t, err)
	assert.Equal(t, "txn_1", txn.ID)
	assert.Equal(t, model.TransactionStatusCreated, txn.Status)
}

func TestGetTransactionByExternalPaymentID_NotFound(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery("SELECT (.+) FROM payq.transactions WHERE external_payment_id = \\$1").
		WithArgs("pay_404").
		WillReturnError(sql.ErrNoRows)

	_, err := ds.GetTransactionByExternalPaymentID(context.Background(), "pay_404")
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}

func TestAttachExternalPaymentID(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	mock.ExpectExec("WHERE id = \\$1 AND external_payment_id IS NULL").
		WithArgs("txn_1", "pay_123", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("WHERE id = \\$1 AND external_payment_id IS NULL").
		WithArgs("txn_1", "pay_456", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := ds.AttachExternalPaymentID(context.Background(), "txn_1", "pay_123", now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = ds.AttachExternalPaymentID(context.Background(), "txn_1", "pay_456", now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTransactionStatus(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	mock.ExpectExec("WHERE id = \\$1 AND transaction_status = 'created'").
		WithArgs("txn_1", string(model.TransactionStatusPosted), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := ds.UpdateTransactionStatus(context.Background(), "txn_1", model.TransactionStatusPosted, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTransactionStatus_AlreadyTerminal(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE payq.transactions").
		WithArgs("txn_1", string(model.TransactionStatusReturned), now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := ds.UpdateTransactionStatus(context.Background(), "txn_1", model.TransactionStatusReturned, now)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestUpdateTransactionStatus_Failure(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE payq.transactions").
		WillReturnError(errors.New("db error"))

	_, err := ds.UpdateTransactionStatus(context.Background(), "txn_1", model.TransactionStatusFailed, now)
	assert.True(t, apierror.IsCode(err, apierror.ErrInternalServer))
}
