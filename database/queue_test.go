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
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/payq/internal/apierror"
	"github.com/blnkfinance/payq/model"
)

var queueColumns = []string{"queue_id", "queue_status", "payload", "transaction_id", "retries", "last_failure_message", "external_payment_id", "ttl", "created_by", "created_at", "updated_at"}

func newTestDataSource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return Datasource{Conn: db}, mock
}

func payloadJSON(t *testing.T, p model.PaymentDetails) []byte {
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return b
}

func TestEnqueuePayment_Success(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	item := &model.QueueItem{
		QueueID:       gofakeit.UUID(),
		Status:        model.QueueStatusEnqueued,
		Payload:       model.PaymentDetails{From: "acct_A", To: "acct_B", Amount: 500, Currency: "usd"},
		TransactionID: gofakeit.UUID(),
		CreatedBy:     "user_1",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	mock.ExpectExec("INSERT INTO payq.payment_queue").
		WithArgs(item.QueueID, string(model.QueueStatusEnqueued), payloadJSON(t, item.Payload), item.TransactionID, 0, "user_1", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := ds.EnqueuePayment(context.Background(), item)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueuePayment_WithoutTransactionID(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	item := &model.QueueItem{
		QueueID:   gofakeit.UUID(),
		Status:    model.QueueStatusEnqueued,
		Payload:   model.PaymentDetails{From: "acct_A", To: "acct_B", Amount: 500, Currency: "usd"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO payq.payment_queue").
		WithArgs(item.QueueID, string(model.QueueStatusEnqueued), sqlmock.AnyArg(), nil, 0, "", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, ds.EnqueuePayment(context.Background(), item))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueuePayment_Failure(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectExec("INSERT INTO payq.payment_queue").
		WillReturnError(errors.New("db error"))

	err := ds.EnqueuePayment(context.Background(), &model.QueueItem{QueueID: gofakeit.UUID()})
	assert.Error(t, err)
	assert.IsType(t, apierror.APIError{}, err)
}

func TestGetQueueItem_Success(t *testing.T) {
	ds, mock := newTestDataSource(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ttl := created.Add(24 * time.Hour)
	payload := model.PaymentDetails{From: "acct_A", To: "acct_B", Amount: 500, Currency: "usd"}

	rows := sqlmock.NewRows(queueColumns).
		AddRow("q1", "dequeued", payloadJSON(t, payload), "txn_1", 1, nil, "pay_123", ttl, "user_1", created, created)
	mock.ExpectQuery("SELECT (.+) FROM payq.payment_queue WHERE queue_id = \\$1").
		WithArgs("q1").
		WillReturnRows(rows)

	item, err := ds.GetQueueItem(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusDequeued, item.Status)
	assert.Equal(t, payload, item.Payload)
	assert.Equal(t, "txn_1", item.TransactionID)
	assert.Equal(t, 1, item.Retries)
	assert.Nil(t, item.LastFailureMessage)
	require.NotNil(t, item.ExternalPaymentID)
	assert.Equal(t, "pay_123", *item.ExternalPaymentID)
	require.NotNil(t, item.TTL)
	assert.True(t, ttl.Equal(*item.TTL))
}

func TestGetQueueItem_NotFound(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery("SELECT (.+) FROM payq.payment_queue WHERE queue_id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := ds.GetQueueItem(context.Background(), "missing")
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}

func TestClaimQueueItems_Success(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()
	older := now.Add(-2 * time.Minute)
	newer := now.Add(-1 * time.Minute)
	payload := model.PaymentDetails{From: "acct_A", To: "acct_B", Amount: 500, Currency: "usd"}

	// rows come back out of created_at order to exercise the sort
	rows := sqlmock.NewRows(queueColumns).
		AddRow("q2", "processing", payloadJSON(t, payload), nil, 0, nil, nil, nil, "user_1", newer, now).
		AddRow("q1", "processing", payloadJSON(t, payload), "txn_1", 1, "timeout", nil, nil, "user_1", older, now)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(3, 5, now).
		WillReturnRows(rows)
	mock.ExpectCommit()

	items, err := ds.ClaimQueueItems(context.Background(), 5, 3, now)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "q1", items[0].QueueID)
	assert.Equal(t, "q2", items[1].QueueID)
	assert.Equal(t, model.QueueStatusProcessing, items[0].Status)
	require.NotNil(t, items[0].LastFailureMessage)
	assert.Equal(t, "timeout", *items[0].LastFailureMessage)
	assert.Equal(t, "", items[1].TransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimQueueItems_Empty(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(3, 10, now).
		WillReturnRows(sqlmock.NewRows(queueColumns))
	mock.ExpectCommit()

	items, err := ds.ClaimQueueItems(context.Background(), 10, 3, now)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimQueueItems_ZeroBatch(t *testing.T) {
	ds, mock := newTestDataSource(t)

	items, err := ds.ClaimQueueItems(context.Background(), 0, 3, time.Now())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimQueueItems_StoreFailure(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(3, 10, now).
		WillReturnError(errors.New("connection refused"))
	mock.ExpectRollback()

	items, err := ds.ClaimQueueItems(context.Background(), 10, 3, now)
	assert.Nil(t, items)
	assert.True(t, apierror.IsCode(err, apierror.ErrInternalServer))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimQueueItems_CommitFailure(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(3, 10, now).
		WillReturnRows(sqlmock.NewRows(queueColumns))
	mock.ExpectCommit().WillReturnError(errors.New("commit failed"))

	items, err := ds.ClaimQueueItems(context.Background(), 10, 3, now)
	assert.Nil(t, items)
	assert.Error(t, err)
}

func TestRecordSendSuccess(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()
	ttl := now.Add(24 * time.Hour)

	mock.ExpectExec("SET queue_status = 'dequeued'").
		WithArgs("q1", "pay_123", ttl, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := ds.RecordSendSuccess(context.Background(), "q1", "pay_123", ttl, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSendSuccess_NotProcessing(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()
	ttl := now.Add(24 * time.Hour)

	mock.ExpectExec("COALESCE\\(external_payment_id, \\$2\\)").
		WithArgs("q1", "pay_123", ttl, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := ds.RecordSendSuccess(context.Background(), "q1", "pay_123", ttl, now)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRecordSendFailure(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	mock.ExpectExec("retries <= \\$2").
		WithArgs("q1", 3, string(model.QueueStatusFailed), "card declined", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := ds.RecordSendFailure(context.Background(), "q1", 3, model.QueueStatusFailed, "card declined", now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSendFailure_StoreError(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE payq.payment_queue").
		WillReturnError(errors.New("db error"))

	changed, err := ds.RecordSendFailure(context.Background(), "q1", 1, model.QueueStatusProcessing, "timeout", now)
	assert.False(t, changed)
	assert.IsType(t, apierror.APIError{}, err)
}

func TestPurgeSettledQueueItems(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()
	payload := model.PaymentDetails{From: "acct_A", To: "acct_B", Amount: 500, Currency: "usd"}

	rows := sqlmock.NewRows(queueColumns).
		AddRow("q1", "dequeued", payloadJSON(t, payload), "txn_1", 0, nil, "pay_123", now.Add(-time.Second), "user_1", now.Add(-25*time.Hour), now.Add(-24*time.Hour))
	mock.ExpectQuery("DELETE FROM payq.payment_queue WHERE queue_status = 'dequeued' AND ttl IS NOT NULL AND ttl <= \\$1").
		WithArgs(now).
		WillReturnRows(rows)

	items, err := ds.PurgeSettledQueueItems(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "q1", items[0].QueueID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeSettledQueueItems_Failure(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()

	mock.ExpectQuery("DELETE FROM payq.payment_queue").
		WithArgs(now).
		WillReturnError(errors.New("db error"))

	_, err := ds.PurgeSettledQueueItems(context.Background(), now)
	assert.Error(t, err)
}

func TestRequeueStaleQueueItems(t *testing.T) {
	ds, mock := newTestDataSource(t)
	now := time.Now().UTC()
	staleBefore := now.Add(-15 * time.Minute)

	mock.ExpectQuery("SET queue_status = 'enqueued'").
		WithArgs(staleBefore, 3, now).
		WillReturnRows(sqlmock.NewRows([]string{"queue_id"}).AddRow("q1").AddRow("q2"))

	ids, err := ds.RequeueStaleQueueItems(context.Background(), staleBefore, 3, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
