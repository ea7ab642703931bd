package mocks

import (
	"context"
	"time"

	"github.com/blnkfinance/payq/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Queue methods

func (m *MockDataSource) EnqueuePayment(ctx context.Context, item *model.QueueItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockDataSource) GetQueueItem(ctx context.Context, queueID string) (*model.QueueItem, error) {
	args := m.Called(ctx, queueID)
	item, _ := args.Get(0).(*model.QueueItem)
	return item, args.Error(1)
}

func (m *MockDataSource) ClaimQueueItems(ctx context.Context, maxItems, maxRetries int, now time.Time) ([]*model.QueueItem, error) {
	args := m.Called(ctx, maxItems, maxRetries, now)
	items, _ := args.Get(0).([]*model.QueueItem)
	return items, args.Error(1)
}

func (m *MockDataSource) RecordSendSuccess(ctx context.Context, queueID, externalPaymentID string, ttl, now time.Time) (bool, error) {
	args := m.Called(ctx, queueID, externalPaymentID, ttl, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) RecordSendFailure(ctx context.Context, queueID string, retries int, status model.QueueStatus, message string, now time.Time) (bool, error) {
	args := m.Called(ctx, queueID, retries, status, message, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) PurgeSettledQueueItems(ctx context.Context, now time.Time) ([]*model.QueueItem, error) {
	args := m.Called(ctx, now)
	items, _ := args.Get(0).([]*model.QueueItem)
	return items, args.Error(1)
}

func (m *MockDataSource) RequeueStaleQueueItems(ctx context.Context, staleBefore time.Time, maxRetries int, now time.Time) ([]string, error) {
	args := m.Called(ctx, staleBefore, maxRetries, now)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

// Transaction methods

func (m *MockDataSource) CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, txn)
	created, _ := args.Get(0).(*model.Transaction)
	return created, args.Error(1)
}

func (m *MockDataSource) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	args := m.Called(ctx, id)
	txn, _ := args.Get(0).(*model.Transaction)
	return txn, args.Error(1)
}

func (m *MockDataSource) GetTransactionByExternalPaymentID(ctx context.Context, externalPaymentID string) (*model.Transaction, error) {
	args := m.Called(ctx, externalPaymentID)
	txn, _ := args.Get(0).(*model.Transaction)
	return txn, args.Error(1)
}

func (m *MockDataSource) AttachExternalPaymentID(ctx context.Context, id, externalPaymentID string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, externalPaymentID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) UpdateTransactionStatus(ctx context.Context, id string, status model.TransactionStatus, now time.Time) (bool, error) {
	args := m.Called(ctx, id, status, now)
	return args.Bool(0), args.Error(1)
}

// User methods

func (m *MockDataSource) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}
