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
	"time"

	"github.com/blnkfinance/payq/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	queue
	transaction
	user
}

// queue defines the payment queue operations. Every mutation after a claim is a single-row
// update guarded on queue_status = 'processing'; the bool result reports whether a row changed.
type queue interface {
	EnqueuePayment(ctx context.Context, item *model.QueueItem) error
	GetQueueItem(ctx context.Context, queueID string) (*model.QueueItem, error)
	ClaimQueueItems(ctx context.Context, maxItems, maxRetries int, now time.Time) ([]*model.QueueItem, error)
	RecordSendSuccess(ctx context.Context, queueID, externalPaymentID string, ttl, now time.Time) (bool, error)
	RecordSendFailure(ctx context.Context, queueID string, retries int, status model.QueueStatus, message string, now time.Time) (bool, error)
	PurgeSettledQueueItems(ctx context.Context, now time.Time) ([]*model.QueueItem, error)
	RequeueStaleQueueItems(ctx context.Context, staleBefore time.Time, maxRetries int, now time.Time) ([]string, error)
}

// transaction defines the ledger operations driven by processor events.
type transaction interface {
	CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactionByExternalPaymentID(ctx context.Context, externalPaymentID string) (*model.Transaction, error)
	AttachExternalPaymentID(ctx context.Context, id, externalPaymentID string, now time.Time) (bool, error)
	UpdateTransactionStatus(ctx context.Context, id string, status model.TransactionStatus, now time.Time) (bool, error)
}

type user interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}
