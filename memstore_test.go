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
	"sort"
	"sync"
	"time"

	"github.com/blnkfinance/payq/internal/apierror"
	"github.com/blnkfinance/payq/model"
)

// memStore is an in-memory datasource with the same row guards as the Postgres queries. Every
// method holds a single mutex, so a claim behaves like a locked select that skips rows another
// claimer already took.
type memStore struct {
	mu       sync.Mutex
	items    map[string]*model.QueueItem
	txns     map[string]*model.Transaction
	users    map[string]*model.User
	claimErr error
}

func newMemStore() *memStore {
	return &memStore{
		items: map[string]*model.QueueItem{},
		txns:  map[string]*model.Transaction{},
		users: map[string]*model.User{},
	}
}

func copyItem(item *model.QueueItem) *model.QueueItem {
	c := *item
	if item.LastFailureMessage != nil {
		msg := *item.LastFailureMessage
		c.LastFailureMessage = &msg
	}
	if item.ExternalPaymentID != nil {
		id := *item.ExternalPaymentID
		c.ExternalPaymentID = &id
	}
	if item.TTL != nil {
		ttl := *item.TTL
		c.TTL = &ttl
	}
	return &c
}

func copyTxn(txn *model.Transaction) *model.Transaction {
	c := *txn
	if txn.ExternalPaymentID != nil {
		id := *txn.ExternalPaymentID
		c.ExternalPaymentID = &id
	}
	return &c
}

func (m *memStore) seed(item *model.QueueItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.QueueID] = copyItem(item)
}

func (m *memStore) item(id string) *model.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil
	}
	return copyItem(item)
}

func (m *memStore) txn(id string) *model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[id]
	if !ok {
		return nil
	}
	return copyTxn(txn)
}

func (m *memStore) EnqueuePayment(_ context.Context, item *model.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.QueueID]; ok {
		return apierror.NewAPIError(apierror.ErrConflict, "duplicate queue id", nil)
	}
	m.items[item.QueueID] = copyItem(item)
	return nil
}

func (m *memStore) GetQueueItem(_ context.Context, queueID string) (*model.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[queueID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Queue item with ID '%s' not found", queueID), nil)
	}
	return copyItem(item), nil
}

func (m *memStore) ClaimQueueItems(_ context.Context, maxItems, maxRetries int, now time.Time) ([]*model.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}

	var eligible []*model.QueueItem
	for _, item := range m.items {
		if item.Status == model.QueueStatusEnqueued && item.Retries < maxRetries {
			eligible = append(eligible, item)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > maxItems {
		eligible = eligible[:maxItems]
	}

	claimed := make([]*model.QueueItem, 0, len(eligible))
	for _, item := range eligible {
		item.Status = model.QueueStatusProcessing
		item.UpdatedAt = now
		claimed = append(claimed, copyItem(item))
	}
	return claimed, nil
}

func (m *memStore) RecordSendSuccess(_ context.Context, queueID, externalPaymentID string, ttl, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[queueID]
	if !ok || item.Status != model.QueueStatusProcessing {
		return false, nil
	}
	item.Status = model.QueueStatusDequeued
	if item.ExternalPaymentID == nil {
		item.ExternalPaymentID = &externalPaymentID
	}
	item.TTL = &ttl
	item.LastFailureMessage = nil
	item.UpdatedAt = now
	return true, nil
}

func (m *memStore) RecordSendFailure(_ context.Context, queueID string, retries int, status model.QueueStatus, message string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[queueID]
	if !ok || item.Status != model.QueueStatusProcessing || item.Retries > retries {
		return false, nil
	}
	item.Retries = retries
	item.Status = status
	item.LastFailureMessage = &message
	item.UpdatedAt = now
	return true, nil
}

func (m *memStore) PurgeSettledQueueItems(_ context.Context, now time.Time) ([]*model.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := []*model.QueueItem{}
	for id, item := range m.items {
		if item.Status == model.QueueStatusDequeued && item.TTL != nil && !item.TTL.After(now) {
			deleted = append(deleted, copyItem(item))
			delete(m.items, id)
		}
	}
	return deleted, nil
}

func (m *memStore) RequeueStaleQueueItems(_ context.Context, staleBefore time.Time, maxRetries int, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for id, item := range m.items {
		if item.Status == model.QueueStatusProcessing && item.Retries < maxRetries && item.UpdatedAt.Before(staleBefore) {
			item.Status = model.QueueStatusEnqueued
			item.UpdatedAt = now
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) CreateTransaction(_ context.Context, txn *model.Transaction) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[txn.ID] = copyTxn(txn)
	return copyTxn(txn), nil
}

func (m *memStore) GetTransaction(_ context.Context, id string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), nil)
	}
	return copyTxn(txn), nil
}

func (m *memStore) GetTransactionByExternalPaymentID(_ context.Context, externalPaymentID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.txns {
		if txn.ExternalPaymentID != nil && *txn.ExternalPaymentID == externalPaymentID {
			return copyTxn(txn), nil
		}
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "transaction not found", nil)
}

func (m *memStore) AttachExternalPaymentID(_ context.Context, id, externalPaymentID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[id]
	if !ok || txn.ExternalPaymentID != nil {
		return false, nil
	}
	txn.ExternalPaymentID = &externalPaymentID
	txn.UpdatedAt = now
	return true, nil
}

func (m *memStore) UpdateTransactionStatus(_ context.Context, id string, status model.TransactionStatus, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[id]
	if !ok || txn.Status != model.TransactionStatusCreated {
		return false, nil
	}
	txn.Status = status
	txn.UpdatedAt = now
	return true, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("User with email '%s' not found", email), nil)
	}
	c := *user
	return &c, nil
}
