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
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/payq/internal/apierror"
	"github.com/blnkfinance/payq/model"
)

const queueItemColumns = `queue_id, queue_status, payload, transaction_id, retries, last_failure_message, external_payment_id, ttl, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueItem(row rowScanner) (*model.QueueItem, error) {
	item := &model.QueueItem{}
	var payload []byte
	var transactionID, createdBy sql.NullString
	err := row.Scan(
		&item.QueueID,
		&item.Status,
		&payload,
		&transactionID,
		&item.Retries,
		&item.LastFailureMessage,
		&item.ExternalPaymentID,
		&item.TTL,
		&createdBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &item.Payload); err != nil {
		return nil, err
	}
	item.TransactionID = transactionID.String
	item.CreatedBy = createdBy.String
	return item, nil
}

func scanQueueItems(rows *sql.Rows) ([]*model.QueueItem, error) {
	items := []*model.QueueItem{}
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// EnqueuePayment inserts a new item in the enqueued state. The payload is stored as given and never rewritten.
func (d Datasource) EnqueuePayment(ctx context.Context, item *model.QueueItem) error {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Enqueue payment")
	defer span.End()

	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal payment payload", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO payq.payment_queue (queue_id, queue_status, payload, transaction_id, retries, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.QueueID, item.Status, payload, nullString(item.TransactionID), item.Retries, item.CreatedBy, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to enqueue payment", err)
	}

	return nil
}

func (d Datasource) GetQueueItem(ctx context.Context, queueID string) (*model.QueueItem, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Get queue item")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+queueItemColumns+` FROM payq.payment_queue WHERE queue_id = $1`, queueID)
	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Queue item with ID '%s' not found", queueID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve queue item", err)
	}
	return item, nil
}

// ClaimQueueItems marks up to maxItems of the oldest eligible enqueued items as processing and returns them.
// Rows locked by a concurrent claimer are skipped, so no two claimers ever receive the same item.
func (d Datasource) ClaimQueueItems(ctx context.Context, maxItems, maxRetries int, now time.Time) ([]*model.QueueItem, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Claim queue items")
	defer span.End()
	span.SetAttributes(attribute.Int("payq.claim.max_items", maxItems))

	if maxItems <= 0 {
		return []*model.QueueItem{}, nil
	}

	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin claim transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		WITH claimable AS (
			SELECT queue_id
			FROM payq.payment_queue
			WHERE queue_status = 'enqueued' AND retries < $1
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE payq.payment_queue AS q
		SET queue_status = 'processing', updated_at = $3
		FROM claimable
		WHERE q.queue_id = claimable.queue_id
		RETURNING q.queue_id, q.queue_status, q.payload, q.transaction_id, q.retries, q.last_failure_message,
			q.external_payment_id, q.ttl, q.created_by, q.created_at, q.updated_at
	`, maxRetries, maxItems, now)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim queue items", err)
	}

	items, err := scanQueueItems(rows)
	rows.Close()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan claimed queue items", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit claim transaction", err)
	}

	// RETURNING does not preserve the subquery order.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	span.SetAttributes(attribute.Int("payq.claim.claimed", len(items)))
	return items, nil
}

// RecordSendSuccess settles a processing item. An external payment id that is already set is kept.
func (d Datasource) RecordSendSuccess(ctx context.Context, queueID, externalPaymentID string, ttl, now time.Time) (bool, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Record send success")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE payq.payment_queue
		SET queue_status = 'dequeued',
			external_payment_id = COALESCE(external_payment_id, $2),
			ttl = $3,
			last_failure_message = NULL,
			updated_at = $4
		WHERE queue_id = $1 AND queue_status = 'processing'
	`, queueID, externalPaymentID, ttl, now)
	if err != nil {
		span.RecordError(err)
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record send success", err)
	}

	return rowsChanged(result)
}

// RecordSendFailure stores the outcome of a failed attempt. The retry counter never moves backwards.
func (d Datasource) RecordSendFailure(ctx context.Context, queueID string, retries int, status model.QueueStatus, message string, now time.Time) (bool, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Record send failure")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE payq.payment_queue
		SET retries = $2,
			queue_status = $3,
			last_failure_message = $4,
			updated_at = $5
		WHERE queue_id = $1 AND queue_status = 'processing' AND retries <= $2
	`, queueID, retries, status, message, now)
	if err != nil {
		span.RecordError(err)
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record send failure", err)
	}

	return rowsChanged(result)
}

// PurgeSettledQueueItems deletes dequeued items whose ttl is at or before now and returns them.
func (d Datasource) PurgeSettledQueueItems(ctx context.Context, now time.Time) ([]*model.QueueItem, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Purge settled queue items")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		DELETE FROM payq.payment_queue
		WHERE queue_status = 'dequeued' AND ttl IS NOT NULL AND ttl <= $1
		RETURNING `+queueItemColumns, now)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to purge settled queue items", err)
	}
	defer rows.Close()

	items, err := scanQueueItems(rows)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan purged queue items", err)
	}
	return items, nil
}

// RequeueStaleQueueItems returns abandoned processing items with retry budget left to the enqueued state.
func (d Datasource) RequeueStaleQueueItems(ctx context.Context, staleBefore time.Time, maxRetries int, now time.Time) ([]string, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Requeue stale queue items")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		UPDATE payq.payment_queue
		SET queue_status = 'enqueued', updated_at = $3
		WHERE queue_status = 'processing' AND retries < $2 AND updated_at < $1
		RETURNING queue_id
	`, staleBefore, maxRetries, now)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to requeue stale queue items", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan requeued queue item", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read requeued queue items", err)
	}
	return ids, nil
}

func rowsChanged(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return n > 0, nil
}
