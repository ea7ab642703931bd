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

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/payq/model"
)

// PurgeResult lists the settled items removed by a cleanup cycle.
type PurgeResult struct {
	DeletedCount int                `json:"deleted_count"`
	DeletedItems []*model.QueueItem `json:"deleted_items"`
}

// PurgeSettled deletes dequeued items whose retention window has elapsed. Items in any other
// status are kept whatever their ttl. Running it again with nothing expired is a no-op.
func (p *Payq) PurgeSettled(ctx context.Context) (*PurgeResult, error) {
	ctx, span := otel.Tracer("payq.queue").Start(ctx, "Purge settled")
	defer span.End()

	items, err := p.datasource.PurgeSettledQueueItems(ctx, p.clock())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("payq.cleanup.deleted", len(items)))
	if len(items) > 0 {
		logrus.WithField("deleted", len(items)).Info("purged settled payments")
	}
	return &PurgeResult{DeletedCount: len(items), DeletedItems: items}, nil
}
