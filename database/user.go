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

	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/payq/internal/apierror"
	"github.com/blnkfinance/payq/model"
)

func (d Datasource) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, span := otel.Tracer("payq.database").Start(ctx, "Get user by email")
	defer span.End()

	user := &model.User{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, email, processor_account_id, created_at
		FROM payq.users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.ProcessorAccountID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("User with email '%s' not found", email), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve user", err)
	}
	return user, nil
}
