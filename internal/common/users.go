/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/store"

	"go.uber.org/zap"
)

// UserLookup is the subset of the store needed to resolve users
type UserLookup interface {
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// ResolveUser finds a user by id, falling back to email when the argument
// looks like one.
func ResolveUser(ctx context.Context, users UserLookup, idOrEmail string) (*models.User, error) {
	idOrEmail = strings.TrimSpace(idOrEmail)
	if idOrEmail == "" {
		return nil, fmt.Errorf("user id or email is required")
	}

	user, err := users.GetUserById(ctx, idOrEmail)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) || !strings.Contains(idOrEmail, "@") {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	zap.L().Info("Looking up user by email", zap.String("email", idOrEmail))
	user, err = users.GetUserByEmail(ctx, idOrEmail)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	return user, nil
}
