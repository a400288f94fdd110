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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) CreateUser(ctx context.Context, userId, name, email string) (*models.User, error) {
	if userId == "" {
		userId = uuid.New().String()
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.q(queryInsertUser), userId, name, email); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	zap.L().Info("User created", zap.String("user_id", user.Id), zap.String("email", email))
	return user, nil
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	return s.getUser(ctx, queryGetUserById, userId)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, queryGetUserByEmail, email)
}

func (s *Service) getUser(ctx context.Context, query, arg string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, s.dialect.q(query), arg).
		Scan(&user.Id, &user.Name, &user.Email, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *Service) RegisterWebhook(ctx context.Context, userId, url string) (*models.WebhookListener, error) {
	_, err := s.db.ExecContext(ctx, s.dialect.q(queryInsertWebhook), uuid.New().String(), userId, url, now())
	if err != nil {
		return nil, fmt.Errorf("failed to register webhook: %w", err)
	}

	var l models.WebhookListener
	err = s.db.QueryRowContext(ctx, s.dialect.q(queryGetWebhookByUrl), userId, url).
		Scan(&l.Id, &l.UserId, &l.URL, &l.Active, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook: %w", err)
	}

	zap.L().Info("Webhook registered", zap.String("user_id", userId), zap.String("webhook_id", l.Id))
	return &l, nil
}

func (s *Service) GetWebhookListeners(ctx context.Context, userId string) ([]models.WebhookListener, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.q(queryGetWebhooks), userId)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhooks: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("Failed to close rows", zap.Error(err))
		}
	}()

	var listeners []models.WebhookListener
	for rows.Next() {
		var l models.WebhookListener
		if err := rows.Scan(&l.Id, &l.UserId, &l.URL, &l.Active, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		listeners = append(listeners, l)
	}
	return listeners, rows.Err()
}
