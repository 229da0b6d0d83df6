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
	"fmt"
	"strings"

	"institutional-custody-go/internal/models"

	"go.uber.org/zap"
)

// UserInfo represents simplified user information for command-line utilities
type UserInfo struct {
	Id    string
	Name  string
	Email string
}

type userSource interface {
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// InitializeUsers retrieves users based on an optional email filter.
// If emailFilter is empty, returns all users.
func InitializeUsers(ctx context.Context, source userSource, emailFilter string, logger *zap.Logger) ([]UserInfo, error) {
	var users []UserInfo

	if emailFilter != "" {
		logger.Info("Looking up user by email", zap.String("email", emailFilter))
		user, err := source.GetUserByEmail(ctx, emailFilter)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		users = append(users, toUserInfo(*user))
	} else {
		allUsers, err := source.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}
		for _, u := range allUsers {
			users = append(users, toUserInfo(u))
		}
	}

	logger.Info("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

// ResolveUser accepts either a user id or an email address
func ResolveUser(ctx context.Context, source userSource, ref string) (*UserInfo, error) {
	if ref == "" {
		return nil, fmt.Errorf("user is required")
	}

	var user *models.User
	var err error
	if strings.Contains(ref, "@") {
		user, err = source.GetUserByEmail(ctx, ref)
	} else {
		user, err = source.GetUserById(ctx, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("user %q not found: %w", ref, err)
	}

	info := toUserInfo(*user)
	return &info, nil
}

func toUserInfo(u models.User) UserInfo {
	return UserInfo{
		Id:    u.Id,
		Name:  u.Name,
		Email: u.Email,
	}
}
