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
	"fmt"
	"time"

	"institutional-custody-go/internal/models"
)

func (s *Queries) InsertAccessLog(ctx context.Context, entry *models.AccessLog) error {
	details, err := encodeJSON(entry.Details)
	if err != nil {
		return err
	}
	if entry.Details == nil {
		details = "{}"
	}

	_, err = s.q.ExecContext(ctx, queryInsertAccessLog,
		entry.Id, entry.WalletId, entry.UserId, entry.Action, entry.ResourceType, entry.ResourceId,
		entry.Success, entry.ErrorMessage, entry.IpAddress, entry.UserAgent, details, utc(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("unable to insert access log: %w", err)
	}
	return nil
}

// ExportAccessLogs returns a wallet's audit entries newest first. Nil bounds
// and an empty user id disable the corresponding filter.
func (s *Queries) ExportAccessLogs(ctx context.Context, walletId string, from, to *time.Time, userId string) ([]models.AccessLog, error) {
	fromArg, toArg := nullableTime(from), nullableTime(to)

	rows, err := s.q.QueryContext(ctx, queryExportAccessLogs, walletId, fromArg, fromArg, toArg, toArg, userId, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query access logs: %w", err)
	}
	defer closeRows(rows)

	var logs []models.AccessLog
	for rows.Next() {
		var entry models.AccessLog
		var details string
		err := rows.Scan(&entry.Id, &entry.WalletId, &entry.UserId, &entry.Action, &entry.ResourceType,
			&entry.ResourceId, &entry.Success, &entry.ErrorMessage, &entry.IpAddress, &entry.UserAgent,
			&details, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan access log row: %w", err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		if err := decodeJSON(details, &entry.Details); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access log rows: %w", err)
	}
	return logs, nil
}
