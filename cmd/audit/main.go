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
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"institutional-custody-go/internal/common"
	"institutional-custody-go/internal/config"
	"institutional-custody-go/internal/custody"

	"go.uber.org/zap"
)

func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q, expected RFC3339: %w", value, err)
	}
	return &t, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	walletFlag := flag.String("wallet", "", "Wallet id (required)")
	userFlag := flag.String("user", "", "Only entries for this user id")
	fromFlag := flag.String("from", "", "Start time, RFC3339")
	toFlag := flag.String("to", "", "End time, RFC3339")
	jsonFlag := flag.Bool("json", false, "Write entries as JSON to stdout")
	flag.Parse()

	if *walletFlag == "" {
		zap.L().Fatal("--wallet is required")
	}

	start, err := parseTime(*fromFlag)
	if err != nil {
		zap.L().Fatal("Invalid --from", zap.Error(err))
	}
	end, err := parseTime(*toFlag)
	if err != nil {
		zap.L().Fatal("Invalid --to", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeCustodyOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	logs, err := services.Custody.ExportAuditLogs(ctx, *walletFlag, custody.AuditFilter{
		Start:  start,
		End:    end,
		UserId: *userFlag,
	})
	if err != nil {
		zap.L().Fatal("Failed to export audit logs", zap.Error(err))
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(logs); err != nil {
			zap.L().Fatal("Failed to encode audit logs", zap.Error(err))
		}
		return
	}

	common.PrintHeader(fmt.Sprintf("AUDIT LOG %s", *walletFlag), common.WideWidth)
	for _, entry := range logs {
		common.PrintAuditEntry(entry)
	}
	common.PrintFooter(fmt.Sprintf("%d entries", len(logs)), common.WideWidth)
}
