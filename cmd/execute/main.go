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
	"flag"
	"fmt"

	"institutional-custody-go/internal/common"
	"institutional-custody-go/internal/config"
	"institutional-custody-go/internal/models"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	txFlag := flag.String("tx", "", "Pending transaction id to execute")
	userFlag := flag.String("user", "", "Executing user id or email (required)")
	walletFlag := flag.String("wallet", "", "List fully signed transactions for this wallet instead of executing")
	flag.Parse()

	if *userFlag == "" || (*txFlag == "" && *walletFlag == "") {
		zap.L().Fatal("--user and one of --tx or --wallet are required")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	user, err := common.ResolveUser(ctx, services.DbService, *userFlag)
	if err != nil {
		zap.L().Fatal("Failed to resolve user", zap.Error(err))
	}

	if *txFlag == "" {
		signed, err := services.Custody.ListPendingTransactions(ctx, *walletFlag, user.Id, models.TransactionSigned)
		if err != nil {
			zap.L().Fatal("Failed to list transactions", zap.Error(err))
		}
		common.PrintHeader("READY TO EXECUTE", common.WideWidth)
		for i, p := range signed {
			fmt.Printf("%s%s  %s %s -> %s  (%d/%d signatures, expires %s)\n",
				common.BoxPrefix(i == len(signed)-1), p.Id, p.Amount, p.Currency, p.ToAddress,
				p.SignatureCount(), p.RequiredSignatures, p.ExpiresAt.Format("2006-01-02 15:04"))
		}
		common.PrintFooter(fmt.Sprintf("%d transactions", len(signed)), common.WideWidth)
		return
	}

	executed, err := services.Custody.ExecuteTransaction(ctx, *txFlag, user.Id)
	if err != nil {
		zap.L().Fatal("Failed to execute transaction", zap.String("transaction_id", *txFlag), zap.Error(err))
	}

	common.PrintHeader("TRANSACTION EXECUTED", common.DefaultWidth)
	fmt.Printf("Record:      %s\n", executed.Id)
	fmt.Printf("Proposal:    %s\n", executed.PendingTransactionId)
	fmt.Printf("Activity:    %s\n", executed.TransactionHash)
	fmt.Printf("Amount:      %s %s\n", executed.Amount, executed.Currency)
	fmt.Printf("Destination: %s\n", executed.ToAddress)
	fmt.Printf("Signatures:  %d\n", len(executed.Signatures))
	common.PrintSeparator("=", common.DefaultWidth)
}
