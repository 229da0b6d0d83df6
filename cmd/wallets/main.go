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
	"institutional-custody-go/internal/custody"
	"institutional-custody-go/internal/models"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Only show wallets for this user id or email (default: all users)")
	typeFlag := flag.String("type", "", "Filter by wallet type")
	statusFlag := flag.String("status", "", "Filter by wallet status")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeCustodyOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var emailFilter string
	if *userFlag != "" {
		user, err := common.ResolveUser(ctx, services.DbService, *userFlag)
		if err != nil {
			zap.L().Fatal("Failed to resolve user", zap.Error(err))
		}
		emailFilter = user.Email
	}

	users, err := common.InitializeUsers(ctx, services.DbService, emailFilter, zap.L())
	if err != nil {
		zap.L().Fatal("Failed to load users", zap.Error(err))
	}

	filter := custody.ListWalletsFilter{
		WalletType: models.WalletType(*typeFlag),
		Status:     models.WalletStatus(*statusFlag),
	}

	common.PrintHeader("CUSTODY WALLETS", common.WideWidth)
	total := 0
	for _, u := range users {
		wallets, err := services.Custody.ListWallets(ctx, u.Id, filter)
		if err != nil {
			zap.L().Error("Failed to list wallets", zap.String("user_id", u.Id), zap.Error(err))
			continue
		}
		if len(wallets) == 0 {
			continue
		}

		fmt.Printf("\n%s <%s>\n", u.Name, u.Email)
		for i, w := range wallets {
			detailed, err := services.Custody.GetWallet(ctx, w.Id, u.Id)
			if err == nil && detailed != nil {
				w = *detailed
			}
			common.PrintWallet(w, i == len(wallets)-1)
		}
		total += len(wallets)
	}
	common.PrintFooter(fmt.Sprintf("%d wallet memberships across %d users", total, len(users)), common.WideWidth)
}
