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
	"strings"

	"institutional-custody-go/internal/common"
	"institutional-custody-go/internal/config"
	"institutional-custody-go/internal/custody"
	"institutional-custody-go/internal/models"
	"institutional-custody-go/internal/prime"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ownerFlag := flag.String("owner", "", "Owner user id or email (required)")
	presetFlag := flag.String("preset", "", "Wallet preset name from the presets file")
	typeFlag := flag.String("type", "multisig", "Wallet type: multisig, timelock, treasury, custodial")
	multisigFlag := flag.String("multisig", "", "Multisig scheme: 2_of_3, 3_of_5, custom")
	requiredFlag := flag.Int("m", 0, "Required signatures")
	totalFlag := flag.Int("n", 0, "Total signers")
	chainFlag := flag.Int64("chain", 1, "Chain id")
	signersFlag := flag.String("signers", "", "Comma-separated signer user ids or emails")
	labelFlag := flag.String("label", "", "Wallet label")
	addressFlag := flag.String("address", "", "On-chain wallet address")
	primeWalletFlag := flag.String("prime-wallet", "", "Prime wallet id used to broadcast withdrawals")
	flag.Parse()

	if *ownerFlag == "" {
		zap.L().Fatal("--owner is required")
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

	params := custody.CreateWalletParams{
		WalletType:         models.WalletType(*typeFlag),
		ChainId:            *chainFlag,
		MultisigType:       models.MultisigType(*multisigFlag),
		RequiredSignatures: *requiredFlag,
		TotalSigners:       *totalFlag,
		WalletAddress:      *addressFlag,
		Label:              *labelFlag,
		Config:             models.WalletConfig{},
	}

	if *presetFlag != "" {
		presets, err := common.LoadWalletPresets(cfg.Custody.PresetsFile)
		if err != nil {
			zap.L().Fatal("Failed to load wallet presets", zap.Error(err))
		}
		preset, err := common.FindPreset(presets, *presetFlag)
		if err != nil {
			zap.L().Fatal("Unknown preset", zap.Error(err))
		}
		params.WalletType = models.WalletType(preset.WalletType)
		params.MultisigType = models.MultisigType(preset.MultisigType)
		params.ChainId = preset.ChainId
		params.RequiredSignatures = preset.RequiredSignatures
		params.TotalSigners = preset.TotalSigners
		for k, v := range preset.Config {
			params.Config[k] = v
		}
		zap.L().Info("Using wallet preset", zap.String("preset", preset.Name))
	}
	if *primeWalletFlag != "" {
		params.Config[prime.ConfigWalletId] = *primeWalletFlag
	}

	owner, err := common.ResolveUser(ctx, services.DbService, *ownerFlag)
	if err != nil {
		zap.L().Fatal("Failed to resolve owner", zap.Error(err))
	}
	params.OwnerId = owner.Id

	for _, ref := range strings.Split(*signersFlag, ",") {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		signer, err := common.ResolveUser(ctx, services.DbService, ref)
		if err != nil {
			zap.L().Fatal("Failed to resolve signer", zap.Error(err))
		}
		params.SignerIds = append(params.SignerIds, signer.Id)
	}

	wallet, err := services.Custody.CreateWallet(ctx, params)
	if err != nil {
		zap.L().Fatal("Failed to create wallet", zap.Error(err))
	}

	common.PrintHeader("WALLET CREATED", common.DefaultWidth)
	common.PrintWallet(*wallet, true)
	common.PrintSeparator("=", common.DefaultWidth)
	if wallet.Status == models.WalletStatusPending {
		fmt.Printf("Wallet stays pending until %d signers are registered\n", wallet.RequiredSignatures)
	}
}
