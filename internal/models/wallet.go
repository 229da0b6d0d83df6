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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletType string

const (
	WalletTypeMultisig  WalletType = "multisig"
	WalletTypeTimelock  WalletType = "timelock"
	WalletTypeTreasury  WalletType = "treasury"
	WalletTypeCustodial WalletType = "custodial"
)

func (t WalletType) Valid() bool {
	switch t {
	case WalletTypeMultisig, WalletTypeTimelock, WalletTypeTreasury, WalletTypeCustodial:
		return true
	}
	return false
}

type MultisigType string

const (
	MultisigTwoOfThree  MultisigType = "2_of_3"
	MultisigThreeOfFive MultisigType = "3_of_5"
	MultisigCustom      MultisigType = "custom"
)

func (t MultisigType) Valid() bool {
	switch t {
	case MultisigTwoOfThree, MultisigThreeOfFive, MultisigCustom:
		return true
	}
	return false
}

type WalletStatus string

const (
	WalletStatusPending  WalletStatus = "pending"
	WalletStatusActive   WalletStatus = "active"
	WalletStatusLocked   WalletStatus = "locked"
	WalletStatusFrozen   WalletStatus = "frozen"
	WalletStatusArchived WalletStatus = "archived"
)

func (s WalletStatus) Valid() bool {
	switch s {
	case WalletStatusPending, WalletStatusActive, WalletStatusLocked, WalletStatusFrozen, WalletStatusArchived:
		return true
	}
	return false
}

// SignerRole is the role a user holds on a wallet's signer association.
type SignerRole string

const (
	RoleOwner  SignerRole = "owner"
	RoleSigner SignerRole = "signer"
	RoleViewer SignerRole = "viewer"
	RoleAdmin  SignerRole = "admin"
)

func (r SignerRole) Valid() bool {
	switch r {
	case RoleOwner, RoleSigner, RoleViewer, RoleAdmin:
		return true
	}
	return false
}

// CanSign reports whether the role counts toward a wallet's signer total.
func (r SignerRole) CanSign() bool {
	return r == RoleOwner || r == RoleSigner || r == RoleAdmin
}

type Permission string

const (
	PermissionView    Permission = "view"
	PermissionSign    Permission = "sign"
	PermissionExecute Permission = "execute"
	PermissionAdmin   Permission = "admin"
)

// WalletConfig is free-form per-wallet configuration.
// Known keys: "prime_portfolio_id", "prime_wallet_id".
type WalletConfig map[string]string

// Wallet represents an institutional custody wallet
type Wallet struct {
	Id                 string          `db:"id"`
	UserId             string          `db:"user_id"`
	WalletType         WalletType      `db:"wallet_type"`
	WalletAddress      string          `db:"wallet_address"`
	ChainId            int64           `db:"chain_id"`
	MultisigType       MultisigType    `db:"multisig_type"`
	RequiredSignatures int             `db:"required_signatures"`
	TotalSigners       int             `db:"total_signers"`
	Status             WalletStatus    `db:"status"`
	UnlockTime         *time.Time      `db:"unlock_time"`
	Label              string          `db:"label"`
	Description        string          `db:"description"`
	Config             WalletConfig    `db:"config"`
	Balance            decimal.Decimal `db:"balance"`
	BalanceUpdatedAt   *time.Time      `db:"balance_updated_at"`
	Version            int64           `db:"version"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`

	// Signers is only populated by single-wallet reads.
	Signers []Signer `db:"-"`
}

// Signer is the (wallet, user, role) association
type Signer struct {
	WalletId  string     `db:"wallet_id"`
	UserId    string     `db:"user_id"`
	Role      SignerRole `db:"role"`
	CreatedAt time.Time  `db:"created_at"`
}
