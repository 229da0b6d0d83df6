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

import "time"

type GuardianStatus string

const (
	GuardianPending  GuardianStatus = "pending"
	GuardianVerified GuardianStatus = "verified"
	GuardianRevoked  GuardianStatus = "revoked"
)

// Guardian votes on recovery requests for a single wallet. GuardianUserId is
// empty for off-platform guardians identified by Email or Phone.
type Guardian struct {
	Id                string         `db:"id"`
	WalletId          string         `db:"wallet_id"`
	GuardianUserId    string         `db:"guardian_user_id"`
	Email             string         `db:"email"`
	Phone             string         `db:"phone"`
	Status            GuardianStatus `db:"status"`
	VerificationToken string         `db:"verification_token"`
	VerifiedAt        *time.Time     `db:"verified_at"`
	AddedBy           string         `db:"added_by"`
	Notes             string         `db:"notes"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

type RecoveryStatus string

const (
	RecoveryPending  RecoveryStatus = "pending"
	RecoveryApproved RecoveryStatus = "approved"
	RecoveryRejected RecoveryStatus = "rejected"
	RecoveryExecuted RecoveryStatus = "executed"
	RecoveryExpired  RecoveryStatus = "expired"
)

// RecoveryRequest asks the wallet's guardians to hand ownership to the requester
type RecoveryRequest struct {
	Id                string         `db:"id"`
	WalletId          string         `db:"wallet_id"`
	RequesterId       string         `db:"requester_id"`
	Reason            string         `db:"reason"`
	Status            RecoveryStatus `db:"status"`
	RequiredApprovals int            `db:"required_approvals"`
	CurrentApprovals  int            `db:"current_approvals"`
	TimeLockDays      int            `db:"time_lock_days"`
	UnlockTime        *time.Time     `db:"unlock_time"` // set once quorum is reached
	ExpiresAt         time.Time      `db:"expires_at"`
	CompletedAt       *time.Time     `db:"completed_at"`
	ExecutedBy        string         `db:"executed_by"`
	Version           int64          `db:"version"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

// EffectiveStatus reports pending requests past their deadline as expired.
func (r *RecoveryRequest) EffectiveStatus(now time.Time) RecoveryStatus {
	if r.Status == RecoveryPending && now.After(r.ExpiresAt) {
		return RecoveryExpired
	}
	return r.Status
}

func (r *RecoveryRequest) QuorumReached() bool {
	return r.CurrentApprovals >= r.RequiredApprovals
}

type VoteDecision string

const (
	VoteApprove VoteDecision = "approve"
	VoteReject  VoteDecision = "reject"
)

// RecoveryApproval is one guardian's vote on a recovery request
type RecoveryApproval struct {
	Id                string       `db:"id"`
	RecoveryRequestId string       `db:"recovery_request_id"`
	GuardianId        string       `db:"guardian_id"`
	ApproverId        string       `db:"approver_id"`
	Decision          VoteDecision `db:"decision"`
	Signature         string       `db:"signature"`
	Reason            string       `db:"reason"`
	IpAddress         string       `db:"ip_address"`
	UserAgent         string       `db:"user_agent"`
	CreatedAt         time.Time    `db:"created_at"`
}
