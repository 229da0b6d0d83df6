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

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (id, name, email) VALUES (?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByEmail = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE email = ? AND active = 1`

	// Wallet queries
	walletColumns = `
		id, user_id, wallet_type, wallet_address, chain_id, multisig_type,
		required_signatures, total_signers, status, unlock_time, label, description,
		config, balance, balance_updated_at, version, created_at, updated_at`

	queryInsertWallet = `
		INSERT INTO institutional_wallets (` + walletColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetWallet = `
		SELECT ` + walletColumns + `
		FROM institutional_wallets
		WHERE id = ?`

	queryListWalletsForUser = `
		SELECT ` + walletColumns + `
		FROM institutional_wallets
		WHERE (user_id = ? OR id IN (SELECT wallet_id FROM wallet_signers WHERE user_id = ?))
		  AND (? = '' OR wallet_type = ?)
		  AND (? = '' OR status = ?)
		ORDER BY created_at DESC, rowid DESC`

	queryUpdateWalletSigners = `
		UPDATE institutional_wallets
		SET total_signers = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryUpdateWalletStatus = `
		UPDATE institutional_wallets
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryUpdateWalletOwner = `
		UPDATE institutional_wallets
		SET user_id = ?, total_signers = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	// Signer queries
	queryInsertSigner = `
		INSERT INTO wallet_signers (wallet_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)`

	queryGetSignerRole = `
		SELECT role FROM wallet_signers WHERE wallet_id = ? AND user_id = ?`

	queryUpdateSignerRole = `
		UPDATE wallet_signers SET role = ? WHERE wallet_id = ? AND user_id = ?`

	queryDeleteSigner = `
		DELETE FROM wallet_signers WHERE wallet_id = ? AND user_id = ?`

	queryListSigners = `
		SELECT wallet_id, user_id, role, created_at
		FROM wallet_signers
		WHERE wallet_id = ?
		ORDER BY created_at, rowid`

	queryCountSigningSigners = `
		SELECT COUNT(*) FROM wallet_signers
		WHERE wallet_id = ? AND role IN ('owner', 'signer', 'admin')`

	// Pending transaction queries
	pendingColumns = `
		id, wallet_id, transaction_type, to_address, amount, currency, chain_id,
		transaction_data, signatures, required_signatures, status, expires_at,
		description, created_by, rejection_reason, version, created_at, updated_at`

	queryInsertPendingTransaction = `
		INSERT INTO pending_transactions (` + pendingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPendingTransaction = `
		SELECT ` + pendingColumns + `
		FROM pending_transactions
		WHERE id = ?`

	queryListPendingTransactions = `
		SELECT ` + pendingColumns + `
		FROM pending_transactions
		WHERE wallet_id = ? AND (? = '' OR status = ?)
		ORDER BY created_at DESC, rowid DESC`

	queryListExpiredPendingTransactions = `
		SELECT ` + pendingColumns + `
		FROM pending_transactions
		WHERE status IN ('pending', 'signed') AND expires_at <= ?
		ORDER BY expires_at`

	queryUpdatePendingSignatures = `
		UPDATE pending_transactions
		SET signatures = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryUpdatePendingStatus = `
		UPDATE pending_transactions
		SET status = ?, rejection_reason = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	// Executed transaction queries
	walletTransactionColumns = `
		id, wallet_id, pending_transaction_id, transaction_hash, transaction_type,
		from_address, to_address, amount, currency, chain_id, executed_by, signatures,
		status, block_number, confirmations, gas_used, gas_price, created_at, updated_at`

	queryInsertWalletTransaction = `
		INSERT INTO wallet_transactions (` + walletTransactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetWalletTransaction = `
		SELECT ` + walletTransactionColumns + `
		FROM wallet_transactions
		WHERE id = ?`

	queryListWalletTransactions = `
		SELECT ` + walletTransactionColumns + `
		FROM wallet_transactions
		WHERE wallet_id = ?
		ORDER BY created_at DESC, rowid DESC`

	queryUpdateConfirmations = `
		UPDATE wallet_transactions
		SET confirmations = ?, block_number = COALESCE(?, block_number), status = ?, updated_at = ?
		WHERE id = ?`

	// Audit queries
	queryInsertAccessLog = `
		INSERT INTO wallet_access_logs (
			id, wallet_id, user_id, action, resource_type, resource_id, success,
			error_message, ip_address, user_agent, details, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryExportAccessLogs = `
		SELECT id, wallet_id, user_id, action, resource_type, resource_id, success,
		       error_message, ip_address, user_agent, details, created_at
		FROM wallet_access_logs
		WHERE wallet_id = ?
		  AND (? IS NULL OR created_at >= ?)
		  AND (? IS NULL OR created_at <= ?)
		  AND (? = '' OR user_id = ?)
		ORDER BY created_at DESC, rowid DESC`

	// Guardian queries
	guardianColumns = `
		id, wallet_id, guardian_user_id, email, phone, status, verification_token,
		verified_at, added_by, notes, created_at, updated_at`

	queryInsertGuardian = `
		INSERT INTO social_recovery_guardians (` + guardianColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetGuardian = `
		SELECT ` + guardianColumns + `
		FROM social_recovery_guardians
		WHERE id = ?`

	queryListGuardians = `
		SELECT ` + guardianColumns + `
		FROM social_recovery_guardians
		WHERE wallet_id = ? AND (? = '' OR status = ?)
		ORDER BY created_at, rowid`

	queryFindDuplicateGuardian = `
		SELECT id FROM social_recovery_guardians
		WHERE wallet_id = ? AND status != 'revoked'
		  AND ((? != '' AND guardian_user_id = ?) OR (? != '' AND LOWER(email) = LOWER(?)))
		LIMIT 1`

	queryUpdateGuardianStatus = `
		UPDATE social_recovery_guardians
		SET status = ?, verified_at = COALESCE(?, verified_at), updated_at = ?
		WHERE id = ? AND status = ?`

	// Recovery request queries
	recoveryColumns = `
		id, wallet_id, requester_id, reason, status, required_approvals, current_approvals,
		time_lock_days, unlock_time, expires_at, completed_at, executed_by, version,
		created_at, updated_at`

	queryInsertRecoveryRequest = `
		INSERT INTO recovery_requests (` + recoveryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetRecoveryRequest = `
		SELECT ` + recoveryColumns + `
		FROM recovery_requests
		WHERE id = ?`

	queryListRecoveryRequests = `
		SELECT ` + recoveryColumns + `
		FROM recovery_requests
		WHERE wallet_id = ? AND (? = '' OR status = ?)
		ORDER BY created_at DESC, rowid DESC`

	queryListExpiredRecoveryRequests = `
		SELECT ` + recoveryColumns + `
		FROM recovery_requests
		WHERE status = 'pending' AND expires_at < ?
		ORDER BY expires_at`

	queryUpdateRecoveryRequest = `
		UPDATE recovery_requests
		SET status = ?, current_approvals = ?, unlock_time = ?, completed_at = ?, executed_by = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	// Recovery approval queries
	queryInsertRecoveryApproval = `
		INSERT INTO recovery_approvals (
			id, recovery_request_id, guardian_id, approver_id, decision, signature,
			reason, ip_address, user_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryHasRecoveryVote = `
		SELECT 1 FROM recovery_approvals WHERE recovery_request_id = ? AND guardian_id = ? LIMIT 1`

	queryCountRecoveryApprovals = `
		SELECT COUNT(*) FROM recovery_approvals WHERE recovery_request_id = ? AND decision = 'approve'`

	queryListRecoveryApprovals = `
		SELECT id, recovery_request_id, guardian_id, approver_id, decision, signature,
		       reason, ip_address, user_agent, created_at
		FROM recovery_approvals
		WHERE recovery_request_id = ?
		ORDER BY created_at, rowid`
)
