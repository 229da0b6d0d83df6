package models

import "time"

// AccessLog is an append-only audit entry
type AccessLog struct {
	Id           string            `db:"id"`
	WalletId     string            `db:"wallet_id"`
	UserId       string            `db:"user_id"`
	Action       string            `db:"action"`
	ResourceType string            `db:"resource_type"`
	ResourceId   string            `db:"resource_id"`
	Success      bool              `db:"success"`
	ErrorMessage string            `db:"error_message"`
	IpAddress    string            `db:"ip_address"`
	UserAgent    string            `db:"user_agent"`
	Details      map[string]string `db:"details"`
	CreatedAt    time.Time         `db:"created_at"`
}
