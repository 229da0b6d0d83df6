package custody

import (
	"context"
	"time"

	"institutional-custody-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccessLogEntry is a caller-supplied audit entry. Request metadata missing
// from the entry is taken from the context.
type AccessLogEntry struct {
	WalletId     string
	UserId       string
	Action       string
	ResourceType string
	ResourceId   string
	Success      bool
	ErrorMessage string
	IpAddress    string
	UserAgent    string
	Details      map[string]string
}

type AuditFilter struct {
	Start  *time.Time
	End    *time.Time
	UserId string
}

// LogAccess appends an audit entry. Failures are logged and swallowed; the
// return value is nil when the entry could not be written.
func (s *Service) LogAccess(ctx context.Context, e AccessLogEntry) *models.AccessLog {
	entry := &models.AccessLog{
		Id:           uuid.New().String(),
		WalletId:     e.WalletId,
		UserId:       e.UserId,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceId:   e.ResourceId,
		Success:      e.Success,
		ErrorMessage: e.ErrorMessage,
		IpAddress:    e.IpAddress,
		UserAgent:    e.UserAgent,
		Details:      e.Details,
		CreatedAt:    s.now(),
	}
	if rm := models.GetRequestMetadata(ctx); rm != nil {
		if entry.IpAddress == "" {
			entry.IpAddress = rm.IpAddress
		}
		if entry.UserAgent == "" {
			entry.UserAgent = rm.UserAgent
		}
	}

	if err := s.db.InsertAccessLog(ctx, entry); err != nil {
		zap.L().Error("Failed to write audit entry",
			zap.String("wallet_id", e.WalletId),
			zap.String("action", e.Action),
			zap.Error(err))
		return nil
	}
	return entry
}

// ExportAuditLogs returns a wallet's audit trail newest first.
func (s *Service) ExportAuditLogs(ctx context.Context, walletId string, filter AuditFilter) ([]models.AccessLog, error) {
	logs, err := s.db.ExportAccessLogs(ctx, walletId, filter.Start, filter.End, filter.UserId)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("Exported audit logs", zap.String("wallet_id", walletId), zap.Int("count", len(logs)))
	return logs, nil
}
