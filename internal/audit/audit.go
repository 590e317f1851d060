package audit

import (
	"context"
	"log/slog"

	"github.com/khanghh/tenantauth/internal/metrics"
	"github.com/khanghh/tenantauth/model"
	"github.com/khanghh/tenantauth/params"
)

const (
	MethodPassword = "PASSWORD"
)

// Failure reasons recorded with unsuccessful attempts. They are internal codes
// and never returned to clients.
const (
	ReasonNotFound             = "NOT_FOUND"
	ReasonAccountLocked        = "ACCOUNT_LOCKED"
	ReasonBadCredential        = "BAD_CREDENTIAL"
	ReasonInvalidProviderToken = "INVALID_PROVIDER_TOKEN"
	ReasonNoMatchingAccount    = "NO_MATCHING_ACCOUNT"
	ReasonExternalService      = "EXTERNAL_SERVICE_ERROR"
	ReasonValidation           = "VALIDATION_ERROR"
	ReasonInternal             = "INTERNAL_ERROR"
)

type LoginRecord struct {
	TenantCode    string
	AccountID     uint64
	Email         string
	Method        string
	Success       bool
	FailureReason string
	DeviceInfo    string
	IP            string
	UserAgent     string
}

// Recorder appends login audit entries. Record never fails the caller: write
// errors are logged and counted, then dropped.
type Recorder struct {
	repo LoginAuditRepository
}

func (r *Recorder) RecordLogin(ctx context.Context, record LoginRecord) {
	entry := &model.LoginAuditEntry{
		TenantCode:    record.TenantCode,
		Email:         record.Email,
		Method:        truncate(record.Method, params.MaxMethodLength),
		Success:       record.Success,
		FailureReason: record.FailureReason,
		DeviceInfo:    truncate(record.DeviceInfo, params.MaxDeviceInfoLength),
		IP:            record.IP,
		UserAgent:     truncate(record.UserAgent, params.MaxUserAgentLength),
	}
	if record.AccountID != 0 {
		accountID := record.AccountID
		entry.AccountID = &accountID
	}

	// the request may be cancelled right after responding
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), params.AuditWriteTimeout)
	defer cancel()
	if err := r.repo.Append(writeCtx, entry); err != nil {
		metrics.AuditWriteFailures.Inc()
		slog.Error("Failed to write login audit entry",
			"tenant", record.TenantCode,
			"email", record.Email,
			"method", record.Method,
			"success", record.Success,
			"error", err,
		)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func NewRecorder(repo LoginAuditRepository) *Recorder {
	return &Recorder{repo: repo}
}
