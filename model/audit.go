package model

import "time"

type LoginAuditEntry struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	TenantCode    string    `gorm:"size:20;not null;index"`
	AccountID     *uint64   `gorm:"index"`                   // set when the attempt resolved to an account
	Email         string    `gorm:"size:256;not null;index"` // email as attempted
	Method        string    `gorm:"size:20;not null"`        // PASSWORD, GOOGLE, KAKAO, NAVER, MICROSOFT
	Success       bool      `gorm:"not null"`
	FailureReason string    `gorm:"size:64"` // internal failure code, never returned to clients
	DeviceInfo    string    `gorm:"size:512"`
	IP            string    `gorm:"size:45;not null"`  // IPv4/IPv6
	UserAgent     string    `gorm:"size:512;not null"` // user agent string
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (LoginAuditEntry) TableName() string {
	return "login_audit"
}
