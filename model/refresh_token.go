package model

import (
	"time"

	"gorm.io/gorm"
)

// Reasons recorded when a refresh token is revoked. Only a token revoked by
// rotation indicates reuse when presented again.
const (
	RevokeReasonRotated = "ROTATED"
	RevokeReasonLogout  = "LOGOUT"
	RevokeReasonAdmin   = "ADMIN"
	RevokeReasonReuse   = "REUSE"
)

// RefreshToken holds the sha256 hash of an issued refresh token, never the raw
// value. Active -> Revoked is the only transition.
type RefreshToken struct {
	ID           uint64     `gorm:"primarykey"`
	AccountID    uint64     `gorm:"not null;index"`
	TenantCode   string     `gorm:"size:20;not null;index"`
	TokenHash    string     `gorm:"uniqueIndex;size:64;not null"`
	ExpiresAt    time.Time  `gorm:"not null;index"`
	Revoked      bool       `gorm:"default:false;not null"`
	RevokedAt    *time.Time `gorm:"index"`
	RevokeReason string     `gorm:"size:16"`
	DeviceInfo   string     `gorm:"size:512"`
	IP           string     `gorm:"size:45"`
	UserAgent    string     `gorm:"size:512"`
	CreatedAt    time.Time
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == 0 {
		t.ID = GenerateID()
	}
	return nil
}

// WasRotated reports whether the token was revoked by being exchanged for a
// new pair.
func (t *RefreshToken) WasRotated() bool {
	return t.Revoked && t.RevokeReason == RevokeReasonRotated
}

func (t *RefreshToken) IsUsable(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}
