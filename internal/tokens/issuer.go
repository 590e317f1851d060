package tokens

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/khanghh/tenantauth/internal/common"
	"github.com/khanghh/tenantauth/internal/mail"
	"github.com/khanghh/tenantauth/internal/metrics"
	"github.com/khanghh/tenantauth/model"
	"github.com/khanghh/tenantauth/params"
	"gorm.io/gorm"
)

const TokenTypeBearer = "bearer"

// Subject is the identity a token pair is issued for.
type Subject struct {
	AccountID   uint64
	TenantCode  string
	Permissions []string
}

// SubjectResolver reloads the subject of a refresh token. It fails when the
// account or its tenant may no longer receive tokens.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, accountID uint64) (*Subject, error)
}

// ReuseNotifier is told when an already rotated refresh token is presented.
type ReuseNotifier interface {
	NotifyRefreshReuse(alert mail.RefreshReuseAlert)
}

// ClientInfo is the request context stored with a refresh token.
type ClientInfo struct {
	DeviceInfo string
	IP         string
	UserAgent  string
}

type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	TokenType        string
	ExpiresIn        int64
}

type IssuerOptions struct {
	RefreshTokenTTL     time.Duration
	RevokeFamilyOnReuse bool
}

// Issuer issues token pairs and rotates refresh tokens. Refresh tokens are
// single use; presenting a rotated one is treated as theft. Tokens revoked by
// logout or deactivation simply fail.
type Issuer struct {
	*Revoker
	signer   *Signer
	repo     RefreshTokenRepository
	subjects SubjectResolver
	notifier ReuseNotifier
	opts     IssuerOptions
	now      func() time.Time
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func (i *Issuer) issue(ctx context.Context, repo RefreshTokenRepository, subject *Subject, client ClientInfo) (*TokenPair, error) {
	now := i.now()
	rawRefresh, err := common.GenerateToken(params.RefreshTokenPrefix, params.RefreshTokenBytes)
	if err != nil {
		return nil, err
	}
	row := model.RefreshToken{
		AccountID:  subject.AccountID,
		TenantCode: subject.TenantCode,
		TokenHash:  common.HashToken(rawRefresh),
		ExpiresAt:  now.Add(i.opts.RefreshTokenTTL),
		DeviceInfo: truncate(client.DeviceInfo, params.MaxDeviceInfoLength),
		IP:         truncate(client.IP, 45),
		UserAgent:  truncate(client.UserAgent, params.MaxUserAgentLength),
	}
	if err := repo.Create(ctx, &row); err != nil {
		return nil, err
	}

	accessToken, accessExpiresAt, err := i.signer.Sign(subject.AccountID, subject.TenantCode, subject.Permissions)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     rawRefresh,
		RefreshExpiresAt: row.ExpiresAt,
		TokenType:        TokenTypeBearer,
		ExpiresIn:        int64(i.signer.TTL().Seconds()),
	}, nil
}

// Issue returns a new access token and refresh token for subject. The raw
// refresh token is only ever returned here.
func (i *Issuer) Issue(ctx context.Context, subject *Subject, client ClientInfo) (*TokenPair, error) {
	return i.issue(ctx, i.repo, subject, client)
}

// Refresh consumes rawRefreshToken and issues a replacement pair in one
// transaction. Unknown, expired, revoked or concurrently consumed tokens fail
// with ErrInvalidToken.
func (i *Issuer) Refresh(ctx context.Context, rawRefreshToken string, client ClientInfo) (*TokenPair, error) {
	if !strings.HasPrefix(rawRefreshToken, params.RefreshTokenPrefix) {
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}
	tokenHash := common.HashToken(rawRefreshToken)
	row, err := i.repo.FindByHash(ctx, tokenHash)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.RefreshRotations.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if row.WasRotated() {
		i.handleReuse(ctx, row, client)
		return nil, ErrInvalidToken
	}
	if row.Revoked {
		metrics.RefreshRotations.WithLabelValues("revoked").Inc()
		return nil, ErrInvalidToken
	}
	if !row.IsUsable(i.now()) {
		metrics.RefreshRotations.WithLabelValues("expired").Inc()
		return nil, ErrInvalidToken
	}

	subject, err := i.subjects.ResolveSubject(ctx, row.AccountID)
	if err != nil {
		return nil, err
	}

	var pair *TokenPair
	err = i.repo.Transaction(ctx, func(tx RefreshTokenRepository) error {
		consumed, err := tx.Consume(ctx, tokenHash, i.now())
		if err != nil {
			return err
		}
		if !consumed {
			return ErrTokenReused
		}
		pair, err = i.issue(ctx, tx, subject, client)
		return err
	})
	if errors.Is(err, ErrTokenReused) {
		// lost the race; only a concurrent rotation counts as reuse
		if current, err := i.repo.FindByHash(ctx, tokenHash); err == nil && current.WasRotated() {
			i.handleReuse(ctx, current, client)
		} else {
			metrics.RefreshRotations.WithLabelValues("revoked").Inc()
		}
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	metrics.RefreshRotations.WithLabelValues("success").Inc()
	return pair, nil
}

func (i *Issuer) handleReuse(ctx context.Context, row *model.RefreshToken, client ClientInfo) {
	metrics.RefreshRotations.WithLabelValues("reused").Inc()
	metrics.RefreshReuseDetected.Inc()
	var revoked int64
	if i.opts.RevokeFamilyOnReuse {
		var err error
		revoked, err = i.repo.RevokeAllForAccount(ctx, row.AccountID, model.RevokeReasonReuse, i.now())
		if err != nil {
			slog.Error("Failed to revoke refresh tokens after reuse", "accountID", row.AccountID, "error", err)
		}
	}
	slog.Warn("Refresh token reuse detected",
		"tenant", row.TenantCode,
		"accountID", row.AccountID,
		"ip", client.IP,
		"familyRevoked", i.opts.RevokeFamilyOnReuse,
		"revoked", revoked,
	)
	if i.notifier != nil {
		i.notifier.NotifyRefreshReuse(mail.RefreshReuseAlert{
			TenantCode:    row.TenantCode,
			AccountID:     row.AccountID,
			IP:            client.IP,
			UserAgent:     client.UserAgent,
			FamilyRevoked: i.opts.RevokeFamilyOnReuse,
		})
	}
}

func (i *Issuer) Signer() *Signer {
	return i.signer
}

func NewIssuer(signer *Signer, repo RefreshTokenRepository, subjects SubjectResolver, notifier ReuseNotifier, opts IssuerOptions) *Issuer {
	return &Issuer{
		Revoker:  NewRevoker(repo),
		signer:   signer,
		repo:     repo,
		subjects: subjects,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}
