package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/khanghh/tenantauth/internal/mail"
	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
)

// memRefreshRepo keeps rows in memory. Transactions are serialized and
// rolled back on error.
type memRefreshRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex
	rows map[string]*model.RefreshToken
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{rows: make(map[string]*model.RefreshToken)}
}

func (r *memRefreshRepo) get(hash string) *model.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[hash]
}

func (r *memRefreshRepo) Transaction(ctx context.Context, fn func(repo RefreshTokenRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	snapshot := make(map[string]model.RefreshToken, len(r.rows))
	for hash, row := range r.rows {
		snapshot[hash] = *row
	}
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.rows = make(map[string]*model.RefreshToken, len(snapshot))
		for hash, row := range snapshot {
			copied := row
			r.rows[hash] = &copied
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memRefreshRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[token.TokenHash]; ok {
		return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	}
	token.ID = model.GenerateID()
	copied := *token
	r.rows[token.TokenHash] = &copied
	return nil
}

func (r *memRefreshRepo) FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tokenHash]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *memRefreshRepo) revoke(row *model.RefreshToken, reason string, now time.Time) {
	row.Revoked = true
	row.RevokedAt = &now
	row.RevokeReason = reason
}

func (r *memRefreshRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tokenHash]
	if !ok || row.Revoked || !row.ExpiresAt.After(now) {
		return false, nil
	}
	r.revoke(row, model.RevokeReasonRotated, now)
	return true, nil
}

func (r *memRefreshRepo) RevokeByHash(ctx context.Context, accountID uint64, tokenHash string, reason string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tokenHash]
	if !ok || row.Revoked || row.AccountID != accountID {
		return 0, nil
	}
	r.revoke(row, reason, now)
	return 1, nil
}

func (r *memRefreshRepo) revokeWhere(match func(*model.RefreshToken) bool, reason string, now time.Time) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if !row.Revoked && match(row) {
			r.revoke(row, reason, now)
			n++
		}
	}
	return n
}

func (r *memRefreshRepo) RevokeAllForAccount(ctx context.Context, accountID uint64, reason string, now time.Time) (int64, error) {
	return r.revokeWhere(func(row *model.RefreshToken) bool { return row.AccountID == accountID }, reason, now), nil
}

func (r *memRefreshRepo) RevokeAllForTenant(ctx context.Context, tenantCode string, reason string, now time.Time) (int64, error) {
	return r.revokeWhere(func(row *model.RefreshToken) bool { return row.TenantCode == tenantCode }, reason, now), nil
}

type staticSubjects struct {
	subjects map[uint64]*Subject
	err      error
}

func (s *staticSubjects) ResolveSubject(ctx context.Context, accountID uint64) (*Subject, error) {
	if s.err != nil {
		return nil, s.err
	}
	subject, ok := s.subjects[accountID]
	if !ok {
		return nil, ErrInvalidToken
	}
	return subject, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []mail.RefreshReuseAlert
}

func (n *recordingNotifier) NotifyRefreshReuse(alert mail.RefreshReuseAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}
