package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/khanghh/tenantauth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIncrementFailedLogin(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	repo := NewAccountRepository(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lockUntil := now.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `account` SET `failed_login_count`=CASE WHEN locked_until <= \\? THEN 1 ELSE failed_login_count \\+ 1 END,`locked_until`=CASE WHEN failed_login_count >= \\? THEN \\? WHEN locked_until <= \\? THEN NULL ELSE locked_until END WHERE id = \\?").
		WithArgs(now, 5, lockUntil, now, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `failed_login_count`,`locked_until` FROM `account` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_count", "locked_until"}).AddRow(5, lockUntil))
	mock.ExpectCommit()

	state, err := repo.IncrementFailedLogin(context.Background(), 7, 5, now, lockUntil)
	require.NoError(t, err)
	assert.Equal(t, 5, state.FailedLoginCount)
	require.NotNil(t, state.LockedUntil)
	assert.True(t, lockUntil.Equal(*state.LockedUntil))
}

func TestIncrementFailedLogin_MissingAccount(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `account` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.IncrementFailedLogin(context.Background(), 9, 5, time.Now(), time.Now())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestResetFailedLogin(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	repo := NewAccountRepository(db)
	loginAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE `account` SET `failed_login_count`=\\?,`last_login_at`=\\?,`locked_until`=\\? WHERE id = \\?").
		WithArgs(0, loginAt, nil, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ResetFailedLogin(context.Background(), 7, loginAt))
}
