package mail

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []*Message
}

func (s *recordingSender) Send(message *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func TestNotifyLockout(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewAlertNotifier(sender, []string{"ops@x.com"})

	notifier.NotifyLockout(LockoutAlert{
		TenantCode:  "T1",
		Email:       "a@x.com",
		FailedCount: 5,
		LockedUntil: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		IP:          "10.0.0.1",
	})
	notifier.Wait(context.Background())

	require.Len(t, sender.messages, 1)
	msg := sender.messages[0]
	assert.Equal(t, []string{"ops@x.com"}, msg.To)
	assert.Contains(t, msg.Subject, "a@x.com")
	assert.Contains(t, msg.Body, "tenant T1")
	assert.Contains(t, msg.Body, "2026-01-02T03:04:05Z")
}

func TestNotifyRefreshReuse(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewAlertNotifier(sender, []string{"ops@x.com"})

	notifier.NotifyRefreshReuse(RefreshReuseAlert{TenantCode: "T1", AccountID: 7, FamilyRevoked: true})
	notifier.Wait(context.Background())

	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0].Body, "account 7")
	assert.Contains(t, sender.messages[0].Body, "Token family revoked: true")
}

func TestNotifyWithoutRecipients(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewAlertNotifier(sender, nil)

	notifier.NotifyRefreshReuse(RefreshReuseAlert{TenantCode: "T1", AccountID: 7})
	notifier.Wait(context.Background())
	assert.Empty(t, sender.messages)
}
