package mail

import (
	"context"
	"log/slog"
	"sync"
	"text/template"
	"time"

	"github.com/khanghh/tenantauth/params"
	"github.com/valyala/bytebufferpool"
)

var (
	lockoutTemplate = template.Must(template.New("lockout").Parse(
		`Account {{.Email}} in tenant {{.TenantCode}} was locked after {{.FailedCount}} failed password attempts.
Locked until: {{.LockedUntil.Format "2006-01-02T15:04:05Z07:00"}}
Last attempt from: {{.IP}}
`))

	refreshReuseTemplate = template.Must(template.New("refresh-reuse").Parse(
		`A revoked refresh token was presented for account {{.AccountID}} in tenant {{.TenantCode}}.
Presented from: {{.IP}} ({{.UserAgent}})
Token family revoked: {{.FamilyRevoked}}
`))
)

type LockoutAlert struct {
	TenantCode  string
	Email       string
	FailedCount int
	LockedUntil time.Time
	IP          string
}

type RefreshReuseAlert struct {
	TenantCode    string
	AccountID     uint64
	IP            string
	UserAgent     string
	FamilyRevoked bool
}

// AlertNotifier emails security alerts to operators. Sends run in the
// background; failures are logged and never reach the caller.
type AlertNotifier struct {
	sender     MailSender
	recipients []string
	wg         sync.WaitGroup
}

func renderText(tmpl *template.Template, data any) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := tmpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (n *AlertNotifier) NotifyLockout(alert LockoutAlert) {
	n.send("[tenantauth] account locked: "+alert.Email, lockoutTemplate, alert)
}

func (n *AlertNotifier) NotifyRefreshReuse(alert RefreshReuseAlert) {
	n.send("[tenantauth] refresh token reuse detected", refreshReuseTemplate, alert)
}

func (n *AlertNotifier) send(subject string, tmpl *template.Template, data any) {
	if len(n.recipients) == 0 {
		return
	}
	body, err := renderText(tmpl, data)
	if err != nil {
		slog.Error("Failed to render alert", "subject", subject, "error", err)
		return
	}
	msg := &Message{
		To:      n.recipients,
		Subject: subject,
		Body:    body,
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		done := make(chan error, 1)
		go func() { done <- n.sender.Send(msg) }()
		select {
		case err := <-done:
			if err != nil {
				slog.Error("Failed to send alert", "subject", subject, "error", err)
			}
		case <-time.After(params.AlertSendTimeout):
			slog.Error("Timed out sending alert", "subject", subject)
		}
	}()
}

// Wait blocks until pending alerts are sent or ctx is done.
func (n *AlertNotifier) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func NewAlertNotifier(sender MailSender, recipients []string) *AlertNotifier {
	return &AlertNotifier{
		sender:     sender,
		recipients: recipients,
	}
}
