package mail

import "log/slog"

type Message struct {
	From    string
	To      []string
	Cc      []string
	Subject string
	Body    string
	IsHTML  bool
}

type MailSender interface {
	Send(message *Message) error
}

// NullMailSender drops every message. It is used when no mail backend is
// configured.
type NullMailSender struct{}

func (NullMailSender) Send(message *Message) error {
	slog.Debug("Mail backend not configured, dropping message", "subject", message.Subject)
	return nil
}
