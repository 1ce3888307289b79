package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"homeconnect/pkg/config"
	"homeconnect/pkg/logger"
)

// Mailer sends the best-effort new-message email. It sits off the
// critical path: a failed send is logged and swallowed, never surfaced
// to the message sender.
type Mailer struct {
	dialer      *gomail.Dialer
	from        string
	frontendURL string
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		dialer:      gomail.NewDialer(cfg.EmailHost, cfg.EmailPort, cfg.EmailUser, cfg.EmailPass),
		from:        cfg.EmailFrom,
		frontendURL: cfg.FrontendURL,
	}
}

func (m *Mailer) NotifyNewMessage(receiverEmail, senderName string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", receiverEmail)
	msg.SetHeader("Subject", "New Message on HomeConnect")
	msg.SetBody("text/html", fmt.Sprintf(`
		<h2>New Message Notification</h2>
		<p>You have received a new message from <strong>%s</strong>.</p>
		<p>Log in to your HomeConnect dashboard to view and reply to the message.</p>
		<a href="%s/dashboard">View Message</a>
	`, senderName, m.frontendURL))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return err
	}

	logger.Info("Mailer: notification sent to %s", receiverEmail)
	return nil
}

// Noop is the dispatcher used when SMTP is not configured.
type Noop struct{}

func (Noop) NotifyNewMessage(receiverEmail, senderName string) error {
	logger.Debug("Mailer disabled, skipping notification to %s", receiverEmail)
	return nil
}
