package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/mailersend/mailersend-go"

	"github.com/quickcourt/auth/internal/domain"
	"github.com/quickcourt/auth/pkg/config"
)

type MailerSendClient struct {
	client *mailersend.Mailersend
	from   mailersend.From
}

func NewMailerSend(cfg config.EmailConfig) *MailerSendClient {
	return &MailerSendClient{
		client: mailersend.NewMailersend(cfg.MailerSendKey),
		from: mailersend.From{
			Name:  cfg.FromName,
			Email: cfg.FromEmail,
		},
	}
}

func (m *MailerSendClient) SendOTPEmail(ctx context.Context, toEmail, toName, code string, purpose domain.Purpose) error {
	subject := "Your QuickCourt verification code"
	if purpose == domain.PurposePasswordReset {
		subject = "Your QuickCourt password reset code"
	}

	html := fmt.Sprintf(`
		<h2>%s</h2>
		<p>Hi %s,</p>
		<p>Your code is: <strong style="font-size: 24px;">%s</strong></p>
		<p>This code will expire in 10 minutes.</p>
		<p>If you didn't request this code, please ignore this email.</p>
	`, subject, toName, code)

	text := fmt.Sprintf("Your QuickCourt code is: %s\n\nThis code will expire in 10 minutes.", code)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)
	msg.SetText(text)
	msg.SetHTML(html)

	_, err := m.client.Email.Send(ctx, msg)
	return err
}
