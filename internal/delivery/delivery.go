package delivery

import (
	"context"
	"fmt"

	"github.com/quickcourt/auth/internal/domain"
)

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	Send(ctx context.Context, toPhone, body string) error
}

// EmailSender delivers a one-time code over email.
type EmailSender interface {
	SendOTPEmail(ctx context.Context, toEmail, toName, code string, purpose domain.Purpose) error
}

// Channels reported back to callers and events.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// Dispatcher routes a code to the right channel. SMS is the default;
// password-reset codes go over email when the user has an address on file,
// since that flow exists precisely because the user may have lost phone access.
type Dispatcher struct {
	sms   SMSSender
	email EmailSender
}

func NewDispatcher(sms SMSSender, email EmailSender) *Dispatcher {
	return &Dispatcher{sms: sms, email: email}
}

func (d *Dispatcher) Deliver(ctx context.Context, rec *domain.OTPRecord, user *domain.User) (string, error) {
	if rec.Purpose == domain.PurposePasswordReset && user != nil && user.Email != "" {
		if err := d.email.SendOTPEmail(ctx, user.Email, user.Name, rec.Code, rec.Purpose); err != nil {
			return ChannelEmail, err
		}
		return ChannelEmail, nil
	}

	if err := d.sms.Send(ctx, rec.PhoneNumber, smsBody(rec.Code, rec.Purpose)); err != nil {
		return ChannelSMS, err
	}
	return ChannelSMS, nil
}

func smsBody(code string, purpose domain.Purpose) string {
	switch purpose {
	case domain.PurposeRegistration:
		return fmt.Sprintf("Your QuickCourt signup code is %s. It expires in 10 minutes.", code)
	case domain.PurposePasswordReset:
		return fmt.Sprintf("Your QuickCourt password reset code is %s. It expires in 10 minutes.", code)
	default:
		return fmt.Sprintf("Your QuickCourt verification code is %s. It expires in 10 minutes.", code)
	}
}
