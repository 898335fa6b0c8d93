package delivery

import (
	"context"
	"fmt"

	"github.com/quickcourt/auth/internal/domain"
	"github.com/quickcourt/auth/pkg/logger"
)

// DevSMS stands in when no SMS provider is configured: it logs the code
// instead of sending it. Selected only on the explicit "not configured" path
// in cmd/auth, never as a silent substitute for a configured provider.
type DevSMS struct{}

func NewDevSMS() *DevSMS {
	return &DevSMS{}
}

func (d *DevSMS) Send(_ context.Context, toPhone, body string) error {
	logger.Info("[DEV SMS] OTP delivery",
		"to", toPhone,
		"body", body,
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📱 SMS (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s\n"+
		"%s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		toPhone, body)

	return nil
}

// DevEmail is the email-channel counterpart of DevSMS.
type DevEmail struct{}

func NewDevEmail() *DevEmail {
	return &DevEmail{}
}

func (d *DevEmail) SendOTPEmail(_ context.Context, toEmail, toName, code string, purpose domain.Purpose) error {
	logger.Info("[DEV EMAIL] OTP delivery",
		"to", toEmail,
		"name", toName,
		"code", code,
		"purpose", purpose,
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 OTP EMAIL (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s (%s)\n"+
		"Purpose: %s\n"+
		"Code: %s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		toEmail, toName, purpose, code)

	return nil
}
