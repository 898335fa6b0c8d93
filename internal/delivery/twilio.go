package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quickcourt/auth/pkg/config"
)

// TwilioSMS sends messages through the Twilio Messages API. The API is a
// single form-encoded POST, so it is called directly rather than through an
// SDK.
type TwilioSMS struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

func NewTwilioSMS(cfg config.SMSConfig) *TwilioSMS {
	return &TwilioSMS{
		accountSID: cfg.TwilioAccountSID,
		authToken:  cfg.TwilioAuthToken,
		from:       cfg.TwilioFromNumber,
		baseURL:    "https://api.twilio.com",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TwilioSMS) Send(ctx context.Context, toPhone, body string) error {
	form := url.Values{
		"To":   {toPhone},
		"From": {t.from},
		"Body": {body},
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call SMS provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("SMS provider returned %d: %s", resp.StatusCode, string(detail))
	}

	return nil
}
