package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/quickcourt/auth/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	OTPIssued         = "otp.issued"
	OTPVerified       = "otp.verified"
	OTPExhausted      = "otp.exhausted"
	UserPhoneVerified = "user.phone_verified"
	UserLoggedIn      = "user.logged_in"

	NotifySend = "notify.send"
)

// Event payloads
type OTPIssuedEvent struct {
	OTPID       string    `json:"otp_id"`
	UserID      string    `json:"user_id,omitempty"`
	PhoneNumber string    `json:"phone_number"`
	Purpose     string    `json:"purpose"`
	Channel     string    `json:"channel"`
	ExpiresAt   time.Time `json:"expires_at"`
	IssuedAt    time.Time `json:"issued_at"`
}

type OTPVerifiedEvent struct {
	OTPID       string    `json:"otp_id"`
	UserID      string    `json:"user_id,omitempty"`
	PhoneNumber string    `json:"phone_number"`
	Purpose     string    `json:"purpose"`
	VerifiedAt  time.Time `json:"verified_at"`
}

type UserPhoneVerifiedEvent struct {
	UserID      string    `json:"user_id"`
	PhoneNumber string    `json:"phone_number"`
	VerifiedAt  time.Time `json:"verified_at"`
}

type UserLoggedInEvent struct {
	UserID      string    `json:"user_id"`
	PhoneNumber string    `json:"phone_number"`
	Method      string    `json:"method"` // otp or password
	LoggedInAt  time.Time `json:"logged_in_at"`
}

type NotificationEvent struct {
	Type      string                 `json:"type"`
	Recipient string                 `json:"recipient"`
	Subject   string                 `json:"subject"`
	Template  string                 `json:"template"`
	Data      map[string]interface{} `json:"data"`
}
