package domain

import (
	"fmt"
	"strings"
	"time"
)

type User struct {
	ID                  string     `json:"id"`
	Role                string     `json:"role"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Phone               string     `json:"phone"`
	PasswordHash        string     `json:"-"`
	PhoneVerified       bool       `json:"phone_verified"`
	PreferredAuthMethod string     `json:"preferred_auth_method"`
	LastOTPSent         *time.Time `json:"last_otp_sent,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type UserInfo struct {
	ID                  string `json:"id"`
	Role                string `json:"role"`
	Name                string `json:"name"`
	Phone               string `json:"phone"`
	PhoneVerified       bool   `json:"phone_verified"`
	PreferredAuthMethod string `json:"preferred_auth_method"`
}

type PasswordLoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        *UserInfo `json:"user"`
}

// Valid user roles
const (
	RoleCustomer      = "customer"
	RoleFacilityOwner = "facility_owner"
	RoleAdmin         = "admin"
)

// Auth methods
const (
	AuthMethodOTP      = "otp"
	AuthMethodPassword = "password"
)

func (r *PasswordLoginRequest) Normalize() {
	r.PhoneNumber = FormatPhone(r.PhoneNumber)
}

func (r *PasswordLoginRequest) Validate() error {
	if !ValidPhone(r.PhoneNumber) {
		return fmt.Errorf("phone number must be in international format, e.g. +15551234567")
	}
	if strings.TrimSpace(r.Password) == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

// ToUserInfo converts User to UserInfo (without sensitive data)
func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		ID:                  u.ID,
		Role:                u.Role,
		Name:                u.Name,
		Phone:               u.Phone,
		PhoneVerified:       u.PhoneVerified,
		PreferredAuthMethod: u.PreferredAuthMethod,
	}
}
