package authapi

import "time"

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	Platform   string `json:"platform"`
	DeviceID   string `json:"device_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Platform     string `json:"platform"`
	DeviceID     string `json:"device_id"`
}

// tokenRequest carries a refresh token for logout, status and listing.
type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	UserID           string    `json:"user_id"`
	JTI              string    `json:"jti"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	RememberMe       bool      `json:"remember_me"`
	Evicted          int       `json:"evicted"`
}

type loginResponse struct {
	Session sessionResponse `json:"session"`
}

type refreshResponse struct {
	Session sessionResponse `json:"session"`
}

type statusResponse struct {
	Active bool `json:"active"`
}

type sessionInfo struct {
	JTI        string    `json:"jti"`
	Device     string    `json:"device"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	RememberMe bool      `json:"remember_me"`
	Current    bool      `json:"current"`
}

type sessionsResponse struct {
	Sessions []sessionInfo `json:"sessions"`
}
