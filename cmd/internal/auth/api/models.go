package api

import "time"

type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	AllDevices   bool   `json:"all_devices"`
}

type accountResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Admin bool   `json:"admin"`
}

type tokenPairResponse struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type loginResponse struct {
	Account accountResponse   `json:"account"`
	Tokens  tokenPairResponse `json:"tokens"`
}

type refreshResponse struct {
	Tokens tokenPairResponse `json:"tokens"`
}

type sessionItem struct {
	ID          string     `json:"id"`
	DeviceLabel string     `json:"device_label"`
	IP          *string    `json:"ip,omitempty"`
	Current     bool       `json:"current"`
	RememberMe  bool       `json:"remember_me"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

type sessionListResponse struct {
	Sessions []sessionItem `json:"sessions"`
}

type revokedCountResponse struct {
	Revoked int64 `json:"revoked"`
}

type lockoutResponse struct {
	Email          string     `json:"email"`
	Locked         bool       `json:"locked"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	FailedAttempts int        `json:"failed_attempts"`
}
