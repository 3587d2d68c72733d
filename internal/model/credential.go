package model

import "time"

// Credential is the upstream quote API credential.
// Version increases on every update.
type Credential struct {
	AppKey      string     `json:"app_key,omitempty"`
	AppSecret   string     `json:"-"`
	AccessToken string     `json:"access_token"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Version     uint64     `json:"version"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Expired reports whether the credential carries a known expiry that has passed.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// MaskedToken returns the token with all but its last four characters hidden.
func (c Credential) MaskedToken() string {
	t := c.AccessToken
	if len(t) <= 4 {
		return "****"
	}
	return "****" + t[len(t)-4:]
}
