package model

import "time"

// DefaultQuotaLimit is the number of free messages a trial session may send.
const DefaultQuotaLimit = 20

type Mode string

const (
	ModeTrial      Mode = "trial"
	ModeAuthorized Mode = "authorized"
)

func (m Mode) Valid() bool {
	return m == ModeTrial || m == ModeAuthorized
}

type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusExpired  Status = "expired"
	StatusError    Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusStarting, StatusRunning, StatusStopped, StatusExpired, StatusError:
		return true
	}
	return false
}

// Session is one managed bot integration.
type Session struct {
	ID            string     `json:"id"`
	CredentialRef string     `json:"credentialRef"`
	OwnerRef      string     `json:"ownerRef"`
	WelcomeText   string     `json:"welcomeText,omitempty"`
	Mode          Mode       `json:"mode"`
	Status        Status     `json:"status"`
	MessageCount  int        `json:"messageCount"`
	QuotaLimit    int        `json:"quotaLimit"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Lapsed reports whether an authorized running session is past its expiry.
func (s Session) Lapsed(now time.Time) bool {
	return s.Mode == ModeAuthorized &&
		s.Status == StatusRunning &&
		s.ExpiresAt != nil &&
		s.ExpiresAt.Before(now)
}

// QuotaRemaining is the number of trial messages left. Authorized sessions
// report -1.
func (s Session) QuotaRemaining() int {
	if s.Mode != ModeTrial {
		return -1
	}
	if s.MessageCount >= s.QuotaLimit {
		return 0
	}
	return s.QuotaLimit - s.MessageCount
}
