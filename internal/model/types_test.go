package model

import (
	"testing"
	"time"
)

func TestSession_Lapsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		sess Session
		want bool
	}{
		{"authorized running past", Session{Mode: ModeAuthorized, Status: StatusRunning, ExpiresAt: &past}, true},
		{"authorized running future", Session{Mode: ModeAuthorized, Status: StatusRunning, ExpiresAt: &future}, false},
		{"authorized running no expiry", Session{Mode: ModeAuthorized, Status: StatusRunning}, false},
		{"already expired", Session{Mode: ModeAuthorized, Status: StatusExpired, ExpiresAt: &past}, false},
		{"trial", Session{Mode: ModeTrial, Status: StatusRunning, ExpiresAt: &past}, false},
	}
	for _, tc := range cases {
		if got := tc.sess.Lapsed(now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSession_QuotaRemaining(t *testing.T) {
	s := Session{Mode: ModeTrial, QuotaLimit: DefaultQuotaLimit, MessageCount: 5}
	if got := s.QuotaRemaining(); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
	s.MessageCount = DefaultQuotaLimit
	if got := s.QuotaRemaining(); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	s.Mode = ModeAuthorized
	if got := s.QuotaRemaining(); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
}
