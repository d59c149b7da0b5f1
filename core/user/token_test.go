package user

import (
	"testing"
	"time"
)

func TestGenerateResetToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := generateResetToken(resetTokenLength)
		if err != nil {
			t.Fatalf("generateResetToken() error = %v", err)
		}
		if len(token) != resetTokenLength {
			t.Fatalf("generateResetToken() len = %d, want %d", len(token), resetTokenLength)
		}
		for _, c := range token {
			if c < '0' || c > '9' {
				t.Fatalf("generateResetToken() = %q, want digits only", token)
			}
		}
		seen[token] = true
	}
	if len(seen) < 50 {
		t.Errorf("generateResetToken() produced only %d distinct tokens out of 100", len(seen))
	}
}

func TestResetTokenExpired(t *testing.T) {
	now := time.Now().UTC()
	tok := ResetToken{
		UserID:    1,
		Token:     "123456",
		ExpiresAt: now.Add(30 * time.Minute),
		CreatedAt: now,
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "fresh", at: now, want: false},
		{name: "just before expiry", at: tok.ExpiresAt.Add(-time.Second), want: false},
		{name: "just after expiry", at: tok.ExpiresAt.Add(time.Second), want: true},
		{name: "long expired", at: now.Add(24 * time.Hour), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tok.Expired(tt.at); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
