package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenSet_Expired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "far in the future", expiresAt: now.Add(time.Hour), want: false},
		{name: "already past", expiresAt: now.Add(-time.Minute), want: true},
		{name: "inside the skew window", expiresAt: now.Add(10 * time.Second), want: true},
		{name: "just outside the skew window", expiresAt: now.Add(45 * time.Second), want: false},
		{name: "no expiry recorded", expiresAt: time.Time{}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tokens := TokenSet{AccessToken: "a", ExpiresAt: tc.expiresAt}

			assert.Equal(t, tc.want, tokens.Expired(now))
		})
	}
}

func TestProfileEntry_FreshAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	fresh := &ProfileEntry{FetchedAt: now.Add(-time.Minute)}
	stale := &ProfileEntry{FetchedAt: now.Add(-10 * time.Minute)}

	assert.True(t, fresh.FreshAt(now, window))
	assert.False(t, stale.FreshAt(now, window))
}
