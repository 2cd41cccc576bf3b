package entity

import "time"

// Profile is the display metadata of an account, as served by the appview.
type Profile struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// ProfileEntry is one profile cache entry. FetchedAt drives both the
// read-path freshness check and the retention sweep.
type ProfileEntry struct {
	Profile   Profile   `json:"profile"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// FreshAt reports whether the entry is younger than the freshness window at
// the given instant.
func (e *ProfileEntry) FreshAt(now time.Time, window time.Duration) bool {
	return now.Sub(e.FetchedAt) < window
}
