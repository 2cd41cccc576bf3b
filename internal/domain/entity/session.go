package entity

import "time"

// TokenSet is the opaque credential material of one session. It is owned
// exclusively by the session store and never handed to delivery layers.
type TokenSet struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// expirySkew treats tokens about to expire as already expired so a refresh
// happens before the server rejects the stale token.
const expirySkew = 30 * time.Second

// Expired reports whether the access token needs refreshing at the given
// instant.
func (t TokenSet) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.Add(expirySkew).After(t.ExpiresAt)
}

// Session is one authenticated binding between this client and a remote
// account.
type Session struct {
	// DID keys the session in the store.
	DID string `json:"did"`

	// Handle is the handle verified at login time, kept for display.
	Handle string `json:"handle,omitempty"`

	// PDSEndpoint is the data server the session authenticates against.
	PDSEndpoint string `json:"pdsEndpoint"`

	// AuthServerIssuer is the authorization server that minted the tokens,
	// needed for refresh and revocation.
	AuthServerIssuer string `json:"authServerIssuer"`

	// Tokens is the credential material bundle.
	Tokens TokenSet `json:"tokens"`

	// DPoPKey is the PEM-encoded EC private key binding the tokens.
	DPoPKey string `json:"dpopKey"`

	CreatedAt time.Time `json:"createdAt"`
}

// SessionState is the snapshot delivered to session store subscribers after
// every successful mutation.
type SessionState struct {
	// Current is the active session, nil when logged out.
	Current *Session

	// Accounts lists every account DID with stored session material.
	Accounts []string
}
