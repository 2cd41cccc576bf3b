// Package repository defines the persistence interfaces the domain depends on.
package repository

import (
	"context"

	"lens/internal/domain/entity"
	"lens/internal/errors"
)

// ErrSessionNotFound is returned when no session material is stored for a DID.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository persists session material and the account bookkeeping of
// the session store. Implementations must write synchronously so the store's
// in-memory state and durable state never diverge.
type SessionRepository interface {
	// SaveSession stores or overwrites the session material for a DID.
	SaveSession(ctx context.Context, session *entity.Session) error

	// FindSession returns the stored session for a DID, or ErrSessionNotFound.
	FindSession(ctx context.Context, did string) (*entity.Session, error)

	// DeleteSession removes the stored session for a DID. Deleting an absent
	// session is not an error.
	DeleteSession(ctx context.Context, did string) error

	// SaveAccounts persists the known-account list and the current-account
	// marker in one write. current may be empty when logged out.
	SaveAccounts(ctx context.Context, accounts []string, current string) error

	// LoadAccounts restores the known-account list and current-account
	// marker. A store with no persisted state returns empty values, not an
	// error.
	LoadAccounts(ctx context.Context) (accounts []string, current string, err error)
}
