package pebble

import (
	"context"
	"encoding/json"

	"lens/internal/domain/entity"
	"lens/internal/domain/repository"

	"github.com/pkg/errors"
)

const (
	sessionKeyPrefix = "session/"
	accountsKey      = "meta/accounts"
)

// accountsRecord is the persisted account bookkeeping: the known-account
// list and the current-account marker, written as one value so they can
// never diverge from each other.
type accountsRecord struct {
	Accounts []string `json:"accounts"`
	Current  string   `json:"current,omitempty"`
}

type sessionRepository struct {
	store *Store
}

// NewSessionRepository is the constructor for the pebble-backed session
// repository.
func NewSessionRepository(store *Store) repository.SessionRepository {
	return &sessionRepository{store: store}
}

func (r *sessionRepository) SaveSession(_ context.Context, session *entity.Session) error {
	value, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}

	return r.store.set([]byte(sessionKeyPrefix+session.DID), value)
}

func (r *sessionRepository) FindSession(_ context.Context, did string) (*entity.Session, error) {
	value, found, err := r.store.get([]byte(sessionKeyPrefix + did))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(repository.ErrSessionNotFound, "did %s", did)
	}

	var session entity.Session
	if err := json.Unmarshal(value, &session); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}

	return &session, nil
}

func (r *sessionRepository) DeleteSession(_ context.Context, did string) error {
	return r.store.delete([]byte(sessionKeyPrefix + did))
}

func (r *sessionRepository) SaveAccounts(_ context.Context, accounts []string, current string) error {
	value, err := json.Marshal(accountsRecord{Accounts: accounts, Current: current})
	if err != nil {
		return errors.Wrap(err, "encode accounts")
	}

	return r.store.set([]byte(accountsKey), value)
}

func (r *sessionRepository) LoadAccounts(_ context.Context) ([]string, string, error) {
	value, found, err := r.store.get([]byte(accountsKey))
	if err != nil {
		return nil, "", err
	}
	if !found {
		return nil, "", nil
	}

	var record accountsRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, "", errors.Wrap(err, "decode accounts")
	}

	return record.Accounts, record.Current, nil
}
