// Package util contains small helpers shared across layers.
package util

import (
	"fmt"
	"strings"

	domainerrors "lens/internal/domain/errors"

	"github.com/pkg/errors"
)

const atURIPrefix = "at://"

// ATURI is a parsed record address: authority, collection, and record key.
// Authority is a DID or handle; collection and rkey may be empty for
// repo-level and collection-level URIs.
type ATURI struct {
	Authority  string
	Collection string
	Rkey       string
}

// ParseATURI parses an at:// URI. Trailing segments beyond the record key
// are rejected.
func ParseATURI(raw string) (ATURI, error) {
	rest, ok := strings.CutPrefix(raw, atURIPrefix)
	if !ok {
		return ATURI{}, errors.Wrapf(domainerrors.ErrInvalidFormat, "missing at:// prefix in %q", raw)
	}

	parts := strings.Split(rest, "/")
	if len(parts) > 3 {
		return ATURI{}, errors.Wrapf(domainerrors.ErrInvalidFormat, "too many segments in %q", raw)
	}

	uri := ATURI{Authority: parts[0]}
	if len(parts) > 1 {
		uri.Collection = parts[1]
	}
	if len(parts) > 2 {
		uri.Rkey = parts[2]
	}

	if uri.Authority == "" {
		return ATURI{}, errors.Wrapf(domainerrors.ErrInvalidFormat, "empty authority in %q", raw)
	}
	if uri.Rkey != "" && uri.Collection == "" {
		return ATURI{}, errors.Wrapf(domainerrors.ErrInvalidFormat, "record key without collection in %q", raw)
	}

	return uri, nil
}

// String renders the URI back to its at:// form.
func (u ATURI) String() string {
	switch {
	case u.Rkey != "":
		return fmt.Sprintf("%s%s/%s/%s", atURIPrefix, u.Authority, u.Collection, u.Rkey)
	case u.Collection != "":
		return fmt.Sprintf("%s%s/%s", atURIPrefix, u.Authority, u.Collection)
	default:
		return atURIPrefix + u.Authority
	}
}
