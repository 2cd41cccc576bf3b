package entity

import "strings"

// Identity is the resolved identity of an account. It is a short-lived
// lookup result, always safe to re-fetch; the PDS endpoint may change when
// an account migrates, so callers must re-resolve rather than cache it
// indefinitely.
type Identity struct {
	// DID is the stable identifier, immutable once resolved.
	DID string `json:"did"`

	// Handle is the human-readable name declared by the DID document.
	Handle string `json:"handle,omitempty"`

	// HandleInvalid is set when the declared handle no longer resolves
	// back to the DID. An invalid handle must be flagged, never silently
	// trusted.
	HandleInvalid bool `json:"handleInvalid,omitempty"`

	// PDSEndpoint is the base URL of the account's current data server.
	PDSEndpoint string `json:"pdsEndpoint"`
}

// DIDDocument is the subset of a DID document the resolver consumes.
type DIDDocument struct {
	ID          string       `json:"id"`
	AlsoKnownAs []string     `json:"alsoKnownAs"`
	Service     []DIDService `json:"service"`
}

// DIDService is one service declaration inside a DID document.
type DIDService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// PDSEndpoint returns the personal data server endpoint declared by the
// document, or empty when none is declared.
func (d *DIDDocument) PDSEndpoint() string {
	for _, svc := range d.Service {
		if svc.Type == "AtprotoPersonalDataServer" || strings.HasSuffix(svc.ID, "#atproto_pds") {
			return svc.ServiceEndpoint
		}
	}

	return ""
}

// DeclaredHandle returns the handle the document claims via its at:// alias,
// or empty when none is declared.
func (d *DIDDocument) DeclaredHandle() string {
	for _, aka := range d.AlsoKnownAs {
		if rest, ok := strings.CutPrefix(aka, "at://"); ok {
			return rest
		}
	}

	return ""
}

// IsDID reports whether the identifier is DID-shaped rather than a handle.
func IsDID(identifier string) bool {
	return strings.HasPrefix(identifier, "did:")
}
