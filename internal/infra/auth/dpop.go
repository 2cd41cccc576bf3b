package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const dpopKeyPEMType = "EC PRIVATE KEY"

// generateDPoPKey creates the P-256 key that binds a session's tokens.
func generateDPoPKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate dpop key")
	}

	return key, nil
}

// encodeDPoPKey serializes the key to PEM for storage inside the session.
func encodeDPoPKey(key *ecdsa.PrivateKey) (string, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", errors.Wrap(err, "marshal dpop key")
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: dpopKeyPEMType, Bytes: der})), nil
}

// decodeDPoPKey restores a key previously produced by encodeDPoPKey.
func decodeDPoPKey(pemText string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != dpopKeyPEMType {
		return nil, errors.New("malformed dpop key pem")
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse dpop key")
	}

	return key, nil
}

// dpopJWK is the embedded public key header of a DPoP proof.
type dpopJWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func publicJWK(key *ecdsa.PrivateKey) dpopJWK {
	byteLen := (key.Curve.Params().BitSize + 7) / 8

	return dpopJWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(key.PublicKey.X.FillBytes(make([]byte, byteLen))),
		Y:   base64.RawURLEncoding.EncodeToString(key.PublicKey.Y.FillBytes(make([]byte, byteLen))),
	}
}

// dpopProof signs a proof JWT for one HTTP request. nonce and accessToken
// are optional: the nonce echoes a server challenge, and the access token
// hash (ath) binds proofs on resource-server requests.
func dpopProof(key *ecdsa.PrivateKey, method, requestURL, nonce, accessToken string) (string, error) {
	claims := jwt.MapClaims{
		"jti": uuid.New().String(),
		"htm": method,
		"htu": requestURL,
		"iat": time.Now().Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	if accessToken != "" {
		hash := sha256.Sum256([]byte(accessToken))
		claims["ath"] = base64.RawURLEncoding.EncodeToString(hash[:])
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["typ"] = "dpop+jwt"
	token.Header["jwk"] = publicJWK(key)
	delete(token.Header, "kid")

	signed, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, "sign dpop proof")
	}

	return signed, nil
}

// proofURL strips query and fragment: the htu claim covers only the base URL.
func proofURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	u.Fragment = ""

	return u.String()
}
