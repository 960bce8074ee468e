// Package token signs and verifies the bearer credentials the API and
// relay handshake accept. Session issuance proper is external; this is
// only the minimal "the token carries a user identity" contract.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Verifier extracts the identity carried by a bearer token.
type Verifier interface {
	Verify(token string) (int64, error)
}

// HMACVerifier implements Verifier over tokens of the form
// "<user_id>.<hex hmac-sha256(user_id, secret)>".
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret must not be empty")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// Sign produces a token for the given identity.
func (v *HMACVerifier) Sign(userID int64) string {
	payload := strconv.FormatInt(userID, 10)
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	return payload + "." + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature and returns the embedded identity.
func (v *HMACVerifier) Verify(tok string) (int64, error) {
	parts := strings.SplitN(tok, ".", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed token")
	}

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("malformed token identity")
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(parts[0]))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return 0, fmt.Errorf("token signature mismatch")
	}

	return userID, nil
}
