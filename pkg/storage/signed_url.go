package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner creates and validates expiring tokens bound to a purpose
// and a resource id, e.g. a thumbnail that must load in an <img> tag.
type SignedURLSigner struct {
	secret  []byte
	purpose string
	ttl     time.Duration
	now     func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret, purpose string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SignedURLSigner{
		secret:  []byte(secret),
		purpose: purpose,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Generate returns a signed token referencing resourceID.
func (s *SignedURLSigner) Generate(resourceID int64) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	id := strconv.FormatInt(resourceID, 10)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	token := strings.Join([]string{id, exp, s.sign(id, exp)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded resource id.
func (s *SignedURLSigner) Parse(token string) (int64, time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, time.Time{}, fmt.Errorf("invalid token format")
	}
	resourceID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("invalid resource id")
	}
	expUnix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("invalid timestamp")
	}
	expected := s.sign(parts[0], parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return 0, time.Time{}, fmt.Errorf("invalid token signature")
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return 0, time.Time{}, fmt.Errorf("token expired")
	}
	return resourceID, expiresAt, nil
}

func (s *SignedURLSigner) sign(id, exp string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(s.purpose + "|" + id + "|" + exp))
	return hex.EncodeToString(mac.Sum(nil))
}
