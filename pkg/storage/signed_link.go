package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("storage: invalid link token")
	ErrTokenExpired = errors.New("storage: link token expired")
)

// LinkSigner issues short-lived HMAC tokens granting download access to one
// stored file on behalf of one enrollment.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLinkSigner builds a signer; a non-positive ttl defaults to 15 minutes.
func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &LinkSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns token = owner.expiry.base64(file).hexmac.
func (s *LinkSigner) Sign(owner, file string) (string, time.Time, error) {
	if owner == "" || file == "" {
		return "", time.Time{}, fmt.Errorf("owner and file required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expires := s.now().Add(s.ttl).Truncate(time.Second)
	exp := strconv.FormatInt(expires.Unix(), 10)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(file))
	token := strings.Join([]string{owner, exp, encoded, s.mac(owner, exp, encoded)}, ".")
	return token, expires, nil
}

// Verify checks the signature and expiry and returns the embedded owner and file.
func (s *LinkSigner) Verify(token string) (owner, file string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", ErrInvalidToken
	}
	owner, exp, encoded, sig := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.mac(owner, exp, encoded)), []byte(sig)) {
		return "", "", ErrInvalidToken
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	if s.now().After(time.Unix(unix, 0)) {
		return "", "", ErrTokenExpired
	}
	return owner, string(raw), nil
}

func (s *LinkSigner) mac(owner, exp, encoded string) string {
	m := hmac.New(sha256.New, s.secret)
	_, _ = m.Write([]byte(owner + "|" + exp + "|" + encoded))
	return hex.EncodeToString(m.Sum(nil))
}
