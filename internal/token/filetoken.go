// Package token implements the two token kinds the host issues: signed file
// capability tokens that scope a request to a single store-relative path, and
// bearer access tokens that assert user identity and write capability.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"path"
	"strings"
)

// ErrInvalidToken is returned for any malformed, tampered, or
// traversal-carrying file token. Callers must not distinguish the cases.
var ErrInvalidToken = errors.New("invalid file token")

// FileSigner mints and verifies file capability tokens. A token grants
// permission to address one relative path for as long as the signing secret
// is unchanged; it carries no user identity and no expiry.
type FileSigner struct {
	secret []byte
}

// NewFileSigner creates a FileSigner with the given MAC secret.
func NewFileSigner(secret []byte) *FileSigner {
	return &FileSigner{secret: secret}
}

// SignPath returns the capability token for a store-relative path.
// The token is base64url(path) + "." + base64url(HMAC-SHA256(secret, path));
// payload and signature are encoded independently so verification can
// compare raw signature bytes.
func (s *FileSigner) SignPath(rel string) string {
	normalized := strings.ReplaceAll(rel, "\\", "/")
	payload := base64.RawURLEncoding.EncodeToString([]byte(normalized))
	sig := base64.RawURLEncoding.EncodeToString(s.mac(normalized))
	return payload + "." + sig
}

// VerifyPath validates a capability token and returns the cleaned relative
// path it carries. The signature comparison is constant-time. A path that
// escapes the store root (leading ".." after cleaning, or absolute) is
// rejected even when the signature is valid.
func (s *FileSigner) VerifyPath(tok string) (string, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 2 {
		return "", ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrInvalidToken
	}
	if !hmac.Equal(sig, s.mac(string(payload))) {
		return "", ErrInvalidToken
	}
	clean := path.Clean(strings.ReplaceAll(string(payload), "\\", "/"))
	if strings.HasPrefix(clean, "..") || strings.HasPrefix(clean, "/") {
		return "", ErrInvalidToken
	}
	return clean, nil
}

func (s *FileSigner) mac(data string) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(data))
	return m.Sum(nil)
}
