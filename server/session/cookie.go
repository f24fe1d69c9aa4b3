package session

import (
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"
)

const (
	// SecretCookiePrefix is followed by the session hash.
	SecretCookiePrefix = "guestshare-secret-"
	// SessionCookieName holds the plain session id.
	SessionCookieName = "sessionid"
)

// CookieWriter writes the signed session secret cookie.
type CookieWriter interface {
	WriteSecretCookie(w http.ResponseWriter, req Request, s *Session) error
}

// SecureCookieWriter signs (and, with a block key, encrypts) the secret with
// gorilla/securecookie.
type SecureCookieWriter struct {
	codec *securecookie.SecureCookie
	path  string
}

// NewSecureCookieWriter creates a CookieWriter. hashKey should be 32 or 64
// bytes; blockKey may be nil to sign only.
func NewSecureCookieWriter(hashKey, blockKey []byte, path string) (*SecureCookieWriter, error) {
	if len(hashKey) < 32 {
		return nil, fmt.Errorf("cookie hash key must be at least 32 bytes")
	}
	if path == "" {
		path = "/"
	}
	return &SecureCookieWriter{
		codec: securecookie.New(hashKey, blockKey),
		path:  path,
	}, nil
}

// SecretCookieName returns the cookie name for s.
func SecretCookieName(s *Session) string {
	return SecretCookiePrefix + s.Hash
}

// WriteSecretCookie implements CookieWriter
func (c *SecureCookieWriter) WriteSecretCookie(w http.ResponseWriter, req Request, s *Session) error {
	name := SecretCookieName(s)
	encoded, err := c.codec.Encode(name, s.Secret)
	if err != nil {
		return fmt.Errorf("failed to encode secret cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     c.path,
		Secure:   req.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ReadSecret decodes the secret from the cookie written for s.
func (c *SecureCookieWriter) ReadSecret(r *http.Request, s *Session) (string, error) {
	name := SecretCookieName(s)
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	var secret string
	if err := c.codec.Decode(name, cookie.Value, &secret); err != nil {
		return "", err
	}
	return secret, nil
}
