package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPasswordLength is the longest password the login policy accepts.
const MaxPasswordLength = 256

// FromRequest extracts Basic credentials from the Authorization header.
func FromRequest(r *http.Request) (Credentials, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Credentials{}, &Error{
			Type:    ErrMissingCredentials,
			Message: "authorization header required",
		}
	}
	return ParseBasicAuth(header)
}

// ParseBasicAuth parses an HTTP Basic Authentication string
func ParseBasicAuth(auth string) (Credentials, error) {
	const prefix = "Basic "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return Credentials{}, &Error{
			Type:    ErrInvalidCredentials,
			Message: "invalid authorization header format",
		}
	}

	encoded := strings.TrimSpace(auth[len(prefix):])
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Credentials{}, &Error{
			Type:    ErrInvalidCredentials,
			Message: "invalid base64 encoding",
			Err:     err,
		}
	}

	login, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return Credentials{}, &Error{
			Type:    ErrInvalidCredentials,
			Message: "invalid credentials format",
		}
	}

	return Credentials{
		Login:    login,
		Password: password,
	}, nil
}

// CheckPassword applies the baseline login policy: a password must be
// non-empty, valid UTF-8, at most MaxPasswordLength bytes and free of control
// characters.
func CheckPassword(password string) error {
	if password == "" || len(password) > MaxPasswordLength || !utf8.ValidString(password) {
		return &Error{Type: ErrPasswordPolicy, Message: "password rejected by login policy"}
	}
	for _, r := range password {
		if unicode.IsControl(r) {
			return &Error{Type: ErrPasswordPolicy, Message: "password rejected by login policy"}
		}
	}
	return nil
}

// MatchesLogin reports whether login names the user's mail address, ignoring case.
func MatchesLogin(login, mail string) bool {
	return mail != "" && strings.EqualFold(strings.TrimSpace(login), mail)
}

// RequestAuth sends a Basic challenge naming realm and answers 401.
func RequestAuth(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+strings.ReplaceAll(realm, `"`, `'`)+`"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
