// Package session issues guest sessions and writes their cookies.
package session

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cyp0633/libguestshare/server/storage"
	"github.com/google/uuid"
)

// Session is an authenticated guest session.
type Session struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	// Hash binds the session to the client it was issued to.
	Hash      string    `json:"hash"`
	ContextID int       `json:"context_id"`
	UserID    int       `json:"user_id"`
	Login     string    `json:"login"`
	Created   time.Time `json:"created"`
}

// Request carries what issuers need to know about the client.
type Request struct {
	RemoteAddr string
	UserAgent  string
	Host       string
	Secure     bool
}

// NewRequest extracts the client description from r.
func NewRequest(r *http.Request) Request {
	return Request{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Host:       r.Host,
		Secure:     r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https"),
	}
}

// Issuer creates sessions for guests.
type Issuer interface {
	// Issue returns a new session, or nil without error when the session store
	// declines. Rate limiting is reported as apperror.ErrRateLimited.
	Issue(ctx context.Context, req Request, c *storage.Context, u *storage.User) (*Session, error)
}

func randomID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// clientHash derives a stable per-client hash from the user agent.
func clientHash(req Request) string {
	return strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.UserAgent)).String(), "-", "")
}

func newSession(req Request, c *storage.Context, u *storage.User, now time.Time) *Session {
	return &Session{
		ID:        randomID(),
		Secret:    randomID(),
		Hash:      clientHash(req),
		ContextID: c.ID,
		UserID:    u.ID,
		Login:     u.Login,
		Created:   now,
	}
}

func guestKey(contextID, userID int) string {
	return strconv.Itoa(contextID) + ":" + strconv.Itoa(userID)
}
