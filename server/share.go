package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cyp0633/libguestshare/server/apperror"
	"github.com/cyp0633/libguestshare/server/auth"
	"github.com/cyp0633/libguestshare/server/link"
	"github.com/cyp0633/libguestshare/server/session"
	"github.com/cyp0633/libguestshare/server/storage"
)

// ShareHandler resolves share links into guest sessions and redirects the
// client into the web application.
type ShareHandler struct {
	Prefix string // e.g., "/share/"
	Realm  string // Realm for Basic Auth challenges
	UIPath string // e.g., "/appsuite/"

	Storage       storage.Storage
	Authenticator auth.Authenticator
	Sessions      session.Issuer
	Cookies       session.CookieWriter
	Logger        *slog.Logger
}

// Config holds the plain settings of a ShareHandler.
type Config struct {
	Prefix string
	Realm  string
	UIPath string
	Logger *slog.Logger
}

// resolution is the request-local state built up while handling one link.
type resolution struct {
	share   *storage.Share
	context *storage.Context
	guest   *storage.User
	session *session.Session
}

// NewShareHandler creates a ShareHandler. Every collaborator is required.
func NewShareHandler(cfg Config, store storage.Storage, authenticator auth.Authenticator, issuer session.Issuer, cookies session.CookieWriter) (*ShareHandler, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("storage is required")
	case authenticator == nil:
		return nil, fmt.Errorf("authenticator is required")
	case issuer == nil:
		return nil, fmt.Errorf("session issuer is required")
	case cookies == nil:
		return nil, fmt.Errorf("cookie writer is required")
	}

	prefix := cfg.Prefix
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	uiPath := cfg.UIPath
	if uiPath == "" {
		uiPath = "/"
	}
	realm := cfg.Realm
	if realm == "" {
		realm = "Guest Share"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &ShareHandler{
		Prefix:        prefix,
		Realm:         realm,
		UIPath:        uiPath,
		Storage:       store,
		Authenticator: authenticator,
		Sessions:      issuer,
		Cookies:       cookies,
		Logger:        logger,
	}, nil
}

// ServeHTTP handles one share link request.
func (h *ShareHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Logger.Debug("received share request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	// HEAD would issue a session for link previews.
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := h.resolve(r)
	if err != nil {
		h.fail(w, res, err)
		return
	}

	if err := h.prepareResponse(w, r, res.session); err != nil {
		h.fail(w, res, err)
		return
	}

	target := BuildRedirect(h.UIPath, res.share, res.guest, res.session)
	h.Logger.Info("guest session created",
		"token", res.share.Token,
		"context_id", res.context.ID,
		"user_id", res.guest.ID,
		"session_id", res.session.ID)

	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusFound)
}

// resolve runs the link through parsing, token resolution, guest lookup,
// authentication and session creation. The returned resolution is never nil.
func (h *ShareHandler) resolve(r *http.Request) (*resolution, error) {
	res := &resolution{}
	ctx := r.Context()

	l, err := link.Parse("/" + strings.TrimPrefix(r.URL.Path, h.Prefix))
	if err != nil {
		return res, err
	}
	if item, ok := l.Item.Get(); ok {
		h.Logger.Debug("share link names an item",
			"token", l.Token,
			"item", item)
	}

	res.share, err = h.resolveToken(ctx, l.Token)
	if err != nil {
		return res, err
	}

	res.context, err = h.Storage.GetContext(ctx, res.share.ContextID)
	if err != nil {
		return res, fmt.Errorf("failed to load context %d: %w", res.share.ContextID, err)
	}
	res.guest, err = h.Storage.GetUser(ctx, res.context, res.share.Guest)
	if err != nil {
		return res, fmt.Errorf("failed to load guest %d: %w", res.share.Guest, err)
	}

	if res.share.Authentication != storage.AuthAnonymous {
		if err := h.authenticate(ctx, r, res.guest); err != nil {
			return res, err
		}
	}

	if !res.context.Enabled {
		return res, apperror.New(apperror.ErrSessionRefused, fmt.Sprintf("context %d is disabled", res.context.ID), nil)
	}

	res.session, err = h.Sessions.Issue(ctx, session.NewRequest(r), res.context, res.guest)
	if err != nil {
		return res, err
	}
	if res.session == nil {
		return res, apperror.New(apperror.ErrSessionRefused, "no session could be created for this share", nil)
	}

	return res, nil
}

func (h *ShareHandler) resolveToken(ctx context.Context, token string) (*storage.Share, error) {
	share, err := h.Storage.ResolveShare(ctx, token)
	if errors.Is(err, apperror.ErrRateLimited) {
		return nil, err
	} else if err != nil {
		return nil, apperror.New(apperror.ErrTokenResolution, apperror.DisplayMessage(err), err)
	}
	return share, nil
}

// authenticate checks Basic credentials against the guest. Every failure
// matches apperror.ErrUnauthorized unless a collaborator reported rate limiting.
func (h *ShareHandler) authenticate(ctx context.Context, r *http.Request, guest *storage.User) error {
	creds, err := auth.FromRequest(r)
	if err != nil {
		return err
	}
	if err := auth.CheckPassword(creds.Password); err != nil {
		return err
	}
	if !auth.MatchesLogin(creds.Login, guest.Mail) {
		h.Logger.Info("guest login does not match share",
			"user_id", guest.ID)
		return &auth.Error{Type: auth.ErrLoginMismatch, Message: "login does not match the share's guest"}
	}
	if err := h.Authenticator.Authenticate(ctx, guest, creds.Password); err != nil {
		if errors.Is(err, apperror.ErrRateLimited) || errors.Is(err, apperror.ErrUnauthorized) {
			return err
		}
		return &auth.Error{Type: auth.ErrInvalidCredentials, Message: "authentication failed", Err: err}
	}
	return nil
}

// fail answers with the status err is classified as.
func (h *ShareHandler) fail(w http.ResponseWriter, res *resolution, err error) {
	status := apperror.StatusCode(err)
	switch status {
	case http.StatusUnauthorized:
		h.Logger.Info("share authentication required",
			"error", err)
		auth.RequestAuth(w, h.realmFor(res))
		return
	case http.StatusInternalServerError:
		h.Logger.Error("share request failed",
			"error", err)
	default:
		h.Logger.Warn("share request rejected",
			"status", status,
			"error", err)
	}
	http.Error(w, apperror.DisplayMessage(err), status)
}

func (h *ShareHandler) realmFor(res *resolution) string {
	if res == nil || res.share == nil {
		return h.Realm
	}
	return h.Realm + " " + res.share.Token
}
