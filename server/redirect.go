package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cyp0633/libguestshare/server/session"
	"github.com/cyp0633/libguestshare/server/storage"
	"github.com/samber/mo"
)

const (
	// AppPIM opens calendar and contacts shares.
	AppPIM = "io.ox/contacts"
	// AppFiles opens infostore shares.
	AppFiles = "io.ox/files"
)

// AppFor returns the client application that opens shares of module.
// Modules without a dedicated application yield None.
func AppFor(module storage.Module) mo.Option[string] {
	switch module {
	case storage.ModuleCalendar, storage.ModuleContacts:
		return mo.Some(AppPIM)
	case storage.ModuleInfostore:
		return mo.Some(AppFiles)
	default:
		return mo.None[string]()
	}
}

// BuildRedirect returns the deep link into the web application for a freshly
// created guest session. Parameters travel in the fragment so they never
// reach server logs.
func BuildRedirect(uiPath string, share *storage.Share, guest *storage.User, s *session.Session) string {
	var b strings.Builder
	b.WriteString(uiPath)
	b.WriteByte('#')

	first := true
	param := func(key, value string) {
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
	}

	param("session", s.ID)
	param("user", guest.Login)
	param("user_id", strconv.Itoa(guest.ID))
	param("language", guest.Locale)
	param("store", "true")
	if app, ok := AppFor(share.Module).Get(); ok {
		param("app", app)
	}
	param("folder", share.Folder)
	if item, ok := share.Item.Get(); ok {
		param("id", item)
	}
	return b.String()
}

// prepareResponse disables caching and writes the session cookies.
func (h *ShareHandler) prepareResponse(w http.ResponseWriter, r *http.Request, s *session.Session) error {
	header := w.Header()
	header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	header.Set("Pragma", "no-cache")
	header.Set("Expires", "0")

	req := session.NewRequest(r)
	if err := h.Cookies.WriteSecretCookie(w, req, s); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     session.SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		Secure:   req.Secure,
		HttpOnly: true,
	})
	return nil
}
