package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cyp0633/libguestshare/server/apperror"
	"github.com/cyp0633/libguestshare/server/auth"
	"github.com/cyp0633/libguestshare/server/session"
	"github.com/cyp0633/libguestshare/server/storage"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIssuer struct {
	mock.Mock
}

func (m *mockIssuer) Issue(ctx context.Context, req session.Request, c *storage.Context, u *storage.User) (*session.Session, error) {
	args := m.Called(ctx, req, c, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

type mockAuthenticator struct {
	mock.Mock
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, u *storage.User, password string) error {
	return m.Called(ctx, u, password).Error(0)
}

type failingCookies struct{}

func (failingCookies) WriteSecretCookie(http.ResponseWriter, session.Request, *session.Session) error {
	return errors.New("cookie codec broken")
}

const testToken = "19496ded2c6542b5a1d6ef4aeeea4d20"

type fixture struct {
	store   *storage.MockStorage
	authn   *mockAuthenticator
	issuer  *mockIssuer
	handler *ShareHandler
	share   *storage.Share
	guest   *storage.User
	session *session.Session
}

func newFixture(t *testing.T, mode storage.AuthMode, module storage.Module) *fixture {
	t.Helper()
	f := &fixture{
		store:  &storage.MockStorage{},
		authn:  &mockAuthenticator{},
		issuer: &mockIssuer{},
		share:  storage.NewMockShare(testToken, 1, 10, module, "42", mode),
		guest: &storage.User{
			ID:        10,
			ContextID: 1,
			Login:     "guest@example.com",
			Mail:      "guest@example.com",
			Locale:    "de_DE",
			Guest:     true,
		},
		session: &session.Session{ID: "sess1", Secret: "secret1", Hash: "hash1", ContextID: 1, UserID: 10},
	}

	cookies, err := session.NewSecureCookieWriter([]byte("0123456789abcdef0123456789abcdef"), nil, "/")
	require.NoError(t, err)
	f.handler, err = NewShareHandler(Config{Prefix: "/share", Realm: "Test Realm", UIPath: "/appsuite/"},
		f.store, f.authn, f.issuer, cookies)
	require.NoError(t, err)
	return f
}

func (f *fixture) serve(path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func basicHeader(login, password string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(login+":"+password)))
	return h
}

func TestNewShareHandlerRequiresCollaborators(t *testing.T) {
	cookies, err := session.NewSecureCookieWriter([]byte("0123456789abcdef0123456789abcdef"), nil, "/")
	require.NoError(t, err)

	_, err = NewShareHandler(Config{}, nil, &mockAuthenticator{}, &mockIssuer{}, cookies)
	assert.Error(t, err)
	_, err = NewShareHandler(Config{}, &storage.MockStorage{}, nil, &mockIssuer{}, cookies)
	assert.Error(t, err)
	_, err = NewShareHandler(Config{}, &storage.MockStorage{}, &mockAuthenticator{}, nil, cookies)
	assert.Error(t, err)
	_, err = NewShareHandler(Config{}, &storage.MockStorage{}, &mockAuthenticator{}, &mockIssuer{}, nil)
	assert.Error(t, err)

	h, err := NewShareHandler(Config{Prefix: "s"}, &storage.MockStorage{}, &mockAuthenticator{}, &mockIssuer{}, cookies)
	require.NoError(t, err)
	assert.Equal(t, "/s/", h.Prefix)
	assert.Equal(t, "/", h.UIPath)
}

func TestAnonymousShare(t *testing.T) {
	f := newFixture(t, storage.AuthAnonymous, storage.ModuleCalendar)
	c := f.store.SetupGuestShare(f.share, f.guest)
	f.issuer.On("Issue", mock.Anything, mock.Anything, c, f.guest).Return(f.session, nil).Once()

	w := f.serve("/share/"+testToken, nil)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t,
		"/appsuite/#session=sess1&user=guest%40example.com&user_id=10&language=de_DE&store=true&app=io.ox%2Fcontacts&folder=42",
		w.Header().Get("Location"))
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))

	cookies := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		cookies[c.Name] = c
	}
	require.Contains(t, cookies, "sessionid")
	assert.Equal(t, "sess1", cookies["sessionid"].Value)
	require.Contains(t, cookies, "guestshare-secret-hash1")
	assert.NotEqual(t, "secret1", cookies["guestshare-secret-hash1"].Value)

	f.authn.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything, mock.Anything)
	f.issuer.AssertExpectations(t)
}

func TestItemShareRedirect(t *testing.T) {
	f := newFixture(t, storage.AuthAnonymous, storage.ModuleInfostore)
	f.share.Item = mo.Some("1337")
	c := f.store.SetupGuestShare(f.share, f.guest)
	f.issuer.On("Issue", mock.Anything, mock.Anything, c, f.guest).Return(f.session, nil).Once()

	w := f.serve("/share/"+testToken+"/items/1337", nil)

	require.Equal(t, http.StatusFound, w.Code)
	loc := w.Header().Get("Location")
	assert.Contains(t, loc, "&app=io.ox%2Ffiles&")
	assert.True(t, strings.HasSuffix(loc, "&folder=42&id=1337"), loc)
}

func TestItemLinkBeyondInt64Resolves(t *testing.T) {
	f := newFixture(t, storage.AuthAnonymous, storage.ModuleCalendar)
	c := f.store.SetupGuestShare(f.share, f.guest)
	f.issuer.On("Issue", mock.Anything, mock.Anything, c, f.guest).Return(f.session, nil).Once()

	w := f.serve("/share/"+testToken+"/items/99999999999999999999", nil)

	require.Equal(t, http.StatusFound, w.Code)
	f.issuer.AssertExpectations(t)
}

func TestInvalidLink(t *testing.T) {
	f := newFixture(t, storage.AuthAnonymous, storage.ModuleCalendar)

	for _, path := range []string{"/share/not-a-token", "/share/", "/other/" + testToken} {
		w := f.serve(path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	}
	f.store.AssertNotCalled(t, "ResolveShare", mock.Anything, mock.Anything)
}

func TestMethodNotAllowed(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodHead, http.MethodPut} {
		t.Run(method, func(t *testing.T) {
			f := newFixture(t, storage.AuthAnonymous, storage.ModuleCalendar)
			req := httptest.NewRequest(method, "/share/"+testToken, nil)
			w := httptest.NewRecorder()
			f.handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
			assert.Equal(t, "GET", w.Header().Get("Allow"))
			f.store.AssertNotCalled(t, "ResolveShare", mock.Anything, mock.Anything)
			f.issuer.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestUnknownToken(t *testing.T) {
	f := newFixture(t, storage.AuthAnonymous, storage.ModuleCalendar)
	f.store.On("ResolveShare", mock.Anything, testToken).
		Return(nil, apperror.New(storage.ErrNotFound, "share not found", nil)).Once()

	w := f.serve("/share/"+testToken, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "share not found\n", w.Body.String())
	f.issuer.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRateLimitedTokenResolution(t *testing.T) {
	f := newFixture(t, storage.AuthAnonymous, storage.ModuleCalendar)
	f.store.On("ResolveShare", mock.Anything, testToken).
		Return(nil, apperror.New(apperror.ErrRateLimited, "too many requests from your address", nil)).Once()

	w := f.serve("/share/"+testToken, nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "too many requests from your address\n", w.Body.String())
}

func TestCredentialedShare(t *testing.T) {
	tests := []struct {
		name       string
		header     http.Header
		setupMocks func(f *fixture, c *storage.Context)
		wantStatus int
		wantIssue  bool
	}{
		{
			name:       "no authorization header",
			header:     nil,
			setupMocks: func(f *fixture, c *storage.Context) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "malformed header",
			header: http.Header{
				"Authorization": []string{"Basic %%%"},
			},
			setupMocks: func(f *fixture, c *storage.Context) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "empty password",
			header:     basicHeader("guest@example.com", ""),
			setupMocks: func(f *fixture, c *storage.Context) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "mail mismatch",
			header:     basicHeader("someone@example.com", "secret"),
			setupMocks: func(f *fixture, c *storage.Context) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "wrong password",
			header: basicHeader("guest@example.com", "wrong"),
			setupMocks: func(f *fixture, c *storage.Context) {
				f.authn.On("Authenticate", mock.Anything, f.guest, "wrong").
					Return(&auth.Error{Type: auth.ErrInvalidCredentials, Message: "invalid login or password"}).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "authenticator backend failure",
			header: basicHeader("guest@example.com", "secret"),
			setupMocks: func(f *fixture, c *storage.Context) {
				f.authn.On("Authenticate", mock.Anything, f.guest, "secret").
					Return(errors.New("ldap down")).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "authenticator rate limited",
			header: basicHeader("guest@example.com", "secret"),
			setupMocks: func(f *fixture, c *storage.Context) {
				f.authn.On("Authenticate", mock.Anything, f.guest, "secret").
					Return(apperror.New(apperror.ErrRateLimited, "too many failed logins", nil)).Once()
			},
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:   "valid credentials, case-insensitive login",
			header: basicHeader("GUEST@example.com", "secret"),
			setupMocks: func(f *fixture, c *storage.Context) {
				f.authn.On("Authenticate", mock.Anything, f.guest, "secret").Return(nil).Once()
				f.issuer.On("Issue", mock.Anything, mock.Anything, c, f.guest).Return(f.session, nil).Once()
			},
			wantStatus: http.StatusFound,
			wantIssue:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, storage.AuthGuestPassword, storage.ModuleContacts)
			c := f.store.SetupGuestShare(f.share, f.guest)
			tt.setupMocks(f, c)

			w := f.serve("/share/"+testToken, tt.header)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="Test Realm `+testToken+`"`, w.Header().Get("WWW-Authenticate"))
			}
			if tt.wantIssue {
				f.issuer.AssertExpectations(t)
			} else {
				f.issuer.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				assert.Empty(t, w.Result().Cookies())
			}
			f.authn.AssertExpectations(t)
		})
	}
}

func TestSessionRefused(t *testing.T) {
	f := newFixture(t, storage.AuthAnonymous, storage.ModuleCalendar)
	c := f.store.SetupGuestShare(f.share, f.guest)
	f.issuer.On("Issue", mock.Anything, mock.Anything, c, f.guest).Return(nil, nil).Once()

	w := f.serve("/share/"+testToken, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestDisabledContextRefused(t *testing.T) {
	f := newFixture(t, storage.AuthAnonymous, storage.ModuleCalendar)
	disabled := &storage.Context{ID: 1, Enabled: false}
	f.store.On("ResolveShare", mock.Anything, testToken).Return(f.share, nil)
	f.store.On("GetContext", mock.Anything, 1).Return(disabled, nil)
	f.store.On("GetUser", mock.Anything, disabled, 10).Return(f.guest, nil)

	w := f.serve("/share/"+testToken, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	f.issuer.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionRateLimited(t *testing.T) {
	f := newFixture(t, storage.AuthAnonymous, storage.ModuleCalendar)
	c := f.store.SetupGuestShare(f.share, f.guest)
	f.issuer.On("Issue", mock.Anything, mock.Anything, c, f.guest).
		Return(nil, apperror.New(apperror.ErrRateLimited, "too many sessions requested for guest 10, try again later", nil)).Once()

	w := f.serve("/share/"+testToken, nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "too many sessions requested for guest 10, try again later\n", w.Body.String())
}

func TestGuestLookupFailure(t *testing.T) {
	f := newFixture(t, storage.AuthAnonymous, storage.ModuleCalendar)
	c := &storage.Context{ID: 1, Enabled: true}
	f.store.On("ResolveShare", mock.Anything, testToken).Return(f.share, nil)
	f.store.On("GetContext", mock.Anything, 1).Return(c, nil)
	f.store.On("GetUser", mock.Anything, c, 10).
		Return(nil, apperror.New(storage.ErrStorageUnavailable, "user directory unreachable", nil))

	w := f.serve("/share/"+testToken, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "user directory unreachable\n", w.Body.String())
}

func TestCookieFailure(t *testing.T) {
	f := newFixture(t, storage.AuthAnonymous, storage.ModuleCalendar)
	f.handler.Cookies = failingCookies{}
	c := f.store.SetupGuestShare(f.share, f.guest)
	f.issuer.On("Issue", mock.Anything, mock.Anything, c, f.guest).Return(f.session, nil).Once()

	w := f.serve("/share/"+testToken, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

func TestAppFor(t *testing.T) {
	tests := []struct {
		module storage.Module
		want   mo.Option[string]
	}{
		{storage.ModuleCalendar, mo.Some(AppPIM)},
		{storage.ModuleContacts, mo.Some(AppPIM)},
		{storage.ModuleInfostore, mo.Some(AppFiles)},
		{storage.ModuleMail, mo.None[string]()},
		{storage.ModuleSystem, mo.None[string]()},
		{storage.ModuleTask, mo.None[string]()},
		{storage.ModuleUnbound, mo.None[string]()},
	}
	assert.NotEqual(t, AppPIM, AppFiles)

	for _, tt := range tests {
		t.Run(tt.module.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, AppFor(tt.module))
		})
	}
}

func TestBuildRedirectOmitsAppForOtherModules(t *testing.T) {
	share := storage.NewMockShare(testToken, 1, 10, storage.ModuleTask, "7", storage.AuthAnonymous)
	guest := &storage.User{ID: 10, Login: "g", Locale: "en_US"}
	s := &session.Session{ID: "abc"}

	got := BuildRedirect("/ui/", share, guest, s)
	assert.Equal(t, "/ui/#session=abc&user=g&user_id=10&language=en_US&store=true&folder=7", got)
	assert.NotContains(t, got, "app=")
}
