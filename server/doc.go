/*
Package server resolves guest share links into authenticated web sessions.

# Basic Usage

The simplest way to use this package is with the provided in-memory
directory and session issuer:

	store := memory.New()
	cookies, err := session.NewSecureCookieWriter(hashKey, nil, "/")
	if err != nil {
		log.Fatal(err)
	}
	h, err := server.NewShareHandler(server.Config{
		Prefix: "/share/",
		UIPath: "/appsuite/",
	}, store, auth.NewBcryptAuthenticator(), session.NewMemoryIssuer(), cookies)
	if err != nil {
		log.Fatal(err)
	}
	http.Handle(h.Prefix, h)
	http.ListenAndServe(":8080", nil)

# URL Scheme

Below the handler prefix a share link has one of these forms:
  - /<token> - the shared folder
  - /<token>/items - the shared folder
  - /<token>/items/<n> - a single item of the shared folder

The token is 32 hexadecimal characters. Repeated and trailing slashes are
accepted. Anything else is answered with 404.

# Flow

A GET request walks through these steps:
  - the token is resolved to a share through storage.Storage
  - the share's context and guest user are loaded
  - links that require authentication are checked against HTTP Basic
    credentials, and the login must match the guest's mail address
  - a session is requested from the session.Issuer
  - the secret and session cookies are written and the client is
    redirected (302) into the web application

The redirect target carries the session and the share coordinates in the
URL fragment:

	/appsuite/#session=...&user=...&user_id=...&language=...&store=true&app=io.ox/contacts&folder=...

# Error Handling

Failures are classified by the apperror package:

	ErrInvalidLink    -> 404
	ErrUnauthorized   -> 401 with a Basic challenge for "<realm> <token>"
	ErrSessionRefused -> 403
	ErrRateLimited    -> 429
	anything else     -> 500

A rate limit reported anywhere in the chain wins over the other kinds.

# Custom Storage Backend

To back the handler with your own directory, implement storage.Storage:

	type Storage interface {
		ResolveShare(ctx context.Context, token string) (*Share, error)
		GetContext(ctx context.Context, contextID int) (*Context, error)
		GetUser(ctx context.Context, c *Context, userID int) (*User, error)
	}

Return storage.ErrNotFound for unknown records. Unknown tokens are reported
with 500, like any other resolution failure.

# Testing

storage.MockStorage is a testify mock with helpers that register a complete
share:

	m := new(storage.MockStorage)
	share := storage.NewMockShare(storage.NewToken(), 1, 10, storage.ModuleCalendar, "42", storage.AuthAnonymous)
	m.SetupGuestShare(share, guest)

See cmd/shareserver for a complete example.
*/
package server
