// Package link parses the path of an inbound share link.
package link

import (
	"fmt"
	"regexp"

	"github.com/cyp0633/libguestshare/server/apperror"
	"github.com/samber/mo"
)

// Pattern is the share link path contract: a 32 digit hex token, optionally
// followed by /items and an item id, optionally followed by slashes.
const Pattern = `^/+([0-9a-fA-F]{32})(?:/+items(?:/+([0-9]+))?)?/*$`

var linkRegexp = regexp.MustCompile(Pattern)

// Link is a parsed share link. Item holds the digits exactly as matched.
type Link struct {
	Token string
	Item  mo.Option[string]
}

// Parse matches path against Pattern.
func Parse(path string) (Link, error) {
	if path == "" {
		return Link{}, apperror.New(apperror.ErrInvalidLink, "empty path", nil)
	}
	m := linkRegexp.FindStringSubmatch(path)
	if m == nil {
		return Link{}, apperror.New(apperror.ErrInvalidLink, fmt.Sprintf("no share at %q", path), nil)
	}

	l := Link{Token: m[1], Item: mo.None[string]()}
	if m[2] != "" {
		l.Item = mo.Some(m[2])
	}
	return l, nil
}
