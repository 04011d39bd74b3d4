// Package csrf reads the cross-site-request-forgery token the chat backend
// issues in its csrftoken cookie.
package csrf

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const (
	CookieName = "csrftoken"
	HeaderName = "X-CSRFToken"
)

// Source yields the token to send with a mutating request. ok is false when
// no token is known; callers forward an empty header in that case.
type Source interface {
	Token(ctx context.Context) (token string, ok bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, bool)

func (f SourceFunc) Token(ctx context.Context) (string, bool) {
	return f(ctx)
}

// FromCookieHeader scans a "k=v; k2=v2" cookie string for csrftoken and
// returns its percent-decoded value. A value that fails to decode is
// returned raw.
func FromCookieHeader(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	prefix := CookieName + "="
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, prefix) {
			continue
		}
		v := part[len(prefix):]
		if dec, err := url.PathUnescape(v); err == nil {
			v = dec
		}
		return v, true
	}
	return "", false
}

// Static always returns token; an empty token reports ok=false.
func Static(token string) Source {
	return SourceFunc(func(context.Context) (string, bool) {
		return token, token != ""
	})
}

// CookieHeader reads the token from a fixed cookie string.
func CookieHeader(raw string) Source {
	return SourceFunc(func(context.Context) (string, bool) {
		return FromCookieHeader(raw)
	})
}

// Jar reads the token from whatever cookies the jar holds for u at call
// time, so a cookie set by the server after construction is picked up.
func Jar(jar http.CookieJar, u *url.URL) Source {
	return SourceFunc(func(context.Context) (string, bool) {
		if jar == nil || u == nil {
			return "", false
		}
		for _, c := range jar.Cookies(u) {
			if c.Name != CookieName {
				continue
			}
			v := c.Value
			if dec, err := url.PathUnescape(v); err == nil {
				v = dec
			}
			return v, true
		}
		return "", false
	})
}

// First returns the first source that knows a token.
func First(sources ...Source) Source {
	return SourceFunc(func(ctx context.Context) (string, bool) {
		for _, s := range sources {
			if s == nil {
				continue
			}
			if tok, ok := s.Token(ctx); ok {
				return tok, true
			}
		}
		return "", false
	})
}
