package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/identity"
)

const identityCookieMaxAge = 400 * 24 * time.Hour

// requestMedium persists the identity in a cookie for browsers and echoes
// it in a response header for clients that keep it themselves. Values are
// base64url JSON.
type requestMedium struct {
	w       http.ResponseWriter
	data    []byte
	secure  bool
	cleared bool
}

func newRequestMedium(w http.ResponseWriter, r *http.Request) *requestMedium {
	m := &requestMedium{w: w, secure: r.TLS != nil}

	raw := strings.TrimSpace(r.Header.Get(common.AnonymousIdentityHeaderName))
	if raw == "" {
		if c, err := r.Cookie(common.AnonymousIdentityCookieName); err == nil {
			raw = c.Value
		}
	}
	if raw != "" {
		if data, err := base64.RawURLEncoding.DecodeString(raw); err == nil {
			m.data = data
		}
	}
	return m
}

func (m *requestMedium) Load(context.Context) ([]byte, error) {
	if m.cleared || m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *requestMedium) Save(_ context.Context, data []byte) error {
	m.data = append([]byte(nil), data...)
	m.cleared = false
	value := base64.RawURLEncoding.EncodeToString(data)

	http.SetCookie(m.w, &http.Cookie{
		Name:     common.AnonymousIdentityCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(identityCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	m.w.Header().Set(common.AnonymousIdentityHeaderName, value)
	return nil
}

func (m *requestMedium) Clear(context.Context) error {
	m.data = nil
	m.cleared = true
	http.SetCookie(m.w, &http.Cookie{
		Name:     common.AnonymousIdentityCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	m.w.Header().Del(common.AnonymousIdentityHeaderName)
	return nil
}

// fingerprintFromRequest derives the coarse device attributes from headers.
// Clients send X-Timezone and X-Screen-Class; locale and platform come from
// the standard headers.
func fingerprintFromRequest(r *http.Request) identity.Fingerprint {
	return identity.Fingerprint{
		Locale:      primaryLocale(r.Header.Get("Accept-Language")),
		Timezone:    strings.TrimSpace(r.Header.Get("X-Timezone")),
		ScreenClass: strings.ToLower(strings.TrimSpace(r.Header.Get("X-Screen-Class"))),
		Platform:    platformFromUserAgent(r.Header.Get("User-Agent")),
	}
}

func primaryLocale(acceptLanguage string) string {
	first, _, _ := strings.Cut(acceptLanguage, ",")
	tag, _, _ := strings.Cut(first, ";")
	tag = strings.TrimSpace(tag)
	if tag == "*" {
		return ""
	}
	return tag
}

var platforms = []struct{ needle, name string }{
	{"iphone", "ios"},
	{"ipad", "ios"},
	{"android", "android"},
	{"windows", "windows"},
	{"mac os", "macos"},
	{"macintosh", "macos"},
	{"cros", "chromeos"},
	{"linux", "linux"},
}

func platformFromUserAgent(ua string) string {
	lower := strings.ToLower(ua)
	for _, p := range platforms {
		if strings.Contains(lower, p.needle) {
			return p.name
		}
	}
	product, _, _ := strings.Cut(strings.TrimSpace(lower), "/")
	return product
}
