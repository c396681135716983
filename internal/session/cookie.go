package session

import (
	"net/http"
	"strings"
	"time"
)

// CookieConfig define cómo se setea la cookie de sesión.
type CookieConfig struct {
	Name     string
	Domain   string
	SameSite string // Lax | Strict | None
	Secure   bool
	// AllowBearer acepta también "Authorization: Bearer" (clientes API).
	AllowBearer bool
}

func (c CookieConfig) sameSite() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// SetCookie escribe la cookie HttpOnly con el token de sesión.
func (c CookieConfig) SetCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	})
}

// ClearCookie expira la cookie.
func (c CookieConfig) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	})
}

// TokenFromRequest lee la cookie y, si está permitido, el header Bearer.
func (c CookieConfig) TokenFromRequest(r *http.Request) string {
	if ck, err := r.Cookie(c.Name); err == nil && ck.Value != "" {
		return ck.Value
	}
	if c.AllowBearer {
		h := r.Header.Get("Authorization")
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return ""
}
