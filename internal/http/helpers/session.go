package helpers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/hellocare/internal/session"
)

// Sessions emite la cookie de sesión y arma los links de hand-off al tenant.
type Sessions struct {
	Issuer  *session.Issuer
	Cookie  session.CookieConfig
	BaseURL string
}

// Login setea la cookie de sesión del usuario en el tenant.
func (s *Sessions) Login(w http.ResponseWriter, userID int64, tenantID, role string) error {
	tok, exp, err := s.Issuer.Issue(userID, tenantID, role)
	if err != nil {
		return err
	}
	s.Cookie.SetCookie(w, tok, exp)
	return nil
}

// HandoffURL emite un token de un solo uso y retorna /t/{tenant}/sso?token=.
func (s *Sessions) HandoffURL(userID int64, tenantID string) (string, error) {
	tok, _, _, err := s.Issuer.IssueHandoff(userID, tenantID)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(s.BaseURL, "/") + "/t/" + url.PathEscape(tenantID) + "/sso?token=" + url.QueryEscape(tok), nil
}

// PortalURL es el destino final dentro del tenant.
func (s *Sessions) PortalURL(tenantID string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/t/" + url.PathEscape(tenantID) + "/"
}
