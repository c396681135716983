package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T) *Issuer {
	t.Helper()
	seed, err := GenerateSeed()
	require.NoError(t, err)
	iss, err := NewIssuer(Config{Issuer: "https://api.test", Seed: seed, SessionTTL: time.Hour, HandoffTTL: time.Minute})
	require.NoError(t, err)
	return iss
}

func TestIssueAndParse(t *testing.T) {
	iss := newIssuer(t)
	tok, exp, err := iss.Issue(42, "acme", "admin")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	c, err := iss.Parse(tok, KindSession)
	require.NoError(t, err)
	uid, err := c.UserID()
	require.NoError(t, err)
	require.Equal(t, int64(42), uid)
	require.Equal(t, "acme", c.TenantID)
	require.Equal(t, "admin", c.Role)

	_, err = iss.Parse(tok, KindHandoff)
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestHandoff_ExpiresAndIsUnique(t *testing.T) {
	iss := newIssuer(t)
	now := time.Now()
	iss.SetClock(func() time.Time { return now })

	tok, jti, _, err := iss.IssueHandoff(7, "acme")
	require.NoError(t, err)
	require.NotEmpty(t, jti)
	_, jti2, _, err := iss.IssueHandoff(7, "acme")
	require.NoError(t, err)
	require.NotEqual(t, jti, jti2)

	c, err := iss.Parse(tok, KindHandoff)
	require.NoError(t, err)
	require.Equal(t, jti, c.ID)

	iss.SetClock(func() time.Time { return now.Add(5 * time.Minute) })
	_, err = iss.Parse(tok, KindHandoff)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_RejectsForeignKeyAndIssuer(t *testing.T) {
	a, b := newIssuer(t), newIssuer(t)
	tok, _, err := a.Issue(1, "acme", "admin")
	require.NoError(t, err)
	_, err = b.Parse(tok, "")
	require.ErrorIs(t, err, ErrInvalidToken)

	seed, _ := GenerateSeed()
	x, err := NewIssuer(Config{Issuer: "https://one", Seed: seed})
	require.NoError(t, err)
	y, err := NewIssuer(Config{Issuer: "https://two", Seed: seed})
	require.NoError(t, err)
	tok, _, err = x.Issue(1, "acme", "")
	require.NoError(t, err)
	_, err = y.Parse(tok, "")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuer_BadSeed(t *testing.T) {
	_, err := NewIssuer(Config{Seed: "c2hvcnQ="})
	require.Error(t, err)
	_, err = NewIssuer(Config{Seed: "!!!"})
	require.Error(t, err)
}

func TestCookieConfig(t *testing.T) {
	cc := CookieConfig{Name: "hc_session", SameSite: "Strict", Secure: true, AllowBearer: true}
	rec := httptest.NewRecorder()
	cc.SetCookie(rec, "tok", time.Now().Add(time.Hour))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.True(t, cookies[0].HttpOnly)
	require.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "hc_session", Value: "from-cookie"})
	require.Equal(t, "from-cookie", cc.TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc")
	require.Equal(t, "abc", cc.TokenFromRequest(r))

	cc.AllowBearer = false
	require.Equal(t, "", cc.TokenFromRequest(r))
}
