package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocare/internal/billing"
	"github.com/dropDatabas3/hellocare/internal/config"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

const testYAML = `
app:
  app_env: test
  name: HelloCare
email:
  debug_echo_links: true
billing:
  webhook_secret: whsec_test
  retry:
    attempts: 1
`

type harness struct {
	t   *testing.T
	c   *Container
	srv *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg, err := config.Parse([]byte(testYAML))
	require.NoError(t, err)
	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(c.Handler)
	t.Cleanup(func() {
		srv.Close()
		c.Close()
	})
	return &harness{t: t, c: c, srv: srv}
}

// client con cookie jar propio y sin seguir redirects.
func (h *harness) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(h.t, err)
	return &http.Client{
		Jar:           jar,
		Timeout:       10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func (h *harness) do(cl *http.Client, method, path string, body any) (int, map[string]any) {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(h.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := cl.Do(req)
	require.NoError(h.t, err)
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return res.StatusCode, out
}

var codeRe = regexp.MustCompile(`\b\d{6}\b`)

// onboard registra una práctica completa y retorna el cliente del admin ya logueado.
func (h *harness) onboard(company, domain, adminEmail string) (*http.Client, string) {
	h.t.Helper()
	admin := h.client()

	st, _ := h.do(admin, "POST", "/v1/register/email/start", map[string]string{"email": adminEmail})
	require.Equal(h.t, http.StatusAccepted, st)
	msg, ok := h.c.Outbox.Last(adminEmail)
	require.True(h.t, ok)
	code := codeRe.FindString(msg.TextBody)
	require.NotEmpty(h.t, code)

	st, _ = h.do(admin, "POST", "/v1/register/email/confirm", map[string]string{"email": adminEmail, "code": code})
	require.Equal(h.t, http.StatusOK, st)

	st, reg := h.do(admin, "POST", "/v1/register", map[string]any{
		"company_name":          company,
		"domain":                domain,
		"admin_name":            "Dra. Admin",
		"admin_email":           adminEmail,
		"password":              "Sup3r-Secret!",
		"password_confirmation": "Sup3r-Secret!",
		"plan":                  "basic",
		"terms":                 true,
	})
	require.Equal(h.t, http.StatusCreated, st, reg)
	tenantID := reg["tenant_id"].(string)
	require.NotEmpty(h.t, reg["checkout_url"])

	st, status := h.do(admin, "GET", "/v1/register/status?registration_uuid="+reg["registration_uuid"].(string), nil)
	require.Equal(h.t, http.StatusOK, st, status)
	require.Equal(h.t, "completed", status["status"])
	require.Equal(h.t, tenantID, status["tenant_id"])

	handoff, err := url.Parse(status["redirect_url"].(string))
	require.NoError(h.t, err)
	res, err := admin.Get(h.srv.URL + handoff.RequestURI())
	require.NoError(h.t, err)
	res.Body.Close()
	require.Equal(h.t, http.StatusFound, res.StatusCode)

	// El token de hand-off es de un solo uso.
	res, err = admin.Get(h.srv.URL + handoff.RequestURI())
	require.NoError(h.t, err)
	res.Body.Close()
	require.Equal(h.t, http.StatusGone, res.StatusCode)

	return admin, tenantID
}

func TestEndToEnd_RegistrationInvitationAndConsents(t *testing.T) {
	h := newHarness(t)
	admin, tenantID := h.onboard("Clínica Norte", "clinicanorte.test", "admin@clinicanorte.test")
	base := "/t/" + tenantID

	tda, err := h.c.Databases.ForTenant(context.Background(), tenantID)
	require.NoError(t, err)
	patient, err := tda.Patients().Create(context.Background(), repository.CreatePersonInput{
		FirstName: "Ana", LastName: "Paz", Email: "ana@pacientes.test",
	})
	require.NoError(t, err)

	st, inv := h.do(admin, "POST", base+"/invitations", map[string]any{"kind": "patient", "entity_id": patient.ID})
	require.Equal(t, http.StatusCreated, st, inv)
	require.Equal(t, true, inv["email_sent"])
	link, err := url.Parse(inv["link"].(string))
	require.NoError(t, err)

	p := h.client()
	st, view := h.do(p, "GET", link.Path, nil)
	require.Equal(t, http.StatusOK, st, view)
	assert.Equal(t, "ana@pacientes.test", view["email"])
	assert.Equal(t, false, view["has_account"])

	st, acc := h.do(p, "POST", link.Path+"/accept", map[string]any{
		"name":                  "Ana Paz",
		"password":              "Pac1ente-Segura!",
		"password_confirmation": "Pac1ente-Segura!",
		"terms":                 true,
	})
	require.Equal(t, http.StatusOK, st, acc)
	assert.Equal(t, repository.RolePatient, acc["role"])
	assert.Equal(t, true, acc["created_account"])
	assert.EqualValues(t, 2, acc["consents_created"])

	// Segundo accept: token usado.
	st, _ = h.do(h.client(), "POST", link.Path+"/accept", map[string]any{"terms": true})
	assert.Equal(t, http.StatusGone, st)

	pid := strconv.FormatInt(patient.ID, 10)
	st, pending := h.do(p, "GET", base+"/consents/pending?entity_type=patient&entity_id="+pid, nil)
	require.Equal(t, http.StatusOK, st, pending)
	assert.Equal(t, false, pending["blocking"])
	items := pending["pending"].([]any)
	require.Len(t, items, 1)
	optional := items[0].(map[string]any)
	assert.Equal(t, "marketing", optional["key"])

	st, accepted := h.do(p, "POST", base+"/consents/accept", map[string]any{
		"entity_type":         "patient",
		"entity_id":           patient.ID,
		"consent_version_ids": []any{optional["version_id"]},
	})
	require.Equal(t, http.StatusOK, st, accepted)
	assert.EqualValues(t, 1, accepted["accepted_count"])

	// Un paciente no puede administrar.
	st, _ = h.do(p, "GET", base+"/admin/roles", nil)
	assert.Equal(t, http.StatusForbidden, st)
	// Sin sesión.
	st, _ = h.do(h.client(), "GET", base+"/consents/pending?entity_type=patient&entity_id="+pid, nil)
	assert.Equal(t, http.StatusUnauthorized, st)
}

func TestEndToEnd_AdminSurface(t *testing.T) {
	h := newHarness(t)
	admin, tenantID := h.onboard("Centro Sur", "centrosur.test", "admin@centrosur.test")
	base := "/t/" + tenantID + "/admin"

	st, org := h.do(admin, "GET", base+"/organization", nil)
	require.Equal(t, http.StatusOK, st, org)
	assert.Equal(t, "Centro Sur", org["display_name"])

	st, org = h.do(admin, "PUT", base+"/organization", map[string]any{
		"display_name":  "Centro Médico Sur",
		"contact_email": "Hola@CentroSur.test",
		"timezone":      "UTC",
	})
	require.Equal(t, http.StatusOK, st, org)
	assert.Equal(t, "hola@centrosur.test", org["contact_email"])

	st, bad := h.do(admin, "PUT", base+"/organization", map[string]any{"display_name": "", "timezone": "Mars/Olympus"})
	require.Equal(t, http.StatusUnprocessableEntity, st)
	fields := bad["fields"].(map[string]any)
	assert.Contains(t, fields, "display_name")
	assert.Contains(t, fields, "timezone")

	st, roles := h.do(admin, "GET", base+"/roles", nil)
	require.Equal(t, http.StatusOK, st, roles)

	st, created := h.do(admin, "POST", base+"/consents", map[string]any{
		"key": "telemedicine", "title": "Telemedicina", "entity_type": "patient", "is_required": true, "body": "v1",
	})
	require.Equal(t, http.StatusCreated, st, created)
	id := strconv.FormatFloat(created["id"].(float64), 'f', 0, 64)

	st, v2 := h.do(admin, "POST", base+"/consents/"+id+"/versions", map[string]string{"body": "v2"})
	require.Equal(t, http.StatusCreated, st, v2)
	assert.EqualValues(t, 2, v2["version"])

	st, billingView := h.do(admin, "GET", base+"/billing", nil)
	require.Equal(t, http.StatusOK, st)
	assert.Equal(t, string(repository.BillingTrial), billingView["billing_status"])

	st, canceled := h.do(admin, "POST", base+"/billing/cancel", nil)
	require.Equal(t, http.StatusOK, st, canceled)
	assert.Equal(t, string(repository.BillingCanceled), canceled["billing_status"])
}

func TestEndToEnd_WebhookAndInfra(t *testing.T) {
	h := newHarness(t)
	cl := h.client()

	st, _ := h.do(cl, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, st)
	st, ready := h.do(cl, "GET", "/readyz", nil)
	assert.Equal(t, http.StatusOK, st, ready)
	assert.Equal(t, "memory", ready["cache"].(map[string]any)["driver"])

	st, nf := h.do(cl, "GET", "/nope", nil)
	assert.Equal(t, http.StatusNotFound, st)
	assert.NotEmpty(t, nf["code"])

	st, _ = h.do(cl, "GET", "/t/ghost/invitation/abc", nil)
	assert.Equal(t, http.StatusNotFound, st)

	payload := []byte(`{"id":"evt_1","type":"customer.created","data":{"object":{}}}`)
	req, err := http.NewRequest("POST", h.srv.URL+"/v1/billing/webhook", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	res, err := cl.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	for _, want := range []string{"", "duplicate"} {
		req, err = http.NewRequest("POST", h.srv.URL+"/v1/billing/webhook", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Stripe-Signature", billing.SignPayload(payload, "whsec_test", time.Now()))
		res, err = cl.Do(req)
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
		res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
		if want == "duplicate" {
			assert.Equal(t, true, out["duplicate"])
		} else {
			assert.Equal(t, true, out["ignored"])
		}
	}

	res, err = cl.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.True(t, strings.Contains(string(body), `/v1/billing/webhook`), "route pattern label")
}
