package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

type failingSender struct{}

func (failingSender) Send(string, string, string, string) error { return errors.New("boom") }

func TestOrganizationFrom(t *testing.T) {
	tenant := &repository.Tenant{ID: "acme", CompanyName: "Acme Clinic"}

	org := OrganizationFrom(tenant, nil, "https://app.test/")
	require.Equal(t, "Acme Clinic", org.Name)
	require.Equal(t, "https://app.test/t/acme", org.PortalURL)

	org = OrganizationFrom(tenant, &repository.OrganizationSettings{DisplayName: "Acme Salud", Phone: "123"}, "https://app.test")
	require.Equal(t, "Acme Salud", org.Name)
	require.Equal(t, "123", org.Phone)
}

func TestMailer_SendInvitation(t *testing.T) {
	sender := NewLogSender()
	m, err := NewMailer(sender, "HelloCare")
	require.NoError(t, err)

	org := Organization{TenantID: "acme", Name: "Acme Clinic", ContactEmail: "front@acme.test"}
	err = m.SendInvitation(context.Background(), InvitationMail{
		To:        "pat@example.com",
		Name:      "Pat",
		Role:      "paciente",
		Link:      "https://app.test/t/acme/invitation/tok?x=<y>",
		ExpiresAt: time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC),
		Org:       org,
	})
	require.NoError(t, err)

	msg, ok := sender.Last("pat@example.com")
	require.True(t, ok)
	require.Equal(t, "Invitación de Acme Clinic", msg.Subject)
	require.Contains(t, msg.TextBody, "https://app.test/t/acme/invitation/tok?x=<y>")
	require.Contains(t, msg.TextBody, "02/01/2026 15:04 UTC")
	require.Contains(t, msg.HTMLBody, "front@acme.test")
	// html/template escapa el link
	require.NotContains(t, msg.HTMLBody, "x=<y>")
}

func TestMailer_VerificationAndWelcome(t *testing.T) {
	sender := NewLogSender()
	m, err := NewMailer(sender, "HelloCare")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.SendVerificationCode(ctx, "a@b.c", "123456", 15*time.Minute))
	msg, _ := sender.Last("a@b.c")
	require.Contains(t, msg.TextBody, "123456")
	require.Contains(t, msg.TextBody, "15 minutos")
	require.Contains(t, msg.HTMLBody, "HelloCare")

	trial := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.SendWelcome(ctx, WelcomeMail{To: "admin@acme.test", Name: "Ana", TrialEndsAt: &trial, Org: Organization{Name: "Acme", PortalURL: "https://app.test/t/acme"}}))
	msg, _ = sender.Last("admin@acme.test")
	require.Contains(t, msg.TextBody, "01/03/2026")
	require.Contains(t, msg.TextBody, "https://app.test/t/acme")
	require.Len(t, sender.Messages(), 2)
}

func TestMailer_SendFailure(t *testing.T) {
	m, err := NewMailer(failingSender{}, "HelloCare")
	require.NoError(t, err)
	err = m.SendVerificationCode(context.Background(), "a@b.c", "1", time.Hour)
	require.ErrorIs(t, err, ErrSendFailed)

	_, _, err = m.Render("nope", nil)
	require.ErrorIs(t, err, ErrTemplateRender)
}

func TestHumanTTL(t *testing.T) {
	require.Equal(t, "24 horas", humanTTL(24*time.Hour))
	require.Equal(t, "90 minutos", humanTTL(90*time.Minute))
	require.Equal(t, "30s", humanTTL(30*time.Second))
}
