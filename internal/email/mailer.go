package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htemplate "html/template"
	ttemplate "text/template"
	"time"

	"github.com/dropDatabas3/hellocare/internal/observability/logger"
)

//go:embed templates/*.html templates/*.txt
var templatesFS embed.FS

const (
	TemplateVerificationCode = "verification_code"
	TemplateInvitation       = "invitation"
	TemplateWelcome          = "welcome"
)

var (
	ErrTemplateRender = errors.New("email: template render failed")
	ErrSendFailed     = errors.New("email: send failed")
)

type compiled struct {
	html *htemplate.Template
	text *ttemplate.Template
}

// Mailer renderiza los templates embebidos y delega el envío en un Sender.
type Mailer struct {
	sender    Sender
	templates map[string]compiled
	// Org por defecto para emails previos a la existencia del tenant (verificación).
	platform Organization
}

// NewMailer compila los templates. platformName firma los emails sin tenant.
func NewMailer(sender Sender, platformName string) (*Mailer, error) {
	if sender == nil {
		return nil, errors.New("email: sender is required")
	}
	m := &Mailer{
		sender:    sender,
		templates: map[string]compiled{},
		platform:  Organization{Name: platformName},
	}
	for _, name := range []string{TemplateVerificationCode, TemplateInvitation, TemplateWelcome} {
		h, err := htemplate.ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s html template: %w", name, err)
		}
		t, err := ttemplate.ParseFS(templatesFS, "templates/"+name+".txt")
		if err != nil {
			return nil, fmt.Errorf("parse %s text template: %w", name, err)
		}
		m.templates[name] = compiled{html: h, text: t}
	}
	return m, nil
}

// VerificationVars son las variables del email con código de verificación.
type VerificationVars struct {
	Org  Organization
	Code string
	TTL  string
}

// InvitationMail es una invitación a un paciente o profesional.
type InvitationMail struct {
	To        string
	Name      string
	Role      string // "paciente" | "profesional"
	Link      string
	ExpiresAt time.Time
	Org       Organization
}

// WelcomeMail se envía al admin cuando el provisioning termina.
type WelcomeMail struct {
	To          string
	Name        string
	TrialEndsAt *time.Time
	Org         Organization
}

func (m *Mailer) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	vars := VerificationVars{Org: m.platform, Code: code, TTL: humanTTL(ttl)}
	return m.send(ctx, TemplateVerificationCode, to, "Tu código de verificación", vars)
}

func (m *Mailer) SendInvitation(ctx context.Context, in InvitationMail) error {
	vars := map[string]any{
		"Org":       in.Org,
		"Name":      in.Name,
		"Role":      in.Role,
		"Link":      in.Link,
		"ExpiresAt": in.ExpiresAt.Format("02/01/2006 15:04 MST"),
	}
	return m.send(ctx, TemplateInvitation, in.To, fmt.Sprintf("Invitación de %s", in.Org.Name), vars)
}

func (m *Mailer) SendWelcome(ctx context.Context, in WelcomeMail) error {
	vars := map[string]any{
		"Org":         in.Org,
		"Name":        in.Name,
		"TrialEndsAt": "",
	}
	if in.TrialEndsAt != nil {
		vars["TrialEndsAt"] = in.TrialEndsAt.Format("02/01/2006")
	}
	return m.send(ctx, TemplateWelcome, in.To, fmt.Sprintf("Bienvenido a %s", in.Org.Name), vars)
}

// Render expone el render de un template (preview y tests).
func (m *Mailer) Render(name string, vars any) (html, text string, err error) {
	c, ok := m.templates[name]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown template %q", ErrTemplateRender, name)
	}
	var hb, tb bytes.Buffer
	if err := c.html.ExecuteTemplate(&hb, "layout", vars); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	if err := c.text.Execute(&tb, vars); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return hb.String(), tb.String(), nil
}

func (m *Mailer) send(ctx context.Context, name, to, subject string, vars any) error {
	log := logger.From(ctx).With(logger.Layer("email"), logger.Op(name))
	html, text, err := m.Render(name, vars)
	if err != nil {
		log.Error("render failed", logger.Err(err))
		return err
	}
	if err := m.sender.Send(to, subject, html, text); err != nil {
		log.Error("send failed", logger.Err(err))
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

func humanTTL(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%d horas", int(d/time.Hour))
	case d >= time.Minute:
		return fmt.Sprintf("%d minutos", int(d/time.Minute))
	default:
		return d.String()
	}
}
