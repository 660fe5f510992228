package reminder

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"avaremind-backend/services/reminder/store"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer turns a template name plus data into an email body. The
// default implementation renders the embedded html templates; tests
// swap in their own.
type Renderer interface {
	Render(name string, data any) (string, error)
}

type templateRenderer struct {
	templates *template.Template
}

func NewTemplateRenderer() (Renderer, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return templateRenderer{templates: templates}, nil
}

func (r templateRenderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	err := r.templates.ExecuteTemplate(&buf, name, data)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Sender delivers one rendered email. The SMTP implementation is the
// only one used outside tests.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
	SenderName   string `json:"sender_name"`
}

type SmtpSender struct {
	config SmtpConfig
}

func NewSmtpSender(config SmtpConfig) SmtpSender {
	return SmtpSender{config: config}
}

func (s SmtpSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	ctx, span := tracer.Start(ctx, "mailer:Send")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("%s <%s>", s.config.SenderName, s.config.EmailAddress)
	mail.To = []string{to}
	mail.Subject = subject
	mail.HTML = []byte(htmlBody)

	addr := fmt.Sprintf("%s:%d", s.config.Server, s.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", s.config.EmailAddress, s.config.Password, s.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}

// Mailer renders and sends every email the service produces.
type Mailer struct {
	sender   Sender
	renderer Renderer
	// public base url the confirm/unsubscribe links point back at
	baseUrl string
}

func NewMailer(sender Sender, renderer Renderer, baseUrl string) *Mailer {
	return &Mailer{
		sender:   sender,
		renderer: renderer,
		baseUrl:  strings.TrimRight(baseUrl, "/"),
	}
}

func (m *Mailer) confirmUrl(token string) string {
	return fmt.Sprintf("%s/confirm?token=%s", m.baseUrl, token)
}

func (m *Mailer) unsubscribeUrl(token string) string {
	return fmt.Sprintf("%s/unsubscribe?token=%s", m.baseUrl, token)
}

// SendConfirmation delivers the sign-up confirmation link.
func (m *Mailer) SendConfirmation(ctx context.Context, account *store.Account) error {
	body, err := m.renderer.Render("confirmation.html", map[string]any{
		"Name":      account.Name,
		"ActionUrl": m.confirmUrl(account.ConfirmToken),
	})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, account.Email, "Lembretes configurados com sucesso.", body)
}

// SendDueReminder delivers the open-assignment listing.
func (m *Mailer) SendDueReminder(ctx context.Context, account *store.Account, summary DueSummary) error {
	body, err := m.renderer.Render("assignments.html", map[string]any{
		"Name":           account.Name,
		"ByDiscipline":   summary.ByDiscipline,
		"UnsubscribeUrl": m.unsubscribeUrl(account.UnsubscribeToken),
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Você possui %d atividades pendentes.", summary.Total)
	return m.sender.Send(ctx, account.Email, subject, body)
}

// SendNothingLeft tells the account it has run out of pending
// assignments.
func (m *Mailer) SendNothingLeft(ctx context.Context, account *store.Account) error {
	body, err := m.renderer.Render("nothing_left.html", map[string]any{
		"Name":           account.Name,
		"UnsubscribeUrl": m.unsubscribeUrl(account.UnsubscribeToken),
	})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, account.Email, "Não existem mais atividades pendentes.", body)
}
