package reminder_test

import (
	"context"
	"testing"
	"time"

	"avaremind-backend/services/reminder"
	"avaremind-backend/services/reminder/store"

	"github.com/stretchr/testify/require"
)

func TestMailerRendersDueReminder(t *testing.T) {
	sender := &captureSender{}
	renderer, err := reminder.NewTemplateRenderer()
	require.NoError(t, err)
	mailer := reminder.NewMailer(sender, renderer, "https://avaremind.example.com/")

	account := &store.Account{
		Email:            "alice@example.com",
		Name:             "Alice",
		UnsubscribeToken: "tok123",
	}
	due := time.Date(2026, time.September, 4, 23, 59, 59, 0, time.UTC)
	summary := reminder.DueSummary{
		ByDiscipline: map[string][]reminder.AssignmentDueInfo{
			"Cálculo I": {
				{Name: "Questionário 1", Type: "quiz", DueAt: due, Days: 3},
				{Name: "Entrega final", Type: "quiz", DueAt: due, Days: 0},
			},
		},
		Notify: true,
		Total:  2,
	}

	require.NoError(t, mailer.SendDueReminder(context.Background(), account, summary))

	emails := sender.all()
	require.Len(t, emails, 1)
	require.Equal(t, "Você possui 2 atividades pendentes.", emails[0].Subject)
	require.Contains(t, emails[0].Body, "Alice")
	require.Contains(t, emails[0].Body, "Cálculo I")
	require.Contains(t, emails[0].Body, "04/09/2026")
	require.Contains(t, emails[0].Body, "faltam 3 dias")
	require.Contains(t, emails[0].Body, "vence hoje")
	require.Contains(t, emails[0].Body, "https://avaremind.example.com/unsubscribe?token=tok123")
}

func TestMailerRendersConfirmation(t *testing.T) {
	sender := &captureSender{}
	renderer, err := reminder.NewTemplateRenderer()
	require.NoError(t, err)
	mailer := reminder.NewMailer(sender, renderer, "https://avaremind.example.com")

	account := &store.Account{
		Email:        "alice@example.com",
		Name:         "Alice",
		ConfirmToken: "confirm123",
	}
	require.NoError(t, mailer.SendConfirmation(context.Background(), account))

	emails := sender.all()
	require.Len(t, emails, 1)
	require.Equal(t, "Lembretes configurados com sucesso.", emails[0].Subject)
	require.Contains(t, emails[0].Body, "https://avaremind.example.com/confirm?token=confirm123")
}
