package reminder_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"avaremind-backend/lib/scrapers/ava/avatest"
	"avaremind-backend/lib/timezone"
	"avaremind-backend/services/reminder"
	"avaremind-backend/services/reminder/store"

	"github.com/stretchr/testify/require"
)

type capturedEmail struct {
	To      string
	Subject string
	Body    string
}

type captureSender struct {
	mu     sync.Mutex
	emails []capturedEmail
}

func (c *captureSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emails = append(c.emails, capturedEmail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (c *captureSender) all() []capturedEmail {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedEmail(nil), c.emails...)
}

func createPortalAccount(t *testing.T, s *store.Store, email, ra, senha string) *store.Account {
	t.Helper()
	account := &store.Account{
		Email: email, Name: "Aluno", RA: ra, Senha: senha,
		Confirmed:        true,
		UnsubscribeToken: "unsub-" + ra,
	}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}

func newService(t *testing.T, name, portalUrl string) (*reminder.Service, *store.Store, *captureSender) {
	t.Helper()
	s := setupStore(t, name)

	sender := &captureSender{}
	renderer, err := reminder.NewTemplateRenderer()
	require.NoError(t, err)
	mailer := reminder.NewMailer(sender, renderer, "https://avaremind.example.com")

	service := reminder.NewService(s, mailer, reminder.Options{
		Portal: reminder.PortalConfig{
			BaseUrl:           portalUrl,
			TimeoutSeconds:    2,
			TabTimeoutSeconds: 1,
		},
		PublicBaseUrl: "https://avaremind.example.com",
		PoolCapacity:  1,
	})
	return service, s, sender
}

// full cycle: scrape disciplines, classify modes, scrape assignments,
// then notify the account whose quiz lands exactly three days out.
func TestServiceEndToEnd(t *testing.T) {
	dueDate := timezone.Now().AddDate(0, 0, 3)
	portal := avatest.NewPortal(avatest.Account{
		RA:    "123456",
		Senha: "hunter2",
		Disciplines: []avatest.Discipline{
			{
				IdCurso:  100,
				CodCurso: 200,
				Name:     "CÁLCULO NUMÉRICO",
				Online:   true,
				Assignments: []avatest.Assignment{
					{
						Name:   "Questionário 1",
						Codigo: 555,
						Status: "Aberta",
						Start:  timezone.Now().Format("02/01/2006"),
						Due:    dueDate.Format("02/01/2006"),
					},
				},
			},
			{IdCurso: 101, CodCurso: 201, Name: "ESTÁGIO", Online: false},
		},
	})
	server := portal.Server()
	defer server.Close()

	service, s, sender := newService(t, "end-to-end", server.URL)
	ctx := context.Background()
	account := createPortalAccount(t, s, "alice@example.com", "123456", "hunter2")

	status, err := service.RefreshDisciplines(ctx, *account)
	require.NoError(t, err)
	require.Equal(t, "2 disciplines synced for 123456", status)

	status, err = service.RefreshAssignments(ctx, *account)
	require.NoError(t, err)
	require.Equal(t, "1 assignments synced for 123456", status)

	status, err = service.SendDueNotifications(ctx)
	require.NoError(t, err)
	require.Equal(t, "notified 1 accounts, expired 0 assignments", status)

	emails := sender.all()
	require.Len(t, emails, 1)
	require.Equal(t, "alice@example.com", emails[0].To)
	require.Equal(t, "Você possui 1 atividades pendentes.", emails[0].Subject)
	require.Contains(t, emails[0].Body, "Questionário 1")
	require.Contains(t, emails[0].Body, "Cálculo Numérico")
	require.Contains(t, emails[0].Body, "faltam 3 dias")
	require.Contains(t, emails[0].Body, "unsubscribe?token=unsub-123456")
}

func TestRefreshAllAccountsIsolatesFailures(t *testing.T) {
	portal := avatest.NewPortal(avatest.Account{
		RA:    "123456",
		Senha: "hunter2",
		Disciplines: []avatest.Discipline{
			{IdCurso: 100, CodCurso: 200, Name: "CÁLCULO", Online: true},
		},
	})
	server := portal.Server()
	defer server.Close()

	service, s, _ := newService(t, "isolate-failures", server.URL)
	ctx := context.Background()

	createPortalAccount(t, s, "alice@example.com", "123456", "hunter2")
	createPortalAccount(t, s, "mallory@example.com", "666666", "wrong")

	status, err := service.RefreshAllAccounts(ctx, service.RefreshDisciplines)
	require.NoError(t, err)
	require.Equal(t, "refreshed 1/2 accounts", status)
}

func TestRegisterAccountRejectedByPortal(t *testing.T) {
	portal := avatest.NewPortal(avatest.Account{RA: "123456", Senha: "hunter2"})
	portal.LoginErrorText = "RA ou senha incorretos."
	server := portal.Server()
	defer server.Close()

	service, s, sender := newService(t, "register-rejected", server.URL)
	ctx := context.Background()

	_, err := service.RegisterAccount(ctx, "alice@example.com", "Alice", "123456", "wrong")
	require.ErrorIs(t, err, reminder.ErrCredentialRejected)
	require.Contains(t, err.Error(), "RA ou senha incorretos.")

	// nothing persisted, nothing sent
	_, err = s.GetAccountByEmail(ctx, "alice@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Empty(t, sender.all())
}

func TestRegisterConfirmUnsubscribeFlow(t *testing.T) {
	portal := avatest.NewPortal(avatest.Account{RA: "123456", Senha: "hunter2"})
	server := portal.Server()
	defer server.Close()

	service, s, sender := newService(t, "register-flow", server.URL)
	ctx := context.Background()

	account, err := service.RegisterAccount(ctx, "alice@example.com", "Alice", "123456", "hunter2")
	require.NoError(t, err)
	require.False(t, account.Confirmed)
	require.NotEmpty(t, account.ConfirmToken)
	require.NotEmpty(t, account.UnsubscribeToken)

	emails := sender.all()
	require.Len(t, emails, 1)
	require.Equal(t, "alice@example.com", emails[0].To)
	require.Contains(t, emails[0].Body, "confirm?token="+account.ConfirmToken)

	confirmed, err := service.ConfirmAccount(ctx, account.ConfirmToken)
	require.NoError(t, err)
	require.Equal(t, account.ID, confirmed.ID)

	accounts, err := s.ListConfirmedAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	require.NoError(t, service.Unsubscribe(ctx, account.UnsubscribeToken))
	accounts, err = s.ListConfirmedAccounts(ctx)
	require.NoError(t, err)
	require.Empty(t, accounts)
}

func TestCheckCredentials(t *testing.T) {
	portal := avatest.NewPortal(avatest.Account{RA: "123456", Senha: "hunter2"})
	server := portal.Server()
	defer server.Close()

	service, _, _ := newService(t, "check-credentials", server.URL)
	ctx := context.Background()

	result, err := service.CheckCredentials(ctx, "123456", "hunter2")
	require.NoError(t, err)
	require.True(t, result.Success)

	result, err = service.CheckCredentials(ctx, "123456", "nope")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Message)
}

// an assignment four days out is real, open and listed, but four is
// not a reminder day, so nobody gets email this cycle.
func TestDueReminderSkipsQuietDays(t *testing.T) {
	dueDate := timezone.Now().AddDate(0, 0, 4)
	portal := avatest.NewPortal(avatest.Account{
		RA:    "123456",
		Senha: "hunter2",
		Disciplines: []avatest.Discipline{
			{
				IdCurso:  100,
				CodCurso: 200,
				Name:     "CÁLCULO",
				Online:   true,
				Assignments: []avatest.Assignment{
					{
						Name:   "Questionário",
						Codigo: 555,
						Status: "aberta",
						Start:  timezone.Now().Format("02/01/2006"),
						Due:    dueDate.Format("02/01/2006"),
					},
				},
			},
		},
	})
	server := portal.Server()
	defer server.Close()

	service, s, sender := newService(t, "quiet-days", server.URL)
	ctx := context.Background()
	account := createPortalAccount(t, s, "alice@example.com", "123456", "hunter2")

	_, err := service.RefreshDisciplines(ctx, *account)
	require.NoError(t, err)
	_, err = service.RefreshAssignments(ctx, *account)
	require.NoError(t, err)

	status, err := service.SendDueNotifications(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(status, "notified 0 accounts"))
	require.Empty(t, sender.all())
}

// once the sweep expires an account's last assignment, the account
// gets the all-done notice instead of a reminder.
func TestExpiryEmptiesAccountAndNotifies(t *testing.T) {
	portal := avatest.NewPortal(avatest.Account{
		RA:    "123456",
		Senha: "hunter2",
		Disciplines: []avatest.Discipline{
			{
				IdCurso:  100,
				CodCurso: 200,
				Name:     "CÁLCULO",
				Online:   true,
				Assignments: []avatest.Assignment{
					{
						Name:   "Última atividade",
						Codigo: 555,
						Status: "aberta",
						Start:  timezone.Now().AddDate(0, 0, -7).Format("02/01/2006"),
						// due today at 23:59:59, inside the expiry window
						Due: timezone.Now().Format("02/01/2006"),
					},
				},
			},
		},
	})
	server := portal.Server()
	defer server.Close()

	service, s, sender := newService(t, "expiry-notice", server.URL)
	ctx := context.Background()
	account := createPortalAccount(t, s, "alice@example.com", "123456", "hunter2")

	_, err := service.RefreshDisciplines(ctx, *account)
	require.NoError(t, err)
	_, err = service.RefreshAssignments(ctx, *account)
	require.NoError(t, err)

	status, err := service.SendDueNotifications(ctx)
	require.NoError(t, err)
	require.Equal(t, "notified 0 accounts, expired 1 assignments", status)

	emails := sender.all()
	require.Len(t, emails, 1)
	require.Equal(t, "Não existem mais atividades pendentes.", emails[0].Subject)
}
