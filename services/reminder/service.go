// Package reminder is the service core: it logs into the portal on
// behalf of registered accounts, reconciles what it scrapes into the
// store and emails due-date reminders.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"avaremind-backend/lib/scrapers/ava"
	"avaremind-backend/lib/scrapers/ava/driver"
	"avaremind-backend/lib/sessionpool"
	"avaremind-backend/lib/timezone"
	"avaremind-backend/services/reminder/store"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/reminder")

// ErrCredentialRejected means the portal itself refused the account's
// credentials. The wrapped message is the portal's verbatim error and
// is safe to show the registrant.
var ErrCredentialRejected = errors.New("portal rejected credentials")

type PortalConfig struct {
	BaseUrl string `json:"base_url"`
	// zero values fall back to the driver defaults
	TimeoutSeconds    int `json:"timeout_seconds"`
	TabTimeoutSeconds int `json:"tab_timeout_seconds"`
}

type Options struct {
	Portal PortalConfig
	// public base url embedded in confirm/unsubscribe links
	PublicBaseUrl string
	PoolCapacity  int
	// bounded wait for a pool slot; an exhausted pool skips the
	// account until the next cycle
	AcquireTimeout time.Duration
}

type Service struct {
	store      *store.Store
	pool       *sessionpool.Pool
	mailer     *Mailer
	reconciler *Reconciler
	selector   *Selector
	options    Options

	// scraped discipline rows per account, so the daily assignment
	// refresh does not re-walk the menu the monthly refresh already
	// parsed
	disciplineCache *expirable.LRU[uint, []store.Discipline]
}

func NewService(s *store.Store, mailer *Mailer, options Options) *Service {
	if options.AcquireTimeout <= 0 {
		options.AcquireTimeout = time.Minute * 5
	}
	return &Service{
		store:           s,
		pool:            sessionpool.New(options.PoolCapacity),
		mailer:          mailer,
		reconciler:      NewReconciler(s),
		selector:        NewSelector(s),
		options:         options,
		disciplineCache: expirable.NewLRU[uint, []store.Discipline](2048, nil, time.Hour*24),
	}
}

func (s *Service) driverOptions() driver.Options {
	return driver.Options{
		BaseUrl:    s.options.Portal.BaseUrl,
		Timeout:    time.Duration(s.options.Portal.TimeoutSeconds) * time.Second,
		TabTimeout: time.Duration(s.options.Portal.TabTimeoutSeconds) * time.Second,
	}
}

// withPortal runs fn against a logged-in portal client, holding a pool
// slot for the whole session.
func (s *Service) withPortal(ctx context.Context, ra, senha string, fn func(ctx context.Context, client *ava.Client) error) error {
	return s.pool.With(ctx, s.options.AcquireTimeout, func(ctx context.Context) error {
		return driver.WithSession(ctx, s.driverOptions(), func(session *driver.Session) error {
			client := ava.NewClient(session)
			result, err := client.Login(ctx, ra, senha)
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("%w: %s", ErrCredentialRejected, result.Message)
			}
			return fn(ctx, client)
		})
	})
}

// CheckCredentials logs into the portal with the given credentials and
// reports the portal's own verdict. Used at registration time, before
// any account row exists.
func (s *Service) CheckCredentials(ctx context.Context, ra, senha string) (ava.LoginResult, error) {
	ctx, span := tracer.Start(ctx, "service:CheckCredentials")
	defer span.End()

	var result ava.LoginResult
	err := s.pool.With(ctx, s.options.AcquireTimeout, func(ctx context.Context) error {
		return driver.WithSession(ctx, s.driverOptions(), func(session *driver.Session) error {
			var err error
			result, err = ava.NewClient(session).Login(ctx, ra, senha)
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential check failed")
		return ava.LoginResult{}, err
	}
	return result, nil
}

// RegisterAccount checks the credentials against the portal, creates
// the pending account and sends the confirmation email. A portal
// rejection surfaces as ErrCredentialRejected wrapping the portal's
// message; nothing is persisted in that case.
func (s *Service) RegisterAccount(ctx context.Context, emailAddr, name, ra, senha string) (*store.Account, error) {
	ctx, span := tracer.Start(ctx, "service:RegisterAccount")
	defer span.End()

	result, err := s.CheckCredentials(ctx, ra, senha)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrCredentialRejected, result.Message)
	}

	confirmToken, err := random.String(32)
	if err != nil {
		return nil, err
	}
	unsubscribeToken, err := random.String(32)
	if err != nil {
		return nil, err
	}

	account := &store.Account{
		Email:            emailAddr,
		Name:             name,
		RA:               ra,
		Senha:            senha,
		ConfirmToken:     confirmToken,
		UnsubscribeToken: unsubscribeToken,
		Profile:          &store.Profile{RegisterDate: timezone.Now()},
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create account")
		return nil, err
	}
	if err := s.mailer.SendConfirmation(ctx, account); err != nil {
		slog.WarnContext(ctx, "failed to send confirmation email",
			"email", account.Email, "err", err)
	}
	return account, nil
}

// ConfirmAccount redeems a confirmation token.
func (s *Service) ConfirmAccount(ctx context.Context, token string) (*store.Account, error) {
	return s.store.ConfirmAccount(ctx, token)
}

// Unsubscribe deletes the account behind the token.
func (s *Service) Unsubscribe(ctx context.Context, token string) error {
	return s.store.DeleteAccountByUnsubscribeToken(ctx, token)
}

// RefreshDisciplines scrapes the account's discipline menu, classifies
// each discipline's delivery mode and reconciles the lot. Returns a
// short human status line, the way the admin CLI reports it.
func (s *Service) RefreshDisciplines(ctx context.Context, account store.Account) (string, error) {
	ctx, span := tracer.Start(ctx, "service:RefreshDisciplines")
	defer span.End()
	span.SetAttributes(attribute.String("ra", account.RA))

	var snapshots []ava.DisciplineSnapshot
	err := s.withPortal(ctx, account.RA, account.Senha, func(ctx context.Context, client *ava.Client) error {
		var err error
		snapshots, err = client.ListDisciplines(ctx)
		if err != nil {
			return err
		}
		for i := range snapshots {
			mode, err := client.ClassifyDeliveryMode(ctx, snapshots[i].IdCurso, snapshots[i].CodCurso)
			if err != nil {
				return err
			}
			snapshots[i].Mode = mode
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discipline refresh failed")
		return "", err
	}

	disciplines, err := s.reconciler.ReconcileDisciplines(ctx, account.ID, snapshots)
	if err != nil {
		return "", err
	}
	s.disciplineCache.Add(account.ID, disciplines)
	return fmt.Sprintf("%d disciplines synced for %s", len(disciplines), account.RA), nil
}

// accountDisciplines resolves the account's online disciplines, from
// cache when the monthly refresh already ran, otherwise from the
// store.
func (s *Service) accountDisciplines(ctx context.Context, account store.Account) ([]store.Discipline, error) {
	if cached, ok := s.disciplineCache.Get(account.ID); ok {
		return cached, nil
	}
	return s.store.ListAccountDisciplines(ctx, account.ID)
}

// RefreshAssignments scrapes the activity tab of every online
// discipline the account has and reconciles assignments plus
// completion statuses. On-site disciplines have no activity tab and
// are skipped.
func (s *Service) RefreshAssignments(ctx context.Context, account store.Account) (string, error) {
	ctx, span := tracer.Start(ctx, "service:RefreshAssignments")
	defer span.End()
	span.SetAttributes(attribute.String("ra", account.RA))

	disciplines, err := s.accountDisciplines(ctx, account)
	if err != nil {
		return "", err
	}
	var online []store.Discipline
	for _, discipline := range disciplines {
		if discipline.Mode == string(ava.ModeOnline) {
			online = append(online, discipline)
		}
	}
	if len(online) == 0 {
		return fmt.Sprintf("no online disciplines for %s", account.RA), nil
	}

	scraped := map[uint][]ava.AssignmentSnapshot{}
	err = s.withPortal(ctx, account.RA, account.Senha, func(ctx context.Context, client *ava.Client) error {
		for _, discipline := range online {
			snapshots, err := client.ListAssignments(ctx, discipline.IdCurso, discipline.CodCurso)
			if err != nil {
				return err
			}
			scraped[discipline.ID] = snapshots
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment refresh failed")
		return "", err
	}

	total := 0
	for disciplineID, snapshots := range scraped {
		if err := s.reconciler.ReconcileAssignments(ctx, account.ID, disciplineID, snapshots); err != nil {
			return "", err
		}
		total += len(snapshots)
	}
	return fmt.Sprintf("%d assignments synced for %s", total, account.RA), nil
}

// RefreshAllAccounts runs the given per-account refresh over every
// confirmed account. Failures are logged and isolated; one account's
// bad day never blocks the rest.
func (s *Service) RefreshAllAccounts(ctx context.Context, refresh func(ctx context.Context, account store.Account) (string, error)) (string, error) {
	accounts, err := s.store.ListConfirmedAccounts(ctx)
	if err != nil {
		return "", err
	}

	ok := 0
	for _, account := range accounts {
		status, err := refresh(ctx, account)
		if err != nil {
			slog.WarnContext(ctx, "account refresh failed",
				"ra", account.RA, "err", err)
			continue
		}
		slog.InfoContext(ctx, "account refreshed", "status", status)
		ok++
	}
	return fmt.Sprintf("refreshed %d/%d accounts", ok, len(accounts)), nil
}

// SendDueNotifications walks every confirmed account, emails the ones
// whose open assignments hit a reminder day and then expires anything
// with less than one whole day left. Expiry runs last so a final-day
// reminder still goes out before the row disappears.
func (s *Service) SendDueNotifications(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "service:SendDueNotifications")
	defer span.End()

	accounts, err := s.store.ListConfirmedAccounts(ctx)
	if err != nil {
		return "", err
	}

	notified := 0
	hadAssignments := map[uint]bool{}
	for _, account := range accounts {
		count, err := s.store.CountAssignmentsForAccount(ctx, account.ID)
		if err == nil {
			hadAssignments[account.ID] = count > 0
		}

		summary, err := s.selector.SelectDue(ctx, account.ID)
		if err != nil {
			slog.WarnContext(ctx, "due selection failed",
				"ra", account.RA, "err", err)
			continue
		}
		if !summary.Notify {
			continue
		}
		if err := s.mailer.SendDueReminder(ctx, &account, summary); err != nil {
			slog.WarnContext(ctx, "failed to send reminder",
				"email", account.Email, "err", err)
			continue
		}
		notified++
	}

	expired, err := s.reconciler.ExpireAssignments(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "expiry failed")
		return "", err
	}

	// accounts the expiry sweep just emptied get told there is nothing
	// pending anymore
	if expired > 0 {
		for _, account := range accounts {
			if !hadAssignments[account.ID] {
				continue
			}
			count, err := s.store.CountAssignmentsForAccount(ctx, account.ID)
			if err != nil || count > 0 {
				continue
			}
			if err := s.mailer.SendNothingLeft(ctx, &account); err != nil {
				slog.WarnContext(ctx, "failed to send all-done notice",
					"email", account.Email, "err", err)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("notified", notified),
		attribute.Int64("expired", expired),
	)
	return fmt.Sprintf("notified %d accounts, expired %d assignments", notified, expired), nil
}
