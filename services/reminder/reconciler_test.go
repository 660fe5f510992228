package reminder_test

import (
	"context"
	"testing"
	"time"

	"avaremind-backend/lib/scrapers/ava"
	"avaremind-backend/lib/testutil"
	"avaremind-backend/lib/timezone"
	"avaremind-backend/services/reminder"
	"avaremind-backend/services/reminder/store"

	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, name string) *store.Store {
	db, cleanup := testutil.SetupDB(t, name, store.Models()...)
	t.Cleanup(cleanup)
	return store.New(db)
}

func createAccount(t *testing.T, s *store.Store, email, ra string) *store.Account {
	t.Helper()
	account := &store.Account{
		Email: email, Name: "Aluno", RA: ra, Senha: "x", Confirmed: true,
	}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}

func TestReconcileDisciplinesIsIdempotent(t *testing.T) {
	s := setupStore(t, "reconcile-disciplines")
	r := reminder.NewReconciler(s)
	ctx := context.Background()
	account := createAccount(t, s, "alice@example.com", "111")

	snapshots := []ava.DisciplineSnapshot{
		{IdCurso: 100, CodCurso: 200, Name: "Cálculo I", Mode: ava.ModeOnline},
		{IdCurso: 101, CodCurso: 201, Name: "Estágio", Mode: ava.ModeOnsite},
	}

	first, err := r.ReconcileDisciplines(ctx, account.ID, snapshots)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := r.ReconcileDisciplines(ctx, account.ID, snapshots)
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.Equal(t, first[0].ID, second[0].ID)
	require.Equal(t, first[1].ID, second[1].ID)

	accounts, err := s.ListConfirmedAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Len(t, accounts[0].Disciplines, 2)
}

func TestReconcileDisciplinesSharesRowsAcrossAccounts(t *testing.T) {
	s := setupStore(t, "reconcile-shared")
	r := reminder.NewReconciler(s)
	ctx := context.Background()

	alice := createAccount(t, s, "alice@example.com", "111")
	bob := createAccount(t, s, "bob@example.com", "222")
	snapshot := []ava.DisciplineSnapshot{
		{IdCurso: 100, CodCurso: 200, Name: "Cálculo I", Mode: ava.ModeOnline},
	}

	fromAlice, err := r.ReconcileDisciplines(ctx, alice.ID, snapshot)
	require.NoError(t, err)
	fromBob, err := r.ReconcileDisciplines(ctx, bob.ID, snapshot)
	require.NoError(t, err)
	require.Equal(t, fromAlice[0].ID, fromBob[0].ID)
}

func TestReconcileAssignmentsMapsStatuses(t *testing.T) {
	s := setupStore(t, "reconcile-assignments")
	r := reminder.NewReconciler(s)
	ctx := context.Background()
	account := createAccount(t, s, "alice@example.com", "111")

	disciplines, err := r.ReconcileDisciplines(ctx, account.ID, []ava.DisciplineSnapshot{
		{IdCurso: 100, CodCurso: 200, Name: "Cálculo I", Mode: ava.ModeOnline},
	})
	require.NoError(t, err)
	disciplineID := disciplines[0].ID

	due := timezone.Now().AddDate(0, 0, 10)
	err = r.ReconcileAssignments(ctx, account.ID, disciplineID, []ava.AssignmentSnapshot{
		{Name: "Questionário 1", Codigo: 555, Status: "Aberta", Type: ava.TypeQuiz, DueAt: due},
		{Name: "Fórum", Codigo: 556, Status: "ENCERRADO", Type: ava.TypeForum, DueAt: due},
	})
	require.NoError(t, err)

	rows, err := s.ListOpenAssignments(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 555, rows[0].Codigo)

	// rediscovery flips the status in place
	err = r.ReconcileAssignments(ctx, account.ID, disciplineID, []ava.AssignmentSnapshot{
		{Name: "Questionário 1", Codigo: 555, Status: "Corrigida", Type: ava.TypeQuiz, DueAt: due},
	})
	require.NoError(t, err)
	rows, err = s.ListOpenAssignments(ctx, account.ID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestReconcileAssignmentsRejectsUnknownStatus(t *testing.T) {
	s := setupStore(t, "reconcile-unknown-status")
	r := reminder.NewReconciler(s)
	ctx := context.Background()
	account := createAccount(t, s, "alice@example.com", "111")

	disciplines, err := r.ReconcileDisciplines(ctx, account.ID, []ava.DisciplineSnapshot{
		{IdCurso: 100, CodCurso: 200, Name: "Cálculo I", Mode: ava.ModeOnline},
	})
	require.NoError(t, err)

	err = r.ReconcileAssignments(ctx, account.ID, disciplines[0].ID, []ava.AssignmentSnapshot{
		{Name: "Atividade", Codigo: 555, Status: "em revisão", Type: ava.TypeQuiz, DueAt: timezone.Now().AddDate(0, 0, 5)},
	})
	require.ErrorIs(t, err, store.ErrUnknownStatus)

	// the batch aborted before any row landed
	count, err := s.CountAssignmentsForAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestExpireAssignmentsBoundary(t *testing.T) {
	s := setupStore(t, "expire-boundary")
	r := reminder.NewReconciler(s)
	ctx := context.Background()
	account := createAccount(t, s, "alice@example.com", "111")

	disciplines, err := r.ReconcileDisciplines(ctx, account.ID, []ava.DisciplineSnapshot{
		{IdCurso: 100, CodCurso: 200, Name: "Cálculo I", Mode: ava.ModeOnline},
	})
	require.NoError(t, err)

	now := timezone.Now()
	err = r.ReconcileAssignments(ctx, account.ID, disciplines[0].ID, []ava.AssignmentSnapshot{
		{Name: "Quase vencida", Codigo: 555, Status: "aberta", Type: ava.TypeQuiz, DueAt: now.Add(time.Hour*23 + time.Minute*59)},
		{Name: "Ainda longe", Codigo: 556, Status: "aberta", Type: ava.TypeQuiz, DueAt: now.Add(time.Hour * 25)},
	})
	require.NoError(t, err)

	expired, err := r.ExpireAssignments(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, expired)

	rows, err := s.ListOpenAssignments(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 556, rows[0].Codigo)
}
