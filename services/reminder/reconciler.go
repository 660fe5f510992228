package reminder

import (
	"context"
	"time"

	"avaremind-backend/lib/scrapers/ava"
	"avaremind-backend/lib/timezone"
	"avaremind-backend/services/reminder/store"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Reconciler folds scrape snapshots into the store. Each per-account
// batch runs in one transaction so a failed scrape never leaves half a
// refresh behind.
type Reconciler struct {
	store *store.Store
}

func NewReconciler(s *store.Store) *Reconciler {
	return &Reconciler{store: s}
}

// ReconcileDisciplines upserts every snapshot and associates the
// account with each resulting row. Returns the persisted rows, IDs
// filled in, in snapshot order.
func (r *Reconciler) ReconcileDisciplines(ctx context.Context, accountID uint, snapshots []ava.DisciplineSnapshot) ([]store.Discipline, error) {
	ctx, span := tracer.Start(ctx, "reconciler:ReconcileDisciplines")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(snapshots)))

	disciplines := make([]store.Discipline, 0, len(snapshots))
	err := r.store.Transaction(ctx, func(tx *store.Store) error {
		for _, snapshot := range snapshots {
			discipline := store.Discipline{
				IdCurso:  snapshot.IdCurso,
				CodCurso: snapshot.CodCurso,
				Name:     snapshot.Name,
				Mode:     string(snapshot.Mode),
			}
			if err := tx.UpsertDiscipline(ctx, &discipline); err != nil {
				return err
			}
			if snapshot.Mode != ava.ModeUnknown {
				if err := tx.SetDisciplineMode(ctx, discipline.ID, string(snapshot.Mode)); err != nil {
					return err
				}
			}
			if err := tx.LinkAccountDiscipline(ctx, accountID, discipline.ID); err != nil {
				return err
			}
			disciplines = append(disciplines, discipline)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discipline reconcile failed")
		return nil, err
	}
	return disciplines, nil
}

// ReconcileAssignments upserts every snapshot under the discipline and
// records the account's completion status for each. An unknown portal
// status word aborts the batch before any row is committed.
func (r *Reconciler) ReconcileAssignments(ctx context.Context, accountID, disciplineID uint, snapshots []ava.AssignmentSnapshot) error {
	ctx, span := tracer.Start(ctx, "reconciler:ReconcileAssignments")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(snapshots)))

	err := r.store.Transaction(ctx, func(tx *store.Store) error {
		for _, snapshot := range snapshots {
			status, err := store.ParseStatus(snapshot.Status)
			if err != nil {
				return err
			}
			assignment := store.Assignment{
				Codigo:       snapshot.Codigo,
				Name:         snapshot.Name,
				Type:         string(snapshot.Type),
				StartsAt:     snapshot.StartsAt,
				DueAt:        snapshot.DueAt,
				DisciplineID: disciplineID,
			}
			if err := tx.UpsertAssignment(ctx, &assignment); err != nil {
				return err
			}
			if err := tx.UpsertCompletionStatus(ctx, accountID, assignment.ID, status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment reconcile failed")
		return err
	}
	return nil
}

// ExpireAssignments drops every assignment with less than one whole
// day left, cascading completion rows. Runs after notifications so a
// last-day reminder still goes out.
func (r *Reconciler) ExpireAssignments(ctx context.Context) (int64, error) {
	cutoff := timezone.Now().Add(time.Hour * 24)
	return r.store.ExpireAssignmentsBefore(ctx, cutoff)
}
