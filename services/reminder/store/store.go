package store

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("services/reminder/store")

// ErrNotFound wraps gorm's record-not-found so callers outside this
// package never import gorm to match on it.
var ErrNotFound = errors.New("record not found")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(Models()...)
}

// Transaction runs fn against a transactional view of the store. The
// reconciler wraps each per-account batch in one of these.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Store) CreateAccount(ctx context.Context, account *Account) error {
	return s.db.WithContext(ctx).Create(account).Error
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

// GetAccountByConfirmToken looks up the pending account behind the
// token. Burned tokens are stored as the empty string, so an empty
// incoming token must never match anything.
func (s *Store) GetAccountByConfirmToken(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	var account Account
	err := s.db.WithContext(ctx).Where("confirm_token = ?", token).First(&account).Error
	if err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

// ConfirmAccount flips the account behind the token to confirmed and
// burns the token.
func (s *Store) ConfirmAccount(ctx context.Context, token string) (*Account, error) {
	account, err := s.GetAccountByConfirmToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	err = s.db.WithContext(ctx).Model(account).Updates(map[string]any{
		"confirmed":     true,
		"confirmed_at":  &now,
		"confirm_token": "",
	}).Error
	if err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteAccountByUnsubscribeToken removes the account behind the token
// along with its profile, discipline links and completion rows. Shared
// discipline and assignment rows stay for the other accounts.
func (s *Store) DeleteAccountByUnsubscribeToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrNotFound
	}
	return s.Transaction(ctx, func(tx *Store) error {
		var account Account
		err := tx.db.Where("unsubscribe_token = ?", token).First(&account).Error
		if err != nil {
			return translate(err)
		}
		if err := tx.db.Where("account_id = ?", account.ID).Delete(&CompletionStatus{}).Error; err != nil {
			return err
		}
		if err := tx.db.Where("account_id = ?", account.ID).Delete(&Profile{}).Error; err != nil {
			return err
		}
		if err := tx.db.Model(&account).Association("Disciplines").Clear(); err != nil {
			return err
		}
		return tx.db.Delete(&account).Error
	})
}

// ListAccountDisciplines returns the disciplines associated with the
// account.
func (s *Store) ListAccountDisciplines(ctx context.Context, accountID uint) ([]Discipline, error) {
	var disciplines []Discipline
	err := s.db.WithContext(ctx).
		Model(&Account{ID: accountID}).
		Association("Disciplines").
		Find(&disciplines)
	return disciplines, err
}

func (s *Store) ListConfirmedAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.db.WithContext(ctx).
		Preload("Disciplines").
		Where("confirmed = ?", true).
		Find(&accounts).Error
	return accounts, err
}

// UpsertDiscipline finds or creates the discipline row by portal id.
// A racing duplicate insert lands on the unique index, reads back the
// winner and applies this scrape's fields as an update. Either way the
// model's ID is filled in on return.
func (s *Store) UpsertDiscipline(ctx context.Context, discipline *Discipline) error {
	ctx, span := tracer.Start(ctx, "store:UpsertDiscipline")
	defer span.End()
	span.SetAttributes(attribute.Int64("idcurso", discipline.IdCurso))

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(discipline)
	if res.Error != nil {
		span.RecordError(res.Error)
		span.SetStatus(codes.Error, "insert failed")
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var existing Discipline
	err := s.db.WithContext(ctx).Where("id_curso = ?", discipline.IdCurso).First(&existing).Error
	if err != nil {
		return translate(err)
	}
	err = s.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"cod_curso": discipline.CodCurso,
		"name":      discipline.Name,
	}).Error
	if err != nil {
		return err
	}
	discipline.ID = existing.ID
	return nil
}

// SetDisciplineMode records the delivery mode once classification ran.
func (s *Store) SetDisciplineMode(ctx context.Context, disciplineID uint, mode string) error {
	return s.db.WithContext(ctx).
		Model(&Discipline{ID: disciplineID}).
		Update("mode", mode).Error
}

// LinkAccountDiscipline associates the account with the discipline.
// Re-linking an existing pair is a no-op.
func (s *Store) LinkAccountDiscipline(ctx context.Context, accountID, disciplineID uint) error {
	return s.db.WithContext(ctx).
		Model(&Account{ID: accountID}).
		Association("Disciplines").
		Append(&Discipline{ID: disciplineID})
}

// UpsertAssignment finds or creates the assignment by portal code and
// refreshes its mutable fields on rediscovery. Same race handling as
// UpsertDiscipline.
func (s *Store) UpsertAssignment(ctx context.Context, assignment *Assignment) error {
	ctx, span := tracer.Start(ctx, "store:UpsertAssignment")
	defer span.End()
	span.SetAttributes(attribute.Int64("codigo", assignment.Codigo))

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(assignment)
	if res.Error != nil {
		span.RecordError(res.Error)
		span.SetStatus(codes.Error, "insert failed")
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var existing Assignment
	err := s.db.WithContext(ctx).Where("codigo = ?", assignment.Codigo).First(&existing).Error
	if err != nil {
		return translate(err)
	}
	err = s.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"name":      assignment.Name,
		"type":      assignment.Type,
		"starts_at": assignment.StartsAt,
		"due_at":    assignment.DueAt,
	}).Error
	if err != nil {
		return err
	}
	assignment.ID = existing.ID
	return nil
}

// UpsertCompletionStatus writes the observed status for one (account,
// assignment) pair, updating in place if the pair already has a row.
func (s *Store) UpsertCompletionStatus(ctx context.Context, accountID, assignmentID uint, status Status) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&CompletionStatus{
			AccountID:    accountID,
			AssignmentID: assignmentID,
			Status:       status,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&CompletionStatus{}).
		Where("account_id = ? AND assignment_id = ?", accountID, assignmentID).
		Update("status", status).Error
}

// ExpireAssignmentsBefore deletes every assignment due before the
// cutoff, taking its completion rows with it. Returns how many
// assignments went.
func (s *Store) ExpireAssignmentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "store:ExpireAssignmentsBefore")
	defer span.End()

	var expired int64
	err := s.Transaction(ctx, func(tx *Store) error {
		err := tx.db.
			Where("assignment_id IN (?)",
				tx.db.Model(&Assignment{}).Select("id").Where("due_at < ?", cutoff)).
			Delete(&CompletionStatus{}).Error
		if err != nil {
			return err
		}
		res := tx.db.Where("due_at < ?", cutoff).Delete(&Assignment{})
		expired = res.RowsAffected
		return res.Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "expiry failed")
		return 0, err
	}
	span.SetAttributes(attribute.Int64("expired", expired))
	return expired, nil
}

// OpenAssignment is one row of the notification query: an assignment
// the account still has open, with its discipline's display name.
type OpenAssignment struct {
	AssignmentID   uint
	Codigo         int64
	Name           string
	Type           string
	DueAt          time.Time
	DisciplineName string
}

// ListOpenAssignments returns the account's open assignments ordered
// by due date, joined with their discipline names.
func (s *Store) ListOpenAssignments(ctx context.Context, accountID uint) ([]OpenAssignment, error) {
	var rows []OpenAssignment
	err := s.db.WithContext(ctx).
		Table("assignments").
		Select("assignments.id AS assignment_id, assignments.codigo, assignments.name, assignments.type, assignments.due_at, disciplines.name AS discipline_name").
		Joins("JOIN completion_statuses ON completion_statuses.assignment_id = assignments.id").
		Joins("JOIN disciplines ON disciplines.id = assignments.discipline_id").
		Where("completion_statuses.account_id = ? AND completion_statuses.status = ?", accountID, StatusOpen).
		Order("assignments.due_at ASC").
		Scan(&rows).Error
	return rows, err
}

// CountAssignmentsForAccount counts completion rows for the account,
// open or not. Zero after a refresh means there is nothing left to
// remind about.
func (s *Store) CountAssignmentsForAccount(ctx context.Context, accountID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&CompletionStatus{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	return count, err
}
