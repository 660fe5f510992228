package reminder

import (
	"context"
	"time"

	"avaremind-backend/lib/timezone"
	"avaremind-backend/services/reminder/store"

	"go.opentelemetry.io/otel/attribute"
)

// reminderDays are the exact whole-day distances that trigger an
// email. 4 days out is silent, 3 is not; there is no "within N days"
// smearing.
var reminderDays = map[int]struct{}{
	30: {}, 15: {}, 7: {}, 3: {}, 2: {}, 1: {},
}

// AssignmentDueInfo is one open assignment as it appears in a
// reminder email.
type AssignmentDueInfo struct {
	Name  string
	Type  string
	DueAt time.Time
	// whole days between now and DueAt, floored
	Days int
}

// DueSummary is the outcome of one selection pass for one account:
// the full open-assignment listing grouped by discipline name, plus
// whether anything in it hit a reminder day.
type DueSummary struct {
	ByDiscipline map[string][]AssignmentDueInfo
	Notify       bool
	Total        int
}

// Selector decides who gets a reminder this cycle.
type Selector struct {
	store *store.Store
}

func NewSelector(s *store.Store) *Selector {
	return &Selector{store: s}
}

// SelectDue builds the account's due summary. One qualifying
// assignment is enough to mark the whole account for a single
// notification; the email then carries the complete listing.
func (s *Selector) SelectDue(ctx context.Context, accountID uint) (DueSummary, error) {
	ctx, span := tracer.Start(ctx, "selector:SelectDue")
	defer span.End()

	rows, err := s.store.ListOpenAssignments(ctx, accountID)
	if err != nil {
		return DueSummary{}, err
	}

	now := timezone.Now()
	summary := DueSummary{ByDiscipline: map[string][]AssignmentDueInfo{}}
	for _, row := range rows {
		days := timezone.WholeDaysUntil(now, row.DueAt)
		if days < 0 {
			continue
		}
		summary.ByDiscipline[row.DisciplineName] = append(
			summary.ByDiscipline[row.DisciplineName],
			AssignmentDueInfo{
				Name:  row.Name,
				Type:  row.Type,
				DueAt: row.DueAt,
				Days:  days,
			},
		)
		summary.Total++
		if _, hit := reminderDays[days]; hit {
			summary.Notify = true
		}
	}

	span.SetAttributes(
		attribute.Int("total", summary.Total),
		attribute.Bool("notify", summary.Notify),
	)
	return summary, nil
}
