package reminder

import (
	"context"
	"log/slog"
	"time"

	"avaremind-backend/lib/timezone"
)

// scrapeHour is the portal-local hour the scheduled work runs at. The
// portal is quietest in the early morning.
const scrapeHour = 5

// StartDaemons launches the scheduled work: discipline refresh on the
// 10th, 20th and 30th of each month, assignment refresh and the due
// check daily. All of it funnels through one queue so scheduled runs
// never overlap each other.
func (s *Service) StartDaemons(ctx context.Context) {
	queue := NewQueue(ctx, 8)
	go s.disciplineRefreshDaemon(ctx, queue)
	go s.assignmentRefreshDaemon(ctx, queue)
	go s.dueCheckDaemon(ctx, queue)
}

func (s *Service) disciplineRefreshDaemon(ctx context.Context, queue *Queue) {
	slog.InfoContext(ctx, "start daemon", "task", "refresh disciplines on days 10/20/30")

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := timezone.Now()
			if now.Hour() != scrapeHour {
				continue
			}
			if !(now.Day() == 10 || now.Day() == 20 || now.Day() == 30) {
				continue
			}
			queue.Submit(func(ctx context.Context) error {
				status, err := s.RefreshAllAccounts(ctx, s.RefreshDisciplines)
				if err != nil {
					slog.ErrorContext(ctx, "discipline refresh run failed", "err", err)
					return err
				}
				slog.InfoContext(ctx, "discipline refresh run done", "status", status)
				return nil
			})
		}
	}
}

func (s *Service) assignmentRefreshDaemon(ctx context.Context, queue *Queue) {
	slog.InfoContext(ctx, "start daemon", "task", "refresh assignments daily")

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if timezone.Now().Hour() != scrapeHour {
				continue
			}
			queue.Submit(func(ctx context.Context) error {
				status, err := s.RefreshAllAccounts(ctx, s.RefreshAssignments)
				if err != nil {
					slog.ErrorContext(ctx, "assignment refresh run failed", "err", err)
					return err
				}
				slog.InfoContext(ctx, "assignment refresh run done", "status", status)
				return nil
			})
		}
	}
}

func (s *Service) dueCheckDaemon(ctx context.Context, queue *Queue) {
	slog.InfoContext(ctx, "start daemon", "task", "send due notifications daily")

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// one hour after the assignment refresh so the listing
			// reflects today's scrape
			if timezone.Now().Hour() != scrapeHour+1 {
				continue
			}
			queue.Submit(func(ctx context.Context) error {
				status, err := s.SendDueNotifications(ctx)
				if err != nil {
					slog.ErrorContext(ctx, "due notification run failed", "err", err)
					return err
				}
				slog.InfoContext(ctx, "due notification run done", "status", status)
				return nil
			})
		}
	}
}
