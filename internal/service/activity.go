// Package service contains the business logic layer.
//
// This file implements the activity report shown on the usage page. It reads
// the request log and is never consulted by admission.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/google/uuid"
)

// MaxActivityDays bounds the usage history window.
const MaxActivityDays = 90

// ActivityService defines read operations over the request log.
type ActivityService interface {
	// DailyUsage returns one entry per day for the last days days, oldest
	// first, including days without requests.
	DailyUsage(ctx context.Context, userID uuid.UUID, days int) ([]domain.DailyUsage, error)
}

type activityService struct {
	reader UsageReader
	ledger *QuotaLedger
	logger *slog.Logger
}

// NewActivityService creates a new ActivityService.
func NewActivityService(reader UsageReader, ledger *QuotaLedger, logger *slog.Logger) ActivityService {
	return &activityService{
		reader: reader,
		ledger: ledger,
		logger: logger,
	}
}

func (s *activityService) DailyUsage(ctx context.Context, userID uuid.UUID, days int) ([]domain.DailyUsage, error) {
	const op = "activity.daily_usage"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "user id is required")
	}
	if days < 1 || days > MaxActivityDays {
		return nil, domain.Errorf(domain.EINVALID, op, "days must be between 1 and %d", MaxActivityDays)
	}

	loc := s.ledger.Location()
	today := s.ledger.Today()
	first := today.AddDate(0, 0, -(days - 1))
	since := localMidnight(first, loc)

	counts, err := s.reader.CountRequestsByDay(ctx, userID, loc, since)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count requests")
	}

	byDay := make(map[string]int64, len(counts))
	for _, c := range counts {
		byDay[c.Day.Format(dayKey)] = c.Requests
	}

	usage := make([]domain.DailyUsage, 0, days)
	for d := first; !d.After(today); d = d.AddDate(0, 0, 1) {
		usage = append(usage, domain.DailyUsage{
			Day:      d,
			Requests: byDay[d.Format(dayKey)],
		})
	}
	return usage, nil
}

const dayKey = "2006-01-02"

// localMidnight converts a civil date back to the instant it starts in loc.
func localMidnight(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
}
