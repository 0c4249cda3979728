// Package summary rolls case and report activity up into windowed counts
// for the supervisor dashboard.
package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/monitoring"
)

// Aggregator is the store surface computing counts over a window.
type Aggregator interface {
	Window(ctx context.Context, from, to time.Time) (*models.DailySummary, error)
}

// Service validates summary query inputs.
type Service struct {
	aggregator Aggregator
	now        func() time.Time
}

// NewService creates the summary service.
func NewService(aggregator Aggregator) *Service {
	return &Service{aggregator: aggregator, now: time.Now}
}

// Daily returns the roll-up for one UTC day. An empty date means today.
func (s *Service) Daily(ctx context.Context, date string) (*models.DailySummary, error) {
	var day time.Time
	if date == "" {
		day = s.now().UTC().Truncate(24 * time.Hour)
	} else {
		var err error
		day, err = time.ParseInLocation(monitoring.DateLayout, date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: bad date %q", monitoring.ErrInvalidPeriod, date)
		}
	}
	return s.aggregator.Window(ctx, day, day.Add(24*time.Hour))
}

// Range returns the roll-up over an inclusive day range.
func (s *Service) Range(ctx context.Context, fromDate, toDate string) (*models.DailySummary, error) {
	from, err := time.ParseInLocation(monitoring.DateLayout, fromDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad from_date %q", monitoring.ErrInvalidPeriod, fromDate)
	}
	to, err := time.ParseInLocation(monitoring.DateLayout, toDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad to_date %q", monitoring.ErrInvalidPeriod, toDate)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to_date %s before from_date %s",
			monitoring.ErrInvalidPeriod, toDate, fromDate)
	}
	return s.aggregator.Window(ctx, from, to.Add(24*time.Hour))
}
