// Package monitoring serves the dashboard read model: the paginated case
// list and the per-case unified timeline. It only reads; all writes happen
// in the pipeline.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
)

// DateLayout is the wire form of the from_date/to_date query parameters.
const DateLayout = "2006-01-02"

// Page size bounds applied to list queries.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Validation errors, mapped to 422 by the API.
var (
	ErrInvalidPeriod = errors.New("invalid monitoring period")
	ErrInvalidStatus = errors.New("unknown case status")
)

// Reader is the read-model store surface.
type Reader interface {
	ListCases(ctx context.Context, filter models.CaseFilter) (*models.CaseList, error)
	Timeline(ctx context.Context, caseID string) ([]models.TimelineEntry, error)
}

// Cases loads the case row for the detail view.
type Cases interface {
	Get(ctx context.Context, caseID string) (*models.Case, error)
}

// Checkpoints lists the reaction checkpoints for the detail view.
type Checkpoints interface {
	ListForCase(ctx context.Context, caseID string) ([]models.ReactionCheckpoint, error)
}

// Service validates query inputs and assembles read-model responses.
type Service struct {
	reader      Reader
	cases       Cases
	checkpoints Checkpoints
	now         func() time.Time
}

// NewService creates the monitoring service.
func NewService(reader Reader, cases Cases, checkpoints Checkpoints) *Service {
	return &Service{reader: reader, cases: cases, checkpoints: checkpoints, now: time.Now}
}

// ListQuery carries the raw case-list query parameters.
type ListQuery struct {
	Page     int
	PageSize int
	Status   string
	FromDate string
	ToDate   string
}

// ListCases validates the query and returns one page of cases ordered by
// latest activity. With no dates given, the window defaults to today.
func (s *Service) ListCases(ctx context.Context, q ListQuery) (*models.CaseList, error) {
	filter := models.CaseFilter{
		Page: q.Page,
		Size: q.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Size < 1 {
		filter.Size = DefaultPageSize
	}
	if filter.Size > MaxPageSize {
		filter.Size = MaxPageSize
	}

	if q.Status != "" {
		status := lifecycle.Status(q.Status)
		if !lifecycle.Valid(status) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, q.Status)
		}
		filter.Status = &status
	}

	from, to, err := s.resolveWindow(q.FromDate, q.ToDate)
	if err != nil {
		return nil, err
	}
	filter.From = &from
	filter.To = &to

	return s.reader.ListCases(ctx, filter)
}

// resolveWindow converts the inclusive [from_date, to_date] day range into
// a UTC half-open instant window. A single-sided range collapses onto the
// given day; absent dates default to today.
func (s *Service) resolveWindow(fromDate, toDate string) (time.Time, time.Time, error) {
	if fromDate == "" && toDate == "" {
		today := s.now().UTC().Truncate(24 * time.Hour)
		return today, today.Add(24 * time.Hour), nil
	}
	if fromDate == "" {
		fromDate = toDate
	}
	if toDate == "" {
		toDate = fromDate
	}

	from, err := time.ParseInLocation(DateLayout, fromDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: bad from_date %q", ErrInvalidPeriod, fromDate)
	}
	to, err := time.ParseInLocation(DateLayout, toDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: bad to_date %q", ErrInvalidPeriod, toDate)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to_date %s before from_date %s",
			ErrInvalidPeriod, toDate, fromDate)
	}
	return from, to.Add(24 * time.Hour), nil
}

// CaseDetail loads a case with its unified chronological timeline and
// reaction checkpoints. Unknown case ids surface store.ErrNotFound.
func (s *Service) CaseDetail(ctx context.Context, caseID string) (*models.CaseDetail, error) {
	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	timeline, err := s.reader.Timeline(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("loading timeline for %s: %w", caseID, err)
	}
	checkpoints, err := s.checkpoints.ListForCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoints for %s: %w", caseID, err)
	}
	return &models.CaseDetail{
		Case:        *c,
		Timeline:    timeline,
		Checkpoints: checkpoints,
	}, nil
}
