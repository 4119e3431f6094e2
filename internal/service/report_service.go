package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nurpe/marketplace/internal/config"
	"github.com/nurpe/marketplace/internal/model"
)

type ReportReader interface {
	ProfessionEarnings(ctx context.Context, from, to time.Time, limit int) ([]model.ProfessionEarnings, error)
	ClientPayments(ctx context.Context, from, to time.Time, limit int) ([]model.ClientPayments, error)
}

type ExcelGenerator interface {
	Generate(report model.EarningsReport) ([]byte, error)
}

// NoLimit asks a report reader for every ranked row.
const NoLimit = 0

type ReportService struct {
	repo         ReportReader
	excel        ExcelGenerator
	defaultLimit int
	maxLimit     int
}

type ReportInput struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	// EndIsDate marks a date-only end that covers the whole calendar day.
	EndIsDate bool
	// Limit of zero selects the configured default.
	Limit int
}

func NewReportService(repo ReportReader, excel ExcelGenerator, cfg *config.Config) *ReportService {
	return &ReportService{
		repo:         repo,
		excel:        excel,
		defaultLimit: cfg.Reports.DefaultLimit,
		maxLimit:     cfg.Reports.MaxLimit,
	}
}

// BestProfession returns at most one entry: the profession that earned the
// most in the period.
func (s *ReportService) BestProfession(ctx context.Context, input ReportInput) ([]model.ProfessionEarnings, error) {
	from, to, err := periodBounds(input)
	if err != nil {
		return nil, err
	}
	return s.repo.ProfessionEarnings(ctx, from, to, 1)
}

func (s *ReportService) BestClients(ctx context.Context, input ReportInput) ([]model.ClientPayments, error) {
	from, to, err := periodBounds(input)
	if err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit == 0 {
		limit = s.defaultLimit
	}
	if limit < 0 || limit > s.maxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, s.maxLimit)
	}
	return s.repo.ClientPayments(ctx, from, to, limit)
}

// ExportEarnings builds a workbook with the full, unlimited profession and
// client rankings of the period.
func (s *ReportService) ExportEarnings(ctx context.Context, input ReportInput) (*FileResult, error) {
	from, to, err := periodBounds(input)
	if err != nil {
		return nil, err
	}

	professions, err := s.repo.ProfessionEarnings(ctx, from, to, NoLimit)
	if err != nil {
		return nil, err
	}
	clients, err := s.repo.ClientPayments(ctx, from, to, NoLimit)
	if err != nil {
		return nil, err
	}

	report := model.EarningsReport{
		PeriodStart: input.PeriodStart,
		PeriodEnd:   input.PeriodEnd,
		Professions: professions,
		Clients:     clients,
	}
	content, err := s.excel.Generate(report)
	if err != nil {
		return nil, err
	}

	return &FileResult{
		FileName: fmt.Sprintf("earnings-%s-%s.xlsx", report.PeriodStart.Format("20060102"), report.PeriodEnd.Format("20060102")),
		Content:  content,
	}, nil
}

// periodBounds turns an inclusive period into a half-open [from, to) range.
// A date-only end is read as the whole calendar day, any other end as an
// inclusive timestamp.
func periodBounds(input ReportInput) (time.Time, time.Time, error) {
	start, end := input.PeriodStart, input.PeriodEnd
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start and end are required", ErrInvalidInput)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start must be before or equal to end", ErrInvalidInput)
	}

	if input.EndIsDate {
		return start, end.AddDate(0, 0, 1), nil
	}
	return start, end.Add(time.Microsecond), nil
}
