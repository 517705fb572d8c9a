/*
Package report wires the year-end engine into externally callable operations.

PURPOSE:
  This is the thin orchestration layer used by the HTTP API and the CLI. It
  owns no business rules: it builds the aggregator, evaluator, closing
  service and renderer from one Options value and exposes the four
  operations callers need.

OPERATIONS:
  ComputeYearSummaries(year, filter)      -> Result[SummaryRows]
  RunYearEndClose(year, commit)           -> *yearend.ClosingResult
  RenderBreakdownReport(year, request)    -> paginated text
  GetEligibility(year)                    -> Result[EligibleRows] + counts

SEE ALSO:
  - result.go: Generic result envelope and capabilities
  - api/handlers.go: HTTP surface
*/
package report

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/profit-sharing/breakdown"
	"github.com/warp/profit-sharing/eligibility"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/vesting"
	"github.com/warp/profit-sharing/yearend"
)

// Options are the plan rules the service is built from.
type Options struct {
	Schedule          vesting.Schedule
	Rules             yearend.Rules
	DefaultParams     yearend.Params
	Layout            breakdown.Options
	StrictEligibility bool
}

// DefaultOptions returns the legacy plan rules.
func DefaultOptions() Options {
	return Options{
		Schedule: vesting.DefaultSchedule(),
		Rules:    yearend.DefaultRules(),
		Layout:   breakdown.DefaultOptions(0, time.Time{}),
	}
}

type Service struct {
	Store       plan.Store
	Aggregator  *vesting.Aggregator
	Eligibility *eligibility.Evaluator
	Closing     *yearend.Service
	Options     Options
	Log         logrus.FieldLogger
	Now         func() time.Time
}

// NewService builds every engine component over one store.
func NewService(st plan.Store, opts Options, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Layout.Ranks == nil {
		opts.Layout.Ranks = breakdown.DefaultRankTable()
	}

	agg := vesting.NewAggregator(st, opts.Layout.Ranks, log.WithField("component", "aggregator"))
	if !opts.Schedule.IsZero() {
		agg.Schedule = opts.Schedule
	}
	opts.Rules = opts.Rules.WithDefaults()
	agg.RetirementAge = opts.Rules.RetirementAge

	ev := eligibility.NewEvaluator(st, opts.Rules.Criteria, log.WithField("component", "eligibility"))
	ev.Strict = opts.StrictEligibility

	closing := yearend.NewService(st, agg, opts.Rules, log.WithField("component", "closing"))
	closing.Eligibility = ev

	return &Service{
		Store:       st,
		Aggregator:  agg,
		Eligibility: ev,
		Closing:     closing,
		Options:     opts,
		Log:         log,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// ComputeYearSummaries returns one summary row per member of the year.
func (s *Service) ComputeYearSummaries(ctx context.Context, year int, filter vesting.Filter) (Result[SummaryRows], error) {
	rows, err := s.Aggregator.GetYearSummaries(ctx, year, filter)
	if err != nil {
		return Result[SummaryRows]{}, err
	}
	return Result[SummaryRows]{
		Name:        "year-summaries",
		Year:        year,
		GeneratedAt: s.Now(),
		Rows:        SummaryRows(rows),
	}, nil
}

// RunYearEndClose closes a year with the configured default parameters.
func (s *Service) RunYearEndClose(ctx context.Context, year int, commit bool) (*yearend.ClosingResult, error) {
	return s.Closing.Close(ctx, year, s.Options.DefaultParams, commit)
}

// WhatIf previews or commits a close under caller-chosen parameters.
func (s *Service) WhatIf(ctx context.Context, year int, params yearend.Params, commit bool) (*yearend.ClosingResult, error) {
	if commit {
		return s.Closing.Commit(ctx, year, params)
	}
	return s.Closing.Preview(ctx, year, params)
}

// BreakdownRequest narrows the breakdown report population.
type BreakdownRequest struct {
	Store       *int
	ActiveOnly  bool
	Under21Only bool
}

// RenderBreakdownReport aggregates and renders the store breakdown report.
func (s *Service) RenderBreakdownReport(ctx context.Context, year int, req BreakdownRequest) (string, error) {
	rows, err := s.Aggregator.GetYearSummaries(ctx, year, vesting.Filter{
		Store:       req.Store,
		ActiveOnly:  req.ActiveOnly,
		Under21Only: req.Under21Only,
	})
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	layout := s.Options.Layout
	layout.Year = year
	layout.RunDate = s.Now()
	if layout.LinesPerPage == 0 {
		layout.LinesPerPage = breakdown.DefaultLinesPerPage
	}
	return breakdown.Render(rows, layout)
}

// EligibilityReport carries the eligible members and the control counts.
type EligibilityReport struct {
	Result[EligibleRows]
	CountRead     int  `json:"countRead"`
	CountExcluded int  `json:"countExcluded"`
	CountWritten  int  `json:"countWritten"`
	Anomaly       bool `json:"anomaly"`
}

// GetEligibility evaluates participation for a year.
func (s *Service) GetEligibility(ctx context.Context, year int) (*EligibilityReport, error) {
	res, err := s.Eligibility.Evaluate(ctx, year)
	if err != nil {
		return nil, err
	}
	return &EligibilityReport{
		Result: Result[EligibleRows]{
			Name:        "eligibility",
			Year:        year,
			GeneratedAt: s.Now(),
			Rows:        EligibleRows(res.Eligible),
		},
		CountRead:     res.CountRead,
		CountExcluded: res.CountExcluded,
		CountWritten:  res.CountWritten,
		Anomaly:       res.Anomaly,
	}, nil
}

// ClosingRuns lists the committed runs of a year, newest first.
func (s *Service) ClosingRuns(ctx context.Context, year int) ([]plan.ClosingRun, error) {
	return s.Closing.Runs(ctx, year)
}
