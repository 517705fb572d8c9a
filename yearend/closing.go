/*
Package yearend runs the annual "close the books" update of a plan year.

PURPOSE:
  For every member of a plan year the close recomputes the year-scoped
  stamp (employee type, zero-contribution reason, points, eligibility,
  years-in-plan credit, certificate date) and the ending balance snapshot,
  then persists all of it as one atomic unit.

STATE MACHINE:
  Pending -> Running -> Completed | Failed

  The Run value is threaded through the pipeline and persisted only at the
  start (Running) and terminal transition. Preview runs never persist it.

ATOMICITY:
  All writes of a committed close happen inside one plan.Repository.WithTx.
  Any failure, including a beginning-balance inconsistency or a cancelled
  context, rolls every write back and marks the run Failed. The caller
  receives a *plan.ClosingError carrying the run ID and the number of
  members written before the failure.

WHAT-IF:
  Preview and Commit (whatif.go) are the same pipeline with commit=false and
  commit=true. A preview reads the live store and never writes.

NOT IN SCOPE:
  The close does not append allocation transactions to the ledger. The
  projected allocations are reported, the balance snapshot records the
  ledger-derived ending balance.

SEE ALSO:
  - classify.go: Per-member stamp rules
  - whatif.go: Simulation parameters and totals
  - vesting/aggregator.go: Strict summaries used for snapshots
*/
package yearend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/profit-sharing/calendar"
	"github.com/warp/profit-sharing/eligibility"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/vesting"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// ClosingResult is returned by every close, committed or not.
type ClosingResult struct {
	Run     Run
	Params  Params
	Period  calendar.Period
	Totals  Totals
	Points  PointSummary
	Members []MemberOutcome
}

// MemberOutcome is the close of one member.
type MemberOutcome struct {
	MemberID plan.MemberID
	Name     string

	// Before is nil when the record did not exist and is created by the close.
	Before       *plan.YearRecord
	Record       plan.YearRecord
	Contributing bool

	Summary         plan.MemberYearSummary
	Allocation      Allocation
	ProjectedEnding decimal.Decimal
}

// Created reports whether the close creates the member's year record.
func (o MemberOutcome) Created() bool { return o.Before == nil }

// PointSummary aggregates the points stamped by the close.
type PointSummary struct {
	TotalPoints     int
	Contributing    int
	NonContributing int
	ByEmployeeType  map[plan.EmployeeType]int
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store       plan.Store
	Aggregator  *vesting.Aggregator
	Eligibility *eligibility.Evaluator
	Rules       Rules
	Log         logrus.FieldLogger

	Now   func() time.Time
	NewID func() string
}

// NewService wires a closing service over a store.
func NewService(st plan.Store, agg *vesting.Aggregator, rules Rules, log logrus.FieldLogger) *Service {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	rules = rules.WithDefaults()
	return &Service{
		Store:       st,
		Aggregator:  agg,
		Eligibility: eligibility.NewEvaluator(st, rules.Criteria, log),
		Rules:       rules,
		Log:         log,
		Now:         func() time.Time { return time.Now().UTC() },
		NewID:       func() string { return "close-" + uuid.NewString() },
	}
}

// Close runs the year-end close of a plan year. With commit=false nothing is
// written, not even the run row.
func (s *Service) Close(ctx context.Context, year int, params Params, commit bool) (*ClosingResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	run, err := NewRun(s.NewID(), year, commit, s.Now()).Start(s.Now())
	if err != nil {
		return nil, err
	}
	log := s.Log.WithFields(logrus.Fields{"year": year, "run_id": run.ID, "commit": commit})

	if !commit {
		res, err := s.evaluate(ctx, s.Store, year, params)
		if err != nil {
			return nil, fmt.Errorf("preview year-end close %d: %w", year, err)
		}
		res.Run, err = run.Complete(len(res.Members), s.Now())
		if err != nil {
			return nil, err
		}
		log.WithField("members", len(res.Members)).Debug("year-end preview computed")
		return res, nil
	}

	if err := s.Store.SaveClosingRun(ctx, run.ClosingRun); err != nil {
		return nil, fmt.Errorf("record closing run: %w", err)
	}
	log.Info("year-end close started")

	var (
		res       *ClosingResult
		processed int
	)
	txErr := s.Store.WithTx(ctx, func(w plan.Writer) error {
		var err error
		res, err = s.evaluate(ctx, w, year, params)
		if err != nil {
			return err
		}
		for i, o := range res.Members {
			if err := s.Aggregator.CheckBatch(ctx, i); err != nil {
				return err
			}
			if err := w.SaveYearRecord(ctx, o.Record); err != nil {
				return fmt.Errorf("save year record %s: %w", o.MemberID, err)
			}
			processed++
		}
		for _, o := range res.Members {
			if o.Summary.MemberID == "" {
				continue
			}
			if err := w.SaveBalanceSnapshot(ctx, snapshotOf(o.Summary, year)); err != nil {
				return fmt.Errorf("save balance snapshot %s: %w", o.MemberID, err)
			}
		}
		return ctx.Err()
	})

	if txErr != nil {
		failed := run.Fail(processed, txErr, s.Now())
		// Record the failure even when ctx was the cause.
		if err := s.Store.SaveClosingRun(context.WithoutCancel(ctx), failed.ClosingRun); err != nil {
			log.WithError(err).Error("could not record failed closing run")
		}
		log.WithError(txErr).WithField("members", processed).Error("year-end close rolled back")
		return nil, &plan.ClosingError{Year: year, RunID: run.ID, MembersProcessed: processed, Err: txErr}
	}

	done, err := run.Complete(processed, s.Now())
	if err != nil {
		return nil, err
	}
	if err := s.Store.SaveClosingRun(ctx, done.ClosingRun); err != nil {
		return nil, fmt.Errorf("record completed run: %w", err)
	}
	res.Run = done
	log.WithFields(logrus.Fields{
		"members":  processed,
		"points":   res.Points.TotalPoints,
		"duration": done.Duration(),
	}).Info("year-end close completed")
	return res, nil
}

// Runs lists the committed closing runs of a year, newest first.
func (s *Service) Runs(ctx context.Context, year int) ([]plan.ClosingRun, error) {
	return s.Store.ClosingRuns(ctx, year)
}

// =============================================================================
// PIPELINE
// =============================================================================

// evaluate computes the full close against r without writing.
func (s *Service) evaluate(ctx context.Context, r plan.Reader, year int, params Params) (*ClosingResult, error) {
	period, err := calendar.NewResolver(r).Period(ctx, year)
	if err != nil {
		return nil, err
	}
	agg := s.Aggregator.WithReader(r)

	members, err := r.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	current, err := recordsByMember(ctx, r, year)
	if err != nil {
		return nil, err
	}
	prior, err := recordsByMember(ctx, r, year-1)
	if err != nil {
		return nil, err
	}
	txs, err := r.Transactions(ctx, plan.TransactionFilter{FromYear: year, ToYear: year})
	if err != nil {
		return nil, fmt.Errorf("load transactions %d: %w", year, err)
	}
	active := make(map[plan.MemberID]bool)
	distributed := make(map[plan.MemberID]bool)
	for _, tx := range txs {
		active[tx.MemberID] = true
		if tx.Code.IsDistribution() {
			distributed[tx.MemberID] = true
		}
	}
	beginning, err := agg.GetBeginningBalances(ctx, year-1)
	if err != nil {
		return nil, err
	}

	// Stamp every member of the year's population.
	res := &ClosingResult{Params: params, Period: period}
	var staged []plan.YearRecord
	for i, m := range members {
		if err := agg.CheckBatch(ctx, i); err != nil {
			return nil, err
		}
		rec, exists := current[m.ID]
		if !exists && !active[m.ID] && beginning[m.ID].IsZero() && !m.Status.IsActive() {
			continue
		}
		if !exists {
			rec = plan.YearRecord{MemberID: m.ID, Year: year}
		}
		in := stampInput{Member: m, Current: rec, Distributed: distributed[m.ID], Period: period}
		if p, ok := prior[m.ID]; ok {
			in.Prior = &p
		}
		st := s.Rules.stamp(in, s.Eligibility.Qualifies(m, rec, period))

		o := MemberOutcome{MemberID: m.ID, Name: m.FullName, Record: st.Record, Contributing: st.Contributing}
		if exists {
			before := rec
			o.Before = &before
		}
		res.Members = append(res.Members, o)
		staged = append(staged, st.Record)
	}

	// Summaries see the staged stamp so vesting uses the credited service.
	rows, err := agg.WithReader(stagedReader{Reader: r, year: year, records: staged}).
		StrictYearSummaries(ctx, year, vesting.Filter{})
	if err != nil {
		return nil, err
	}
	byMember := make(map[plan.MemberID]plan.MemberYearSummary, len(rows))
	for _, row := range rows {
		byMember[row.MemberID] = row
	}

	res.Points.ByEmployeeType = make(map[plan.EmployeeType]int)
	for i := range res.Members {
		o := &res.Members[i]
		row, ok := byMember[o.MemberID]
		if ok {
			o.Summary = row
		}
		o.Allocation = params.allocate(o.Record.Points, o.Contributing, row.BeginningBalance)
		o.ProjectedEnding = row.EndingBalance.Add(o.Allocation.Total())
		res.Totals.add(*o)

		res.Points.TotalPoints += o.Record.Points
		res.Points.ByEmployeeType[o.Record.EmployeeType]++
		if o.Contributing {
			res.Points.Contributing++
		} else {
			res.Points.NonContributing++
		}
	}
	return res, nil
}

func snapshotOf(row plan.MemberYearSummary, year int) plan.BalanceSnapshot {
	return plan.BalanceSnapshot{
		MemberID: row.MemberID,
		Year:     year,
		Ending:   row.EndingBalance,
		Vested:   row.VestedAmount,
	}
}

func recordsByMember(ctx context.Context, r plan.Reader, year int) (map[plan.MemberID]plan.YearRecord, error) {
	recs, err := r.YearRecords(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("load year records %d: %w", year, err)
	}
	result := make(map[plan.MemberID]plan.YearRecord, len(recs))
	for _, rec := range recs {
		result[rec.MemberID] = rec
	}
	return result, nil
}

// stagedReader overlays the year records a close is about to write.
type stagedReader struct {
	plan.Reader
	year    int
	records []plan.YearRecord
}

func (s stagedReader) YearRecords(ctx context.Context, year int) ([]plan.YearRecord, error) {
	if year != s.year {
		return s.Reader.YearRecords(ctx, year)
	}
	return append([]plan.YearRecord(nil), s.records...), nil
}
