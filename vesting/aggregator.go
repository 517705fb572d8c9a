/*
Package vesting computes vesting ratios and member-year balance summaries.

PURPOSE:
  This is the numeric core of the engine. Given a plan year it replays the
  append-only ledger into per-member beginning balances, signed buckets
  (contributions, earnings, forfeitures, distributions, beneficiary
  allocations), ending balances and vested amounts.

BALANCE EQUATION:
  Ending = Beginning + Contributions + Earnings + Forfeitures
           + Distributions + BeneficiaryAllocation

  The sign of each term comes only from the profit-code bucket table in
  plan/profitcode.go. Vested = round2(Ending × ratio).

READ-ONLY:
  Every operation here is side-effect free. The same inputs always produce
  the same rows in the same order (sorted by member ID), so runs can be
  repeated or split across disjoint member sets.

CANCELLATION:
  Population-wide loops check ctx between batches of BatchSize members.

RECONCILIATION:
  When the prior year was closed, its persisted ending balances are compared
  with the ledger-derived beginning balances. A mismatch is attached to the
  row as a warning, or returned as an error by StrictYearSummaries (used by
  the year-end close).

SEE ALSO:
  - schedule.go: Years-of-service vesting schedule
  - plan/profitcode.go: Bucket table
  - yearend/closing.go: Strict consumer
*/
package vesting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/profit-sharing/calendar"
	"github.com/warp/profit-sharing/plan"
)

const (
	DefaultBatchSize     = 500
	DefaultRetirementAge = 65
)

// Ranker assigns the employment-category sort rank used by reports.
type Ranker interface {
	Rank(department, classification int) int
}

// Filter narrows the population of a summary run.
type Filter struct {
	Store       *int
	ActiveOnly  bool
	Under21Only bool
	MemberIDs   []plan.MemberID
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	Reader        plan.Reader
	Calendar      *calendar.Resolver
	Schedule      Schedule // used when the repository holds no vesting steps
	Ranks         Ranker
	RetirementAge int
	BatchSize     int
	Log           logrus.FieldLogger
}

// NewAggregator wires an aggregator with the default schedule.
func NewAggregator(r plan.Reader, ranks Ranker, log logrus.FieldLogger) *Aggregator {
	return &Aggregator{
		Reader:        r,
		Calendar:      calendar.NewResolver(r),
		Schedule:      DefaultSchedule(),
		Ranks:         ranks,
		RetirementAge: DefaultRetirementAge,
		BatchSize:     DefaultBatchSize,
		Log:           log,
	}
}

// WithReader returns a copy reading from r (e.g. a transaction view).
func (a *Aggregator) WithReader(r plan.Reader) *Aggregator {
	cp := *a
	cp.Reader = r
	cp.Calendar = calendar.NewResolver(r)
	return &cp
}

// schedule prefers the persisted schedule and falls back to the configured one.
func (a *Aggregator) schedule(ctx context.Context) (Schedule, error) {
	steps, err := a.Reader.VestingSteps(ctx)
	if err != nil {
		return Schedule{}, fmt.Errorf("load vesting schedule: %w", err)
	}
	if len(steps) == 0 {
		if a.Schedule.IsZero() {
			return DefaultSchedule(), nil
		}
		return a.Schedule, nil
	}
	return NewSchedule(steps)
}

// =============================================================================
// VESTING RATIOS
// =============================================================================

// GetVestingRatios returns each member's vesting ratio for a plan year as
// of a date. Beneficiaries, deceased members and members at or past
// retirement age are fully vested.
func (a *Aggregator) GetVestingRatios(ctx context.Context, year int, asOf time.Time) (map[plan.MemberID]decimal.Decimal, error) {
	sched, err := a.schedule(ctx)
	if err != nil {
		return nil, err
	}
	members, err := a.Reader.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	records, err := a.recordsByMember(ctx, year)
	if err != nil {
		return nil, err
	}

	ratios := make(map[plan.MemberID]decimal.Decimal, len(members))
	for i, m := range members {
		if err := a.CheckBatch(ctx, i); err != nil {
			return nil, err
		}
		ratios[m.ID] = a.ratioFor(sched, m, records[m.ID], asOf)
	}
	return ratios, nil
}

func (a *Aggregator) ratioFor(sched Schedule, m plan.Member, rec plan.YearRecord, asOf time.Time) decimal.Decimal {
	if m.IsBeneficiary() || m.Status == plan.StatusDeceased {
		return decimal.NewFromInt(1)
	}
	if a.retirementAge() > 0 && calendar.AgeAt(m.DateOfBirth, asOf) >= a.retirementAge() {
		return decimal.NewFromInt(1)
	}
	return sched.Ratio(rec.YearsInPlan)
}

func (a *Aggregator) retirementAge() int {
	if a.RetirementAge == 0 {
		return DefaultRetirementAge
	}
	return a.RetirementAge
}

// =============================================================================
// BEGINNING BALANCES
// =============================================================================

// GetBeginningBalances sums every row of priorYear and earlier into a single
// balance per member: the total as of the end of priorYear.
func (a *Aggregator) GetBeginningBalances(ctx context.Context, priorYear int) (map[plan.MemberID]decimal.Decimal, error) {
	txs, err := a.Reader.Transactions(ctx, plan.TransactionFilter{ToYear: priorYear})
	if err != nil {
		return nil, fmt.Errorf("load transactions through %d: %w", priorYear, err)
	}
	return sumBalances(txs, priorYear), nil
}

func sumBalances(txs []plan.TransactionDetail, throughYear int) map[plan.MemberID]decimal.Decimal {
	buckets := make(map[plan.MemberID]*plan.Buckets)
	for _, tx := range txs {
		if tx.Year > throughYear {
			continue
		}
		b, ok := buckets[tx.MemberID]
		if !ok {
			b = &plan.Buckets{}
			buckets[tx.MemberID] = b
		}
		b.Apply(tx)
	}
	result := make(map[plan.MemberID]decimal.Decimal, len(buckets))
	for id, b := range buckets {
		result[id] = b.Net()
	}
	return result
}

// =============================================================================
// YEAR SUMMARIES
// =============================================================================

// GetYearSummaries aggregates the ledger into one summary per member with
// activity in year (or a balance carried into it). Inconsistencies are
// attached to rows as warnings.
func (a *Aggregator) GetYearSummaries(ctx context.Context, year int, filter Filter) ([]plan.MemberYearSummary, error) {
	rows, _, err := a.summaries(ctx, year, filter)
	return rows, err
}

// StrictYearSummaries is GetYearSummaries that fails on the first
// beginning-balance inconsistency.
func (a *Aggregator) StrictYearSummaries(ctx context.Context, year int, filter Filter) ([]plan.MemberYearSummary, error) {
	rows, issues, err := a.summaries(ctx, year, filter)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		return nil, issues[0]
	}
	return rows, nil
}

func (a *Aggregator) summaries(ctx context.Context, year int, filter Filter) ([]plan.MemberYearSummary, []*plan.InconsistencyError, error) {
	period, err := a.Calendar.Period(ctx, year)
	if err != nil {
		return nil, nil, err
	}

	txs, err := a.Reader.Transactions(ctx, plan.TransactionFilter{ToYear: year, MemberIDs: filter.MemberIDs})
	if err != nil {
		return nil, nil, fmt.Errorf("load transactions through %d: %w", year, err)
	}
	beginning := sumBalances(txs, year-1)

	current := make(map[plan.MemberID][]plan.TransactionDetail)
	etva := make(map[plan.MemberID]decimal.Decimal)
	for _, tx := range txs {
		if tx.Year == year {
			current[tx.MemberID] = append(current[tx.MemberID], tx)
		}
		etva[tx.MemberID] = etva[tx.MemberID].Add(plan.EtvaDelta(tx))
	}

	snapshots, err := a.Reader.BalanceSnapshots(ctx, year-1)
	if err != nil {
		return nil, nil, fmt.Errorf("load balance snapshots %d: %w", year-1, err)
	}

	ratios, err := a.GetVestingRatios(ctx, year, period.End)
	if err != nil {
		return nil, nil, err
	}

	members, err := a.Reader.Members(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load members: %w", err)
	}
	byID := make(map[plan.MemberID]plan.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	ids := populationIDs(current, beginning)

	var (
		rows   []plan.MemberYearSummary
		issues []*plan.InconsistencyError
	)
	for i, id := range ids {
		if err := a.CheckBatch(ctx, i); err != nil {
			return nil, nil, err
		}

		row := plan.MemberYearSummary{
			MemberID:         id,
			BeginningBalance: beginning[id],
			Etva:             etva[id],
		}

		m, known := byID[id]
		if known {
			row.Badge = m.Badge
			row.FullName = m.FullName
			row.Store = m.Store
			row.Department = m.Department
			row.PayClassification = m.PayClassification
			row.Status = m.Status
			row.Enrollment = m.Enrollment
			row.DateOfBirth = m.DateOfBirth
		} else {
			row.Warnings = append(row.Warnings, fmt.Sprintf("member %s not found", id))
		}
		if !a.matches(filter, row, known, period.End) {
			continue
		}

		if snap, ok := snapshots[id]; ok && !snap.Ending.Equal(row.BeginningBalance) {
			issue := &plan.InconsistencyError{
				MemberID:  id,
				Year:      year,
				Ledger:    row.BeginningBalance,
				Persisted: snap.Ending,
			}
			issues = append(issues, issue)
			row.Warnings = append(row.Warnings, issue.Error())
		}

		var b plan.Buckets
		for _, tx := range current[id] {
			if !b.Apply(tx) {
				row.Warnings = append(row.Warnings, fmt.Sprintf("unknown profit code %d ignored", int(tx.Code)))
			}
		}
		row.Contributions = b.Contributions
		row.Earnings = b.Earnings
		row.Forfeitures = b.Forfeitures
		row.Distributions = b.Distributions
		row.BeneficiaryAllocation = b.BeneficiaryAllocation
		row.EndingBalance = row.ComputedEnding()

		ratio, ok := ratios[id]
		if !ok {
			ratio = decimal.Zero
		}
		row.VestingRatio = ratio
		row.VestedAmount = plan.Cents(row.EndingBalance.Mul(ratio))
		row.VestedPercent = ratio.Mul(decimal.NewFromInt(100))

		row.SortRank = a.rank(row.Department, row.PayClassification)
		rows = append(rows, row)
	}

	if len(issues) > 0 && a.Log != nil {
		a.Log.WithFields(logrus.Fields{"year": year, "inconsistencies": len(issues)}).
			Warn("beginning balances disagree with prior-year snapshots")
	}
	return rows, issues, nil
}

func (a *Aggregator) matches(f Filter, row plan.MemberYearSummary, known bool, asOf time.Time) bool {
	if f.Store != nil && row.Store != *f.Store {
		return false
	}
	if f.ActiveOnly && (!known || !row.Status.IsActive()) {
		return false
	}
	if f.Under21Only && (!known || calendar.AgeAt(row.DateOfBirth, asOf) >= 21) {
		return false
	}
	return true
}

func (a *Aggregator) rank(department, classification int) int {
	if a.Ranks == nil {
		return 0
	}
	return a.Ranks.Rank(department, classification)
}

func (a *Aggregator) recordsByMember(ctx context.Context, year int) (map[plan.MemberID]plan.YearRecord, error) {
	recs, err := a.Reader.YearRecords(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("load year records %d: %w", year, err)
	}
	result := make(map[plan.MemberID]plan.YearRecord, len(recs))
	for _, r := range recs {
		result[r.MemberID] = r
	}
	return result, nil
}

// CheckBatch returns ctx.Err() at every BatchSize-th index and nil otherwise.
func (a *Aggregator) CheckBatch(ctx context.Context, i int) error {
	size := a.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	if i%size == 0 {
		return ctx.Err()
	}
	return nil
}

// populationIDs returns members with current-year rows or a non-zero
// carried balance, sorted for deterministic output.
func populationIDs(current map[plan.MemberID][]plan.TransactionDetail, beginning map[plan.MemberID]decimal.Decimal) []plan.MemberID {
	seen := make(map[plan.MemberID]bool, len(current)+len(beginning))
	var ids []plan.MemberID
	for id := range current {
		seen[id] = true
		ids = append(ids, id)
	}
	for id, bal := range beginning {
		if !seen[id] && !bal.IsZero() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
