package yearend

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/profit-sharing/plan"
)

// =============================================================================
// PARAMS - What-if simulation inputs
// =============================================================================

// Params drive the projected allocations of a close.
//
//	contribution = points × ContributionPercent, capped at MaxContribution
//	forfeiture   = points × ForfeiturePercent
//	earnings     = beginning balance × EarningsPercent / 100
//
// All three are rounded to cents. A zero MaxContribution means no cap.
type Params struct {
	ContributionPercent decimal.Decimal
	ForfeiturePercent   decimal.Decimal
	EarningsPercent     decimal.Decimal
	MaxContribution     decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Validate checks that percents are within [0,100] and the cap is not negative.
func (p Params) Validate() error {
	percents := []struct {
		name string
		v    decimal.Decimal
	}{
		{"contribution percent", p.ContributionPercent},
		{"forfeiture percent", p.ForfeiturePercent},
		{"earnings percent", p.EarningsPercent},
	}
	for _, pc := range percents {
		if pc.v.IsNegative() || pc.v.GreaterThan(hundred) {
			return fmt.Errorf("%w: %s %s outside [0,100]", plan.ErrInvalidParams, pc.name, pc.v)
		}
	}
	if p.MaxContribution.IsNegative() {
		return fmt.Errorf("%w: max contribution %s is negative", plan.ErrInvalidParams, p.MaxContribution)
	}
	return nil
}

// Allocation is the projected year-end allocation of one member.
type Allocation struct {
	Contribution decimal.Decimal
	Forfeiture   decimal.Decimal
	Earnings     decimal.Decimal
}

func (a Allocation) Total() decimal.Decimal {
	return a.Contribution.Add(a.Forfeiture).Add(a.Earnings)
}

func (p Params) allocate(points int, contributing bool, beginning decimal.Decimal) Allocation {
	var a Allocation
	if contributing {
		pts := decimal.NewFromInt(int64(points))
		a.Contribution = plan.Cents(pts.Mul(p.ContributionPercent))
		if p.MaxContribution.IsPositive() && a.Contribution.GreaterThan(p.MaxContribution) {
			a.Contribution = p.MaxContribution
		}
		a.Forfeiture = plan.Cents(pts.Mul(p.ForfeiturePercent))
	}
	if beginning.IsPositive() {
		a.Earnings = plan.Cents(beginning.Mul(p.EarningsPercent).Div(hundred))
	}
	return a
}

// =============================================================================
// TOTALS
// =============================================================================

// Totals summarise a close across the population. Contributions,
// Forfeitures and Earnings include the projected allocations. LedgerEnding
// is the recorded ending balance; ProjectedEnding adds the allocations.
type Totals struct {
	Beginning             decimal.Decimal
	Contributions         decimal.Decimal
	Earnings              decimal.Decimal
	Forfeitures           decimal.Decimal
	Distributions         decimal.Decimal
	BeneficiaryAllocation decimal.Decimal
	LedgerEnding          decimal.Decimal
	ProjectedEnding       decimal.Decimal
	Allocated             decimal.Decimal
	Points                int
	Employees             int
	Beneficiaries         int
}

func (t *Totals) add(o MemberOutcome) {
	row := o.Summary
	t.Beginning = t.Beginning.Add(row.BeginningBalance)
	t.Contributions = t.Contributions.Add(row.Contributions).Add(o.Allocation.Contribution)
	t.Earnings = t.Earnings.Add(row.Earnings).Add(o.Allocation.Earnings)
	t.Forfeitures = t.Forfeitures.Add(row.Forfeitures).Add(o.Allocation.Forfeiture)
	t.Distributions = t.Distributions.Add(row.Distributions)
	t.BeneficiaryAllocation = t.BeneficiaryAllocation.Add(row.BeneficiaryAllocation)
	t.LedgerEnding = t.LedgerEnding.Add(row.EndingBalance)
	t.ProjectedEnding = t.ProjectedEnding.Add(o.ProjectedEnding)
	t.Allocated = t.Allocated.Add(o.Allocation.Total())
	t.Points += o.Record.Points
	if o.Record.EmployeeType == plan.EmployeeTypeBeneficiary {
		t.Beneficiaries++
	} else {
		t.Employees++
	}
}

// =============================================================================
// PREVIEW / COMMIT
// =============================================================================

// Preview computes a close under params without mutating persisted state.
func (s *Service) Preview(ctx context.Context, year int, params Params) (*ClosingResult, error) {
	return s.Close(ctx, year, params, false)
}

// Commit runs the close under params and persists it atomically.
func (s *Service) Commit(ctx context.Context, year int, params Params) (*ClosingResult, error) {
	return s.Close(ctx, year, params, true)
}
