package yearend

import (
	"github.com/shopspring/decimal"
	"github.com/warp/profit-sharing/calendar"
	"github.com/warp/profit-sharing/eligibility"
	"github.com/warp/profit-sharing/plan"
)

// =============================================================================
// RULES
// =============================================================================

// Rules are the plan parameters of the year-end stamp.
type Rules struct {
	Criteria      eligibility.Criteria
	RetirementAge int

	// IncomePerPoint is the eligible income that earns one point.
	IncomePerPoint decimal.Decimal

	// VestedServiceYears is the service after which a member at retirement
	// age is treated as fully vested and stops receiving contributions.
	VestedServiceYears int
}

func DefaultRules() Rules {
	return Rules{
		Criteria:           eligibility.DefaultCriteria(),
		RetirementAge:      65,
		IncomePerPoint:     decimal.NewFromInt(100),
		VestedServiceYears: 5,
	}
}

// WithDefaults fills unset fields from DefaultRules.
func (r Rules) WithDefaults() Rules {
	d := DefaultRules()
	if r.Criteria == (eligibility.Criteria{}) {
		r.Criteria = d.Criteria
	}
	if r.RetirementAge == 0 {
		r.RetirementAge = d.RetirementAge
	}
	if r.IncomePerPoint.IsZero() {
		r.IncomePerPoint = d.IncomePerPoint
	}
	if r.VestedServiceYears == 0 {
		r.VestedServiceYears = d.VestedServiceYears
	}
	return r
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// stampInput is everything the stamp of one member-year depends on.
type stampInput struct {
	Member      plan.Member
	Current     plan.YearRecord
	Prior       *plan.YearRecord
	Distributed bool
	Period      calendar.Period
}

// stampResult is the recomputed record plus whether it receives an allocation.
type stampResult struct {
	Record       plan.YearRecord
	Contributing bool
}

// stamp recomputes the year-scoped fields of one member. It depends only on
// its input, so re-running a close over the same data is idempotent.
func (r Rules) stamp(in stampInput, qualifies bool) stampResult {
	rec := in.Current
	age := calendar.AgeAt(in.Member.DateOfBirth, in.Period.End)
	enoughHours := !rec.Hours.LessThan(decimal.NewFromInt(int64(r.Criteria.MinHours)))
	priorYears := 0
	if in.Prior != nil {
		priorYears = in.Prior.YearsInPlan
	}

	var (
		reason       plan.ZeroContributionReason
		contributing bool
		credit       bool
	)
	switch {
	case in.Member.IsBeneficiary():
		reason = plan.ZeroContBeneficiary
	case !enoughHours && age >= r.RetirementAge:
		reason, credit = plan.ZeroContOver64Under1000Hours, true
	case !enoughHours:
		reason = plan.ZeroContBelowMinimumHours
	case age < r.Criteria.MinAge:
		reason, credit = plan.ZeroContUnder21Over1000Hours, true
	case in.Member.Status == plan.StatusTerminated:
		reason, credit = plan.ZeroContTerminatedOver1000Hours, true
	case age >= r.RetirementAge && priorYears >= r.VestedServiceYears:
		reason, credit = plan.ZeroContSixtyFiveVested, true
	case age >= r.RetirementAge:
		reason, credit = plan.ZeroContOver64Over1000Hours, true
	default:
		reason, credit, contributing = plan.ZeroContNormal, true, true
	}
	contributing = contributing && qualifies

	rec.ZeroContributionReason = reason
	rec.Eligible = qualifies
	rec.EmployeeType = employeeType(in.Member, contributing, priorYears)

	// Service builds on the prior year only, never on the record being
	// overwritten, so a repeated close stamps the same value.
	rec.YearsInPlan = priorYears
	if credit {
		rec.YearsInPlan++
	}

	rec.Points = 0
	if contributing && r.IncomePerPoint.IsPositive() {
		rec.Points = int(rec.Income.Div(r.IncomePerPoint).Round(0).IntPart())
	}

	if rec.CertificateIssuedDate == nil && in.Distributed {
		issued := in.Period.End
		rec.CertificateIssuedDate = &issued
	}
	return stampResult{Record: rec, Contributing: contributing}
}

func employeeType(m plan.Member, contributing bool, priorYears int) plan.EmployeeType {
	switch {
	case m.IsBeneficiary():
		return plan.EmployeeTypeBeneficiary
	case !contributing:
		return plan.EmployeeTypeIneligible
	case priorYears == 0:
		return plan.EmployeeTypeNewInPlan
	default:
		return plan.EmployeeTypeRegular
	}
}
