/*
Package calendar resolves plan years to their fiscal accounting periods.

PURPOSE:
  Every "current year" query is scoped by the fiscal start and end dates of
  the plan year. The boundaries come from the accounting-period table; the
  resolver is a pure lookup and never writes.

FISCAL CALENDAR:
  The plan's fiscal year ends on the last Saturday of December and starts
  the day after the prior fiscal year ended. DefaultFiscalPeriod derives
  those dates and is used to seed the table; resolution itself always goes
  through the table so a year can be corrected by data, not code.

FAILURE:
  A year with no row yields *plan.PeriodError (errors.Is ErrPeriodNotConfigured).
  Callers treat this as fatal for that year.

SEE ALSO:
  - vesting/aggregator.go: Uses the fiscal end date as the vesting as-of date
  - eligibility/evaluator.go: Uses the fiscal end date for age checks
*/
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/profit-sharing/plan"
)

// =============================================================================
// PERIOD
// =============================================================================

// Period is a closed date range [Start, End] at day granularity.
type Period struct {
	Year  int
	Start time.Time
	End   time.Time
}

// Contains returns true if t falls on a day within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	return fmt.Sprintf("%d [%s, %s]", p.Year, p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// RESOLVER
// =============================================================================

type Resolver struct {
	Reader plan.Reader
}

func NewResolver(r plan.Reader) *Resolver {
	return &Resolver{Reader: r}
}

// Period returns the fiscal boundaries of a plan year.
func (r *Resolver) Period(ctx context.Context, year int) (Period, error) {
	ap, ok, err := r.Reader.AccountingPeriod(ctx, year)
	if err != nil {
		return Period{}, fmt.Errorf("lookup accounting period %d: %w", year, err)
	}
	if !ok {
		return Period{}, &plan.PeriodError{Year: year}
	}
	return Period{Year: year, Start: Day(ap.Start), End: Day(ap.End)}, nil
}

// =============================================================================
// FISCAL CALENDAR RULES
// =============================================================================

// LastSaturdayOfDecember returns the fiscal year-end date for a year.
func LastSaturdayOfDecember(year int) time.Time {
	d := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Saturday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// DefaultFiscalPeriod derives the legacy fiscal boundaries of a plan year.
func DefaultFiscalPeriod(year int) plan.AccountingPeriod {
	return plan.AccountingPeriod{
		Year:  year,
		Start: LastSaturdayOfDecember(year - 1).AddDate(0, 0, 1),
		End:   LastSaturdayOfDecember(year),
	}
}

// AgeAt returns completed years of age on date.
func AgeAt(dob, date time.Time) int {
	if dob.IsZero() {
		return 0
	}
	age := date.Year() - dob.Year()
	if date.Month() < dob.Month() || (date.Month() == dob.Month() && date.Day() < dob.Day()) {
		age--
	}
	return age
}
