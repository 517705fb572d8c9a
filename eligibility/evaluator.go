// Package eligibility decides which members participate in a plan year.
//
// A member is eligible when, at the fiscal year end, they are an employee
// (not a beneficiary), have worked at least MinHours and are at least MinAge
// years old. The frozen year records are the source population.
package eligibility

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/profit-sharing/calendar"
	"github.com/warp/profit-sharing/plan"
)

const (
	DefaultMinHours = 1000
	DefaultMinAge   = 21
)

// Criteria are the participation thresholds.
type Criteria struct {
	MinHours int
	MinAge   int
}

func DefaultCriteria() Criteria {
	return Criteria{MinHours: DefaultMinHours, MinAge: DefaultMinAge}
}

// Result carries the eligible population and the three control counts.
type Result struct {
	Year          int
	Eligible      []plan.MemberID
	CountRead     int
	CountExcluded int
	CountWritten  int

	// Anomaly is set when a year with activity yields no eligible members.
	Anomaly bool
}

type Evaluator struct {
	Reader   plan.Reader
	Calendar *calendar.Resolver
	Criteria Criteria

	// Strict turns a zero-eligible year into ErrNoEligibleMembers.
	Strict bool
	Log    logrus.FieldLogger
}

func NewEvaluator(r plan.Reader, c Criteria, log logrus.FieldLogger) *Evaluator {
	return &Evaluator{Reader: r, Calendar: calendar.NewResolver(r), Criteria: c, Log: log}
}

// Evaluate returns the eligible members of a plan year.
func (e *Evaluator) Evaluate(ctx context.Context, year int) (*Result, error) {
	period, err := e.Calendar.Period(ctx, year)
	if err != nil {
		return nil, err
	}
	records, err := e.Reader.YearRecords(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("load year records %d: %w", year, err)
	}
	members, err := e.Reader.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	byID := make(map[plan.MemberID]plan.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	res := &Result{Year: year, CountRead: len(records)}
	for i, rec := range records {
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		m, ok := byID[rec.MemberID]
		if !ok {
			continue
		}
		if e.Qualifies(m, rec, period) {
			res.Eligible = append(res.Eligible, rec.MemberID)
		}
	}
	res.CountWritten = len(res.Eligible)
	res.CountExcluded = res.CountRead - res.CountWritten

	if res.CountRead > 0 && res.CountWritten == 0 {
		res.Anomaly = true
		if e.Log != nil {
			e.Log.WithFields(logrus.Fields{"year": year, "read": res.CountRead}).
				Warn("plan year has activity but no eligible members")
		}
		if e.Strict {
			return res, fmt.Errorf("plan year %d: %w", year, plan.ErrNoEligibleMembers)
		}
	}
	return res, nil
}

// Qualifies applies the thresholds to one member-year.
func (e *Evaluator) Qualifies(m plan.Member, rec plan.YearRecord, period calendar.Period) bool {
	if m.IsBeneficiary() {
		return false
	}
	if rec.Hours.LessThan(decimal.NewFromInt(int64(e.Criteria.MinHours))) {
		return false
	}
	return calendar.AgeAt(m.DateOfBirth, period.End) >= e.Criteria.MinAge
}
