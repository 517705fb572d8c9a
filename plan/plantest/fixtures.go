// Package plantest holds fixtures shared by package tests.
package plantest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/profit-sharing/calendar"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/plan/store"
)

// Date builds a UTC midnight date.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// D parses a decimal literal.
func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Fixture is a memory store seeded with fiscal periods 2018-2027.
type Fixture struct {
	T     testing.TB
	Ctx   context.Context
	Store *store.Memory
	seq   int
}

func NewFixture(t testing.TB) *Fixture {
	f := &Fixture{T: t, Ctx: context.Background(), Store: store.NewMemory()}
	for y := 2018; y <= 2027; y++ {
		if err := f.Store.SaveAccountingPeriod(f.Ctx, calendar.DefaultFiscalPeriod(y)); err != nil {
			t.Fatalf("seed period %d: %v", y, err)
		}
	}
	return f
}

// Employee saves an active employee born in 1980 and returns it.
func (f *Fixture) Employee(id string, badge, storeNo int, name string) plan.Member {
	m := plan.Member{
		ID:                plan.MemberID(id),
		Badge:             badge,
		FullName:          name,
		Store:             storeNo,
		Department:        1,
		PayClassification: 13,
		Status:            plan.StatusActive,
		DateOfBirth:       Date(1980, time.May, 1),
		HireDate:          Date(2010, time.January, 4),
		Enrollment:        plan.EnrollmentEmployee,
	}
	f.SaveMember(m)
	return m
}

func (f *Fixture) SaveMember(m plan.Member) {
	if err := f.Store.SaveMember(f.Ctx, m); err != nil {
		f.T.Fatalf("save member: %v", err)
	}
}

func (f *Fixture) Record(rec plan.YearRecord) {
	if err := f.Store.SaveYearRecord(f.Ctx, rec); err != nil {
		f.T.Fatalf("save year record: %v", err)
	}
}

// Tx appends a ledger row with the given contribution/earnings/forfeiture.
func (f *Fixture) Tx(member string, year int, code plan.ProfitCode, contribution, earnings, forfeiture string) plan.TransactionDetail {
	f.seq++
	tx := plan.TransactionDetail{
		ID:             plan.TransactionID(fmt.Sprintf("tx-%d", f.seq)),
		MemberID:       plan.MemberID(member),
		Year:           year,
		Code:           code,
		Contribution:   D(contribution),
		Earnings:       D(earnings),
		Forfeiture:     D(forfeiture),
		IdempotencyKey: fmt.Sprintf("key-%d", f.seq),
		CreatedAt:      Date(year, time.December, 1),
	}
	if err := f.Store.Append(f.Ctx, tx); err != nil {
		f.T.Fatalf("append tx: %v", err)
	}
	return tx
}

// Ranks is a Ranker for tests: classification 1 is management rank 10.
type Ranks struct{}

func (Ranks) Rank(_, classification int) int {
	if classification == 1 {
		return 10
	}
	return 999
}
