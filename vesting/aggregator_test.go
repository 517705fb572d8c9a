package vesting_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/plan/plantest"
	"github.com/warp/profit-sharing/vesting"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newAggregator(f *plantest.Fixture) *vesting.Aggregator {
	return vesting.NewAggregator(f.Store, plantest.Ranks{}, nil)
}

func findRow(rows []plan.MemberYearSummary, id string) (plan.MemberYearSummary, bool) {
	for _, r := range rows {
		if r.MemberID == plan.MemberID(id) {
			return r, true
		}
	}
	return plan.MemberYearSummary{}, false
}

func decEq(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, plantest.D(want).Equal(got), "%s: want %s, got %s", msg, want, got.String())
}

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestGetYearSummaries_ContributionEarningsDistribution(t *testing.T) {
	// GIVEN: A member with a 5000 balance carried from 2023, 5 years in plan
	// WHEN: 2024 posts +1000 contribution, +50 earnings, -200 partial withdrawal
	// THEN: Ending 5850.00, vested 60% = 3510.00

	f := plantest.NewFixture(t)
	f.Employee("m-1", 701, 12, "DOE, JANE")
	f.Record(plan.YearRecord{MemberID: "m-1", Year: 2024, YearsInPlan: 5})
	f.Tx("m-1", 2023, plan.CodeIncomingContribution, "5000", "0", "0")
	f.Tx("m-1", 2024, plan.CodeIncomingContribution, "1000", "0", "0")
	f.Tx("m-1", 2024, plan.CodeIncomingContribution, "0", "50", "0")
	f.Tx("m-1", 2024, plan.CodePartialWithdrawal, "0", "0", "200")

	rows, err := newAggregator(f).GetYearSummaries(f.Ctx, 2024, vesting.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	decEq(t, "5000.00", r.BeginningBalance, "beginning")
	decEq(t, "1000.00", r.Contributions, "contributions")
	decEq(t, "50.00", r.Earnings, "earnings")
	decEq(t, "-200.00", r.Distributions, "distributions")
	decEq(t, "5850.00", r.EndingBalance, "ending")
	decEq(t, "0.6", r.VestingRatio, "ratio")
	decEq(t, "3510.00", r.VestedAmount, "vested")
	decEq(t, "60", r.VestedPercent, "percent")
	assert.Equal(t, "DOE, JANE", r.FullName)
	assert.Equal(t, 12, r.Store)
	assert.Equal(t, 999, r.SortRank)
	assert.Empty(t, r.Warnings)
}

func TestGetYearSummaries_BucketSigns(t *testing.T) {
	// GIVEN: One row of every profit code in the year
	// THEN: Each lands in its bucket with the table's sign

	f := plantest.NewFixture(t)
	f.Employee("m-1", 1, 1, "A")
	f.Tx("m-1", 2024, plan.CodeIncomingContribution, "100", "10", "7")
	f.Tx("m-1", 2024, plan.CodePartialWithdrawal, "0", "0", "20")
	f.Tx("m-1", 2024, plan.CodeOutgoingForfeiture, "0", "0", "3")
	f.Tx("m-1", 2024, plan.CodeDirectPayment, "0", "0", "30")
	f.Tx("m-1", 2024, plan.CodeOutgoingBeneficiary, "0", "0", "15")
	f.Tx("m-1", 2024, plan.CodeIncomingQDROBeneficiary, "40", "0", "0")
	f.Tx("m-1", 2024, plan.CodeIncomingVestedEarnings, "0", "5", "0")
	f.Tx("m-1", 2024, plan.CodeVestedPayment, "0", "0", "1")

	rows, err := newAggregator(f).GetYearSummaries(f.Ctx, 2024, vesting.Filter{})
	require.NoError(t, err)
	r, ok := findRow(rows, "m-1")
	require.True(t, ok)

	decEq(t, "100", r.Contributions, "contributions")
	decEq(t, "15", r.Earnings, "earnings")
	decEq(t, "4", r.Forfeitures, "forfeitures (+7 -3)")
	decEq(t, "-51", r.Distributions, "distributions (-20 -30 -1)")
	decEq(t, "25", r.BeneficiaryAllocation, "beneficiary (+40 -15)")
	decEq(t, "93", r.EndingBalance, "ending")
	decEq(t, "44", r.Etva, "etva (+40 +5 -1)")
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestGetYearSummaries_BalanceEquationHolds(t *testing.T) {
	// GIVEN: Many members with random rows across three years
	// THEN: Ending == Beginning + all signed buckets, to the cent
	// AND:  Vested == round2(Ending × ratio), 0 <= ratio <= 1

	f := plantest.NewFixture(t)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 40; i++ {
		id := "m-" + string(rune('A'+i%26)) + string(rune('a'+i/26))
		f.Employee(id, 1000+i, 1+i%3, id)
		f.Record(plan.YearRecord{MemberID: plan.MemberID(id), Year: 2024, YearsInPlan: rng.Intn(10)})
		for y := 2022; y <= 2024; y++ {
			for k := 0; k < 1+rng.Intn(6); k++ {
				code := plan.AllProfitCodes[rng.Intn(len(plan.AllProfitCodes))]
				amt := decimal.New(int64(rng.Intn(500000)), -2).String()
				f.Tx(id, y, code, amt, amt, amt)
			}
		}
	}

	rows, err := newAggregator(f).GetYearSummaries(f.Ctx, 2024, vesting.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	one := decimal.NewFromInt(1)
	for _, r := range rows {
		assert.True(t, r.EndingBalance.Equal(r.ComputedEnding()), "ending equation for %s", r.MemberID)
		assert.True(t, r.VestedAmount.Equal(r.EndingBalance.Mul(r.VestingRatio).Round(2)), "vested for %s", r.MemberID)
		assert.False(t, r.VestingRatio.IsNegative())
		assert.False(t, r.VestingRatio.GreaterThan(one))
	}
}

func TestGetYearSummaries_Idempotent(t *testing.T) {
	f := plantest.NewFixture(t)
	for _, id := range []string{"m-3", "m-1", "m-2"} {
		f.Employee(id, 1, 1, id)
		f.Tx(id, 2023, plan.CodeIncomingContribution, "123.45", "0", "0")
		f.Tx(id, 2024, plan.CodeIncomingContribution, "10.01", "2.02", "0.03")
	}
	agg := newAggregator(f)

	first, err := agg.GetYearSummaries(f.Ctx, 2024, vesting.Filter{})
	require.NoError(t, err)
	second, err := agg.GetYearSummaries(f.Ctx, 2024, vesting.Filter{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	assert.Equal(t, plan.MemberID("m-1"), first[0].MemberID, "rows sorted by member id")
}

func TestGetBeginningBalances_SumsThroughPriorYear(t *testing.T) {
	f := plantest.NewFixture(t)
	f.Employee("m-1", 1, 1, "A")
	f.Tx("m-1", 2021, plan.CodeIncomingContribution, "100", "0", "0")
	f.Tx("m-1", 2022, plan.CodeDirectPayment, "0", "0", "40")
	f.Tx("m-1", 2023, plan.CodeIncomingContribution, "0", "5", "0")
	f.Tx("m-1", 2024, plan.CodeIncomingContribution, "999", "0", "0")

	bal, err := newAggregator(f).GetBeginningBalances(f.Ctx, 2023)
	require.NoError(t, err)
	decEq(t, "65", bal["m-1"], "balance through 2023")
}

// =============================================================================
// VESTING RATIOS
// =============================================================================

func TestGetVestingRatios_ScheduleAndOverrides(t *testing.T) {
	f := plantest.NewFixture(t)
	f.Employee("young", 1, 1, "Y")
	f.Employee("five", 2, 1, "F")
	f.Employee("ten", 3, 1, "T")
	ben := f.Employee("ben", 4, 1, "B")
	ben.Enrollment = plan.EnrollmentBeneficiary
	f.SaveMember(ben)
	old := f.Employee("old", 5, 1, "O")
	old.DateOfBirth = plantest.Date(1950, time.January, 1)
	f.SaveMember(old)

	f.Record(plan.YearRecord{MemberID: "young", Year: 2024, YearsInPlan: 2})
	f.Record(plan.YearRecord{MemberID: "five", Year: 2024, YearsInPlan: 5})
	f.Record(plan.YearRecord{MemberID: "ten", Year: 2024, YearsInPlan: 10})

	ratios, err := newAggregator(f).GetVestingRatios(f.Ctx, 2024, plantest.Date(2024, time.December, 28))
	require.NoError(t, err)

	decEq(t, "0", ratios["young"], "below minimum service")
	decEq(t, "0.6", ratios["five"], "five years")
	decEq(t, "1", ratios["ten"], "fully vested")
	decEq(t, "1", ratios["ben"], "beneficiary")
	decEq(t, "1", ratios["old"], "retirement age")
}

func TestGetVestingRatios_PersistedScheduleWins(t *testing.T) {
	f := plantest.NewFixture(t)
	f.Employee("m-1", 1, 1, "A")
	f.Record(plan.YearRecord{MemberID: "m-1", Year: 2024, YearsInPlan: 2})
	require.NoError(t, f.Store.SaveVestingSteps(f.Ctx, []plan.VestingStep{
		{Years: 1, Ratio: plantest.D("0.5")},
		{Years: 2, Ratio: plantest.D("1")},
	}))

	ratios, err := newAggregator(f).GetVestingRatios(f.Ctx, 2024, plantest.Date(2024, time.December, 28))
	require.NoError(t, err)
	decEq(t, "1", ratios["m-1"], "persisted two-year cliff")
}

// =============================================================================
// ANOMALIES AND FAILURES
// =============================================================================

func TestGetYearSummaries_SnapshotMismatchIsWarning(t *testing.T) {
	// GIVEN: 2023 was closed with ending 500, but the ledger now sums to 400
	// WHEN: Aggregating 2024
	// THEN: The row carries a warning; strict mode returns InconsistencyError

	f := plantest.NewFixture(t)
	f.Employee("m-1", 1, 1, "A")
	f.Tx("m-1", 2023, plan.CodeIncomingContribution, "400", "0", "0")
	f.Tx("m-1", 2024, plan.CodeIncomingContribution, "1", "0", "0")
	require.NoError(t, f.Store.WithTx(f.Ctx, func(w plan.Writer) error {
		return w.SaveBalanceSnapshot(f.Ctx, plan.BalanceSnapshot{MemberID: "m-1", Year: 2023, Ending: plantest.D("500")})
	}))
	agg := newAggregator(f)

	rows, err := agg.GetYearSummaries(f.Ctx, 2024, vesting.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Warnings, 1)
	assert.Contains(t, rows[0].Warnings[0], "does not match persisted 500.00")

	_, err = agg.StrictYearSummaries(f.Ctx, 2024, vesting.Filter{})
	assert.ErrorIs(t, err, plan.ErrAggregationInconsistency)
	var ie *plan.InconsistencyError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, plan.MemberID("m-1"), ie.MemberID)
}

func TestGetYearSummaries_UnknownCodeAndMemberRenderInline(t *testing.T) {
	f := plantest.NewFixture(t)
	f.Tx("ghost", 2024, plan.ProfitCode(4), "10", "0", "0")
	f.Tx("ghost", 2024, plan.CodeIncomingContribution, "10", "0", "0")

	rows, err := newAggregator(f).GetYearSummaries(f.Ctx, 2024, vesting.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	decEq(t, "10", rows[0].EndingBalance, "unknown code ignored")
	assert.Equal(t, "", rows[0].FullName)
	assert.Len(t, rows[0].Warnings, 2)
}

func TestGetYearSummaries_PeriodNotConfigured(t *testing.T) {
	f := plantest.NewFixture(t)
	_, err := newAggregator(f).GetYearSummaries(f.Ctx, 1990, vesting.Filter{})
	assert.ErrorIs(t, err, plan.ErrPeriodNotConfigured)
}

func TestGetYearSummaries_Cancelled(t *testing.T) {
	f := plantest.NewFixture(t)
	f.Employee("m-1", 1, 1, "A")
	f.Tx("m-1", 2024, plan.CodeIncomingContribution, "1", "0", "0")

	ctx, cancel := context.WithCancel(f.Ctx)
	cancel()
	_, err := newAggregator(f).GetYearSummaries(ctx, 2024, vesting.Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetYearSummaries_Filters(t *testing.T) {
	f := plantest.NewFixture(t)
	f.Employee("s1", 1, 1, "S1")
	f.Employee("s2", 2, 2, "S2")
	term := f.Employee("term", 3, 1, "TERM")
	term.Status = plan.StatusTerminated
	f.SaveMember(term)
	kid := f.Employee("kid", 4, 1, "KID")
	kid.DateOfBirth = plantest.Date(2006, time.July, 1)
	f.SaveMember(kid)
	for _, id := range []string{"s1", "s2", "term", "kid"} {
		f.Tx(id, 2024, plan.CodeIncomingContribution, "1", "0", "0")
	}
	agg := newAggregator(f)

	store1 := 1
	rows, err := agg.GetYearSummaries(f.Ctx, 2024, vesting.Filter{Store: &store1})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = agg.GetYearSummaries(f.Ctx, 2024, vesting.Filter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	_, found := findRow(rows, "term")
	assert.False(t, found)

	rows, err = agg.GetYearSummaries(f.Ctx, 2024, vesting.Filter{Under21Only: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, plan.MemberID("kid"), rows[0].MemberID)
}
