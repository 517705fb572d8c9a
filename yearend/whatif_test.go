package yearend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/plan/plantest"
	"github.com/warp/profit-sharing/yearend"
)

func TestPreview_NeverMutatesPersistedState(t *testing.T) {
	// GIVEN: The 2024 population
	// WHEN:  The close is previewed repeatedly
	// THEN:  Records, snapshots and run history are untouched

	f := plantest.NewFixture(t)
	seedYear(f)
	before := records(t, f, 2024)
	svc := newService(f.Store)

	for i := 0; i < 3; i++ {
		res, err := svc.Preview(f.Ctx, 2024, defaultParams())
		require.NoError(t, err)
		assert.False(t, res.Run.Committed)
		assert.Equal(t, plan.RunCompleted, res.Run.Status)
	}

	assertRecordsEqual(t, before, records(t, f, 2024))
	snaps, err := f.Store.BalanceSnapshots(f.Ctx, 2024)
	require.NoError(t, err)
	assert.Empty(t, snaps)
	runs, err := svc.Runs(f.Ctx, 2024)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestPreview_Totals(t *testing.T) {
	f := plantest.NewFixture(t)
	seedYear(f)

	res, err := newService(f.Store).Preview(f.Ctx, 2024, defaultParams())
	require.NoError(t, err)

	a := outcome(t, res, "a")
	assert.True(t, a.Allocation.Contribution.Equal(plantest.D("4510")))
	assert.True(t, a.Allocation.Forfeiture.Equal(plantest.D("451")))
	assert.True(t, a.Allocation.Earnings.Equal(plantest.D("250")))
	assert.True(t, a.ProjectedEnding.Equal(plantest.D("11261")), a.ProjectedEnding.String())

	c := outcome(t, res, "c")
	assert.True(t, c.Allocation.Contribution.IsZero(), "beneficiaries receive no contribution")
	assert.True(t, c.Allocation.Earnings.Equal(plantest.D("40")))

	tot := res.Totals
	assert.Equal(t, 951, tot.Points)
	assert.Equal(t, 951, res.Points.TotalPoints)
	assert.Equal(t, 4, tot.Employees)
	assert.Equal(t, 1, tot.Beneficiaries)
	assert.True(t, tot.Beginning.Equal(plantest.D("7800")), tot.Beginning.String())
	assert.True(t, tot.Contributions.Equal(plantest.D("10510")), tot.Contributions.String())
	assert.True(t, tot.Earnings.Equal(plantest.D("440")), tot.Earnings.String())
	assert.True(t, tot.Distributions.Equal(plantest.D("-2000")), tot.Distributions.String())
	assert.True(t, tot.LedgerEnding.Equal(plantest.D("6850")), tot.LedgerEnding.String())
	assert.True(t, tot.Allocated.Equal(plantest.D("10851")), tot.Allocated.String())
	assert.True(t, tot.ProjectedEnding.Equal(plantest.D("17701")), tot.ProjectedEnding.String())
	assert.True(t, tot.LedgerEnding.Add(tot.Allocated).Equal(tot.ProjectedEnding), "allocations are counted once")

	assert.Equal(t, 3, res.Points.Contributing)
	assert.Equal(t, 2, res.Points.NonContributing)
	assert.Equal(t, 1, res.Points.ByEmployeeType[plan.EmployeeTypeNewInPlan])
	assert.Equal(t, 2, res.Points.ByEmployeeType[plan.EmployeeTypeRegular])
}

func TestPreview_MaxContributionCaps(t *testing.T) {
	f := plantest.NewFixture(t)
	seedYear(f)
	params := defaultParams()
	params.MaxContribution = plantest.D("3000")

	res, err := newService(f.Store).Preview(f.Ctx, 2024, params)
	require.NoError(t, err)

	assert.True(t, outcome(t, res, "a").Allocation.Contribution.Equal(plantest.D("3000")))
	assert.True(t, outcome(t, res, "b").Allocation.Contribution.Equal(plantest.D("3000")))
	assert.True(t, outcome(t, res, "e").Allocation.Contribution.Equal(plantest.D("2000")))
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		params yearend.Params
		valid  bool
	}{
		{"zero", yearend.Params{}, true},
		{"bounds", yearend.Params{ContributionPercent: plantest.D("100"), EarningsPercent: plantest.D("0")}, true},
		{"negative percent", yearend.Params{ForfeiturePercent: plantest.D("-1")}, false},
		{"over hundred", yearend.Params{EarningsPercent: plantest.D("100.01")}, false},
		{"negative cap", yearend.Params{MaxContribution: plantest.D("-5")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, plan.ErrInvalidParams)
			assert.True(t, plan.IsClientError(err))
		})
	}
}

func TestPreview_InvalidParamsRejected(t *testing.T) {
	f := plantest.NewFixture(t)
	_, err := newService(f.Store).Preview(f.Ctx, 2024, yearend.Params{ContributionPercent: plantest.D("101")})
	assert.ErrorIs(t, err, plan.ErrInvalidParams)
}
