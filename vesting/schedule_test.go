package vesting_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/plan/plantest"
	"github.com/warp/profit-sharing/vesting"
)

func TestDefaultSchedule_MonotonicAndBounded(t *testing.T) {
	s := vesting.DefaultSchedule()
	one := decimal.NewFromInt(1)

	prev := decimal.Zero
	for years := 0; years <= 40; years++ {
		r := s.Ratio(years)
		assert.False(t, r.IsNegative(), "years=%d", years)
		assert.False(t, r.GreaterThan(one), "years=%d", years)
		assert.False(t, r.LessThan(prev), "ratio decreased at %d years", years)
		prev = r
	}
	assert.True(t, s.Ratio(2).IsZero())
	assert.True(t, s.Ratio(3).Equal(plantest.D("0.2")))
	assert.True(t, s.Ratio(7).Equal(one))
	assert.Equal(t, 7, s.FullyVestedAt())
}

func TestNewSchedule_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		steps []plan.VestingStep
	}{
		{"empty", nil},
		{"decreasing", []plan.VestingStep{{Years: 1, Ratio: plantest.D("0.5")}, {Years: 2, Ratio: plantest.D("0.4")}, {Years: 3, Ratio: plantest.D("1")}}},
		{"above one", []plan.VestingStep{{Years: 1, Ratio: plantest.D("1.5")}}},
		{"not fully vested", []plan.VestingStep{{Years: 1, Ratio: plantest.D("0.5")}}},
		{"duplicate years", []plan.VestingStep{{Years: 1, Ratio: plantest.D("0.5")}, {Years: 1, Ratio: plantest.D("1")}}},
		{"negative years", []plan.VestingStep{{Years: -1, Ratio: plantest.D("1")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vesting.NewSchedule(tt.steps)
			require.Error(t, err)
			assert.ErrorIs(t, err, plan.ErrInvalidSchedule)
		})
	}
}

func TestNewSchedule_SortsSteps(t *testing.T) {
	s, err := vesting.NewSchedule([]plan.VestingStep{
		{Years: 5, Ratio: plantest.D("1")},
		{Years: 2, Ratio: plantest.D("0.5")},
	})
	require.NoError(t, err)
	assert.True(t, s.Ratio(3).Equal(plantest.D("0.5")))
	assert.Equal(t, 2, s.Steps()[0].Years)
}
