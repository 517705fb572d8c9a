package vesting

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/profit-sharing/plan"
)

// =============================================================================
// SCHEDULE - Years of service to vesting ratio
// =============================================================================

// Schedule is a monotonic step function from years of service to a ratio
// in [0,1]. Members below the first step are 0% vested; the last step is
// always 100%.
type Schedule struct {
	steps []plan.VestingStep
}

// NewSchedule validates and sorts steps.
func NewSchedule(steps []plan.VestingStep) (Schedule, error) {
	if len(steps) == 0 {
		return Schedule{}, fmt.Errorf("%w: no steps", plan.ErrInvalidSchedule)
	}
	sorted := append([]plan.VestingStep(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Years < sorted[j].Years })

	one := decimal.NewFromInt(1)
	prev := decimal.Zero
	for i, s := range sorted {
		if s.Years < 0 {
			return Schedule{}, fmt.Errorf("%w: negative years %d", plan.ErrInvalidSchedule, s.Years)
		}
		if i > 0 && s.Years == sorted[i-1].Years {
			return Schedule{}, fmt.Errorf("%w: duplicate step at %d years", plan.ErrInvalidSchedule, s.Years)
		}
		if s.Ratio.IsNegative() || s.Ratio.GreaterThan(one) {
			return Schedule{}, fmt.Errorf("%w: ratio %s outside [0,1]", plan.ErrInvalidSchedule, s.Ratio)
		}
		if s.Ratio.LessThan(prev) {
			return Schedule{}, fmt.Errorf("%w: ratio decreases at %d years", plan.ErrInvalidSchedule, s.Years)
		}
		prev = s.Ratio
	}
	if !sorted[len(sorted)-1].Ratio.Equal(one) {
		return Schedule{}, fmt.Errorf("%w: final step must be fully vested", plan.ErrInvalidSchedule)
	}
	return Schedule{steps: sorted}, nil
}

// DefaultSchedule is the plan's six-year graded schedule.
func DefaultSchedule() Schedule {
	s, err := NewSchedule([]plan.VestingStep{
		{Years: 3, Ratio: decimal.RequireFromString("0.20")},
		{Years: 4, Ratio: decimal.RequireFromString("0.40")},
		{Years: 5, Ratio: decimal.RequireFromString("0.60")},
		{Years: 6, Ratio: decimal.RequireFromString("0.80")},
		{Years: 7, Ratio: decimal.NewFromInt(1)},
	})
	if err != nil {
		panic(err)
	}
	return s
}

// Ratio returns the vesting ratio for completed years of service.
func (s Schedule) Ratio(years int) decimal.Decimal {
	ratio := decimal.Zero
	for _, step := range s.steps {
		if years < step.Years {
			break
		}
		ratio = step.Ratio
	}
	return ratio
}

// FullyVestedAt is the years of service at which the ratio reaches 1.
func (s Schedule) FullyVestedAt() int {
	if len(s.steps) == 0 {
		return 0
	}
	return s.steps[len(s.steps)-1].Years
}

// Steps returns a copy of the schedule's steps.
func (s Schedule) Steps() []plan.VestingStep {
	return append([]plan.VestingStep(nil), s.steps...)
}

// IsZero reports whether the schedule was never initialised.
func (s Schedule) IsZero() bool { return len(s.steps) == 0 }
