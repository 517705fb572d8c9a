package calendar_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/profit-sharing/calendar"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/plan/store"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLastSaturdayOfDecember(t *testing.T) {
	assert.Equal(t, date(2024, time.December, 28), calendar.LastSaturdayOfDecember(2024))
	assert.Equal(t, date(2023, time.December, 30), calendar.LastSaturdayOfDecember(2023))
	assert.Equal(t, date(2022, time.December, 31), calendar.LastSaturdayOfDecember(2022))
}

func TestDefaultFiscalPeriod_ContiguousYears(t *testing.T) {
	p2024 := calendar.DefaultFiscalPeriod(2024)
	p2025 := calendar.DefaultFiscalPeriod(2025)

	assert.Equal(t, date(2023, time.December, 31), p2024.Start)
	assert.Equal(t, date(2024, time.December, 28), p2024.End)
	assert.Equal(t, p2024.End.AddDate(0, 0, 1), p2025.Start)
}

func TestResolver_Period(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveAccountingPeriod(ctx, calendar.DefaultFiscalPeriod(2024)))

	r := calendar.NewResolver(mem)
	p, err := r.Period(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 2024, p.Year)
	assert.True(t, p.Contains(date(2024, time.June, 1)))
	assert.True(t, p.Contains(p.End.Add(15*time.Hour)), "end day is inclusive")
	assert.False(t, p.Contains(p.End.AddDate(0, 0, 1)))
}

func TestResolver_PeriodNotConfigured(t *testing.T) {
	r := calendar.NewResolver(store.NewMemory())

	_, err := r.Period(context.Background(), 1999)

	require.Error(t, err)
	assert.ErrorIs(t, err, plan.ErrPeriodNotConfigured)
	var pe *plan.PeriodError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1999, pe.Year)
	assert.True(t, plan.IsNotFound(err))
}

func TestAgeAt(t *testing.T) {
	dob := date(2004, time.March, 15)
	assert.Equal(t, 19, calendar.AgeAt(dob, date(2024, time.March, 14)), "day before the birthday")
	assert.Equal(t, 20, calendar.AgeAt(dob, date(2024, time.March, 15)), "on the birthday")
	assert.Equal(t, 21, calendar.AgeAt(dob, date(2025, time.March, 15)))
	assert.Equal(t, 0, calendar.AgeAt(time.Time{}, date(2025, time.March, 15)))
}
