package report_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/profit-sharing/breakdown"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/plan/plantest"
	"github.com/warp/profit-sharing/report"
	"github.com/warp/profit-sharing/vesting"
)

func setup(t *testing.T) (*plantest.Fixture, *report.Service) {
	f := plantest.NewFixture(t)
	f.Employee("m-1", 1234, 10, "SMITH, JOHN")
	f.Record(plan.YearRecord{MemberID: "m-1", Year: 2024, Hours: plantest.D("2000"), Income: plantest.D("40000"), YearsInPlan: 5})
	f.Tx("m-1", 2023, plan.CodeIncomingContribution, "5000", "0", "0")
	f.Tx("m-1", 2024, plan.CodeIncomingContribution, "1000", "50", "0")
	f.Tx("m-1", 2024, plan.CodePartialWithdrawal, "0", "0", "200")

	mgr := f.Employee("m-2", 77, 10, "JONES, MARY")
	mgr.PayClassification = 1
	f.SaveMember(mgr)
	f.Tx("m-2", 2024, plan.CodeIncomingContribution, "300", "0", "0")

	svc := report.NewService(f.Store, report.DefaultOptions(), nil)
	svc.Now = func() time.Time { return plantest.Date(2025, time.January, 15) }
	return f, svc
}

func TestComputeYearSummaries_ResultAndCapabilities(t *testing.T) {
	f, svc := setup(t)

	res, err := svc.ComputeYearSummaries(f.Ctx, 2024, vesting.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2024, res.Year)
	require.Len(t, res.Rows, 2)

	row := res.Rows[0]
	assert.Equal(t, plan.MemberID("m-1"), row.MemberID)
	assert.True(t, row.EndingBalance.Equal(plantest.D("5850")))
	assert.True(t, row.VestedAmount.Equal(plantest.D("3510")))
	assert.Equal(t, 10, res.Rows[1].SortRank, "rank comes from the rank table")

	totals, ok := res.Totals()
	require.True(t, ok)
	assert.True(t, totals["ending_balance"].Equal(plantest.D("6150")))

	p, ok := res.CSV()
	require.True(t, ok)
	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, p))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "member_id", records[0][0])
	assert.Equal(t, "SMITH, JOHN", records[1][2])
	assert.Equal(t, "5850.00", records[1][11])
	assert.Equal(t, "-200.00", records[1][9])
}

func TestRenderBreakdownReport(t *testing.T) {
	f, svc := setup(t)

	out, err := svc.RenderBreakdownReport(f.Ctx, 2024, report.BreakdownRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, breakdown.ProgramID))
	assert.Contains(t, out, "DATE 01/15/2025")
	assert.Contains(t, out, "PLAN YEAR 2024")
	assert.Less(t, strings.Index(out, "JONES, MARY"), strings.Index(out, "SMITH, JOHN"), "management first")

	other := 99
	out, err = svc.RenderBreakdownReport(f.Ctx, 2024, report.BreakdownRequest{Store: &other})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGetEligibility(t *testing.T) {
	f, svc := setup(t)
	f.Record(plan.YearRecord{MemberID: "m-2", Year: 2024, Hours: plantest.D("100")})

	res, err := svc.GetEligibility(f.Ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, report.EligibleRows{"m-1"}, res.Rows)
	assert.Equal(t, 2, res.CountRead)
	assert.Equal(t, 1, res.CountExcluded)
	assert.Equal(t, 1, res.CountWritten)

	_, ok := res.Totals()
	assert.False(t, ok, "eligibility has no totals line")
	_, ok = res.CSV()
	assert.True(t, ok)
}

func TestRunYearEndClose_PreviewLeavesStoreUntouched(t *testing.T) {
	f, svc := setup(t)
	before, err := f.Store.YearRecords(f.Ctx, 2024)
	require.NoError(t, err)

	res, err := svc.RunYearEndClose(f.Ctx, 2024, false)
	require.NoError(t, err)
	assert.Equal(t, plan.RunCompleted, res.Run.Status)

	after, err := f.Store.YearRecords(f.Ctx, 2024)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, before[i].Equal(after[i]))
	}

	res, err = svc.RunYearEndClose(f.Ctx, 2024, true)
	require.NoError(t, err)
	runs, err := svc.ClosingRuns(f.Ctx, 2024)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.Run.ID, runs[0].ID)
}
