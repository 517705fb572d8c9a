package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/yearend"
)

func oneMemberClose() *yearend.ClosingResult {
	d := decimal.RequireFromString
	return &yearend.ClosingResult{
		Totals: yearend.Totals{
			LedgerEnding:    d("1000"),
			ProjectedEnding: d("1100"),
			Allocated:       d("100"),
			Points:          10,
			Employees:       1,
		},
		Points: yearend.PointSummary{TotalPoints: 10, Contributing: 1},
		Members: []yearend.MemberOutcome{{
			MemberID:        "m-1",
			Name:            "SMITH, JOHN",
			Record:          plan.YearRecord{MemberID: "m-1", Year: 2024, Points: 10, YearsInPlan: 3},
			Contributing:    true,
			Summary:         plan.MemberYearSummary{MemberID: "m-1", EndingBalance: d("1000"), VestedAmount: d("200")},
			ProjectedEnding: d("1100"),
		}},
	}
}

func TestCloseFooter_CountsAllocationsOnce(t *testing.T) {
	// GIVEN: One member ending at 1000 with a 100 allocation
	// WHEN:  The footer is built
	// THEN:  Ending and Projected totals match the row columns

	footer := closeFooter(oneMemberClose())

	assert.Equal(t, []string{"", "", "", "TOTAL", "10", "1,000.00", "", "1,100.00"}, footer)
}

func TestPrintClose(t *testing.T) {
	var buf bytes.Buffer

	printClose(&buf, oneMemberClose())

	out := buf.String()
	assert.Contains(t, out, "PREVIEW")
	assert.Contains(t, out, "SMITH, JOHN")
	assert.Equal(t, 2, strings.Count(out, "1,100.00"), "row and footer")
	assert.NotContains(t, out, "1,200.00")
	assert.Contains(t, out, "members 1  contributing 1")
}

func TestAmount(t *testing.T) {
	assert.Equal(t, "0.00", amount(decimal.Zero))
	assert.Equal(t, "1,234.50", amount(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "12.00-", amount(decimal.RequireFromString("-12")))
}

func TestYearArg(t *testing.T) {
	y, err := yearArg("2024")
	assert.NoError(t, err)
	assert.Equal(t, 2024, y)

	_, err = yearArg("24x")
	assert.Error(t, err)
	_, err = yearArg("1800")
	assert.Error(t, err)
}
