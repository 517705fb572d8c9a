package breakdown_test

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/profit-sharing/breakdown"
	"github.com/warp/profit-sharing/plan"
)

// =============================================================================
// HELPERS
// =============================================================================

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func opts(linesPerPage int) breakdown.Options {
	o := breakdown.DefaultOptions(2024, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC))
	o.LinesPerPage = linesPerPage
	return o
}

// associate returns an active associate row with the given ending balance.
func associate(badge, store int, name, ending string) plan.MemberYearSummary {
	return plan.MemberYearSummary{
		MemberID:          plan.MemberID(fmt.Sprintf("m-%d", badge)),
		Badge:             badge,
		FullName:          name,
		Store:             store,
		Department:        9,
		PayClassification: 9,
		Status:            plan.StatusActive,
		BeginningBalance:  d(ending),
		EndingBalance:     d(ending),
	}
}

func manager(badge, store, classification int, name string) plan.MemberYearSummary {
	r := associate(badge, store, name, "100")
	r.Department = 1
	r.PayClassification = classification
	return r
}

func associates(n, store int) []plan.MemberYearSummary {
	rows := make([]plan.MemberYearSummary, n)
	for i := range rows {
		rows[i] = associate(1000+i, store, fmt.Sprintf("ASSOC %03d", i), "10")
	}
	return rows
}

func lines(out string) []string {
	return strings.Split(strings.TrimSuffix(out, "\n"), "\n")
}

func lineWith(t *testing.T, out, needle string) string {
	t.Helper()
	for _, l := range lines(out) {
		if strings.Contains(l, needle) {
			return l
		}
	}
	t.Fatalf("no line containing %q in:\n%s", needle, out)
	return ""
}

// =============================================================================
// FIELD FORMATTING
// =============================================================================

func TestMoney_FixedWidth(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5850", "     5,850.00"},
		{"-200", "      200.00-"},
		{"0", "             "},
		{"0.004", "             "},
		{"-0.5", "        0.50-"},
		{"1234567.891", " 1,234,567.89"},
		{"999.995", "     1,000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := breakdown.Money(d(tt.in), breakdown.MoneyWidth)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, breakdown.MoneyWidth)
		})
	}
}

func TestPercentBadgeName(t *testing.T) {
	assert.Equal(t, "  60", breakdown.Percent(d("60"), breakdown.PercentWidth))
	assert.Equal(t, " 100", breakdown.Percent(d("100"), breakdown.PercentWidth))
	assert.Equal(t, "    ", breakdown.Percent(decimal.Zero, breakdown.PercentWidth))
	assert.Equal(t, "1234   ", breakdown.Badge(1234))
	assert.Equal(t, "A VERY LONG NAME THAT OVE", breakdown.Name("A VERY LONG NAME THAT OVERFLOWS"))
	assert.Len(t, breakdown.Name("SHORT"), breakdown.NameWidth)
}

// =============================================================================
// LAYOUT
// =============================================================================

func TestRender_HeaderAndDetailLayout(t *testing.T) {
	// GIVEN: The reference member (5000 + 1000 + 50 - 200, 60% vested)
	// WHEN:  Rendered
	// THEN:  Header and detail line match the fixed-width layout exactly

	row := associate(1234, 10, "SMITH, JOHN", "5000")
	row.Contributions = d("1000")
	row.Earnings = d("50")
	row.Distributions = d("-200")
	row.EndingBalance = d("5850")
	row.VestedAmount = d("3510")
	row.VestedPercent = d("60")

	out, err := breakdown.Render([]plan.MemberYearSummary{row}, opts(50))
	require.NoError(t, err)
	ls := lines(out)

	wantHeader := "QPAY066  PROFIT SHARING BREAKDOWN REPORT" + strings.Repeat(" ", 10) +
		"DATE 01/15/2025   PLAN YEAR 2024   PAGE    1"
	assert.Equal(t, wantHeader, ls[0])
	assert.Equal(t, "STORE 010", ls[1])
	assert.Equal(t, "", ls[2])
	assert.True(t, strings.HasPrefix(ls[3], "BADGE   NAME"))
	assert.True(t, strings.HasSuffix(ls[3], " PCT"))
	assert.True(t, strings.HasPrefix(ls[4], "------- -------------------------"))
	assert.Equal(t, breakdown.AssociatesLabel, ls[5])

	wantDetail := "1234    SMITH, JOHN" + strings.Repeat(" ", 14) +
		"      5,000.00" +
		"         50.00" +
		"      1,000.00" +
		"              " +
		"       200.00-" +
		"              " +
		"      5,850.00" +
		"      3,510.00" +
		"   60"
	assert.Equal(t, wantDetail, ls[6])

	assert.Contains(t, lineWith(t, out, "STORE 010 TOTALS"), "5,850.00")
	assert.Contains(t, lineWith(t, out, "REPORT TOTALS"), "200.00-")

	for _, l := range ls {
		assert.Equal(t, strings.TrimRight(l, " "), l, "lines are right-trimmed")
	}
}

func TestRender_SectionOrdering(t *testing.T) {
	// GIVEN: Two managers of different rank, an unmatched category and associates
	// THEN:  Management by rank then name, associates by name

	rows := []plan.MemberYearSummary{
		associate(5, 10, "ZULU", "10"),
		manager(2, 10, 2, "AARON"),
		associate(4, 10, "ALPHA", "10"),
		manager(1, 10, 1, "ZED"),
		manager(3, 10, 77, "UNMATCHED"),
	}
	out, err := breakdown.Render(rows, opts(50))
	require.NoError(t, err)

	order := []string{breakdown.ManagementLabel, "ZED", "AARON", breakdown.AssociatesLabel, "ALPHA", "UNMATCHED", "ZULU"}
	pos := -1
	for _, s := range order {
		i := strings.Index(out, s)
		require.GreaterOrEqual(t, i, 0, "missing %s", s)
		assert.Greater(t, i, pos, "%s out of order", s)
		pos = i
	}
}

func TestRender_StoresAscendingEachOnNewPage(t *testing.T) {
	rows := []plan.MemberYearSummary{
		associate(2, 30, "B", "10"),
		associate(1, 5, "A", "10"),
	}
	out, err := breakdown.Render(rows, opts(50))
	require.NoError(t, err)

	assert.Less(t, strings.Index(out, "STORE 005"), strings.Index(out, "STORE 030"))
	assert.Equal(t, 2, strings.Count(out, breakdown.ProgramID))
	assert.Equal(t, 1, strings.Count(out, breakdown.FormFeed))
	assert.Contains(t, out, breakdown.FormFeed+breakdown.ProgramID)
	assert.Contains(t, out, "PAGE    2")
}

// =============================================================================
// PAGINATION
// =============================================================================

func TestRender_PaginationHeaderCount(t *testing.T) {
	// GIVEN: N×perPage + k rows in one store
	// THEN:  N+1 headers and N form feeds

	const perPage = 5
	for _, tc := range []struct{ n, k int }{{0, 3}, {1, 1}, {2, 3}, {4, 4}} {
		t.Run(fmt.Sprintf("N=%d,k=%d", tc.n, tc.k), func(t *testing.T) {
			out, err := breakdown.Render(associates(tc.n*perPage+tc.k, 10), opts(perPage))
			require.NoError(t, err)
			assert.Equal(t, tc.n+1, strings.Count(out, breakdown.ProgramID))
			assert.Equal(t, tc.n, strings.Count(out, breakdown.FormFeed))
		})
	}
}

func TestRender_ExactMultipleHasNoTrailingPage(t *testing.T) {
	out, err := breakdown.Render(associates(10, 10), opts(5))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, breakdown.ProgramID))
	assert.Equal(t, 1, strings.Count(out, breakdown.FormFeed))
}

func TestRender_BreaksMidSection(t *testing.T) {
	// GIVEN: 3 managers and 4 associates with 5 lines per page
	// THEN:  Page 2 continues the associates section

	rows := []plan.MemberYearSummary{
		manager(1, 10, 1, "M1"), manager(2, 10, 1, "M2"), manager(3, 10, 1, "M3"),
	}
	rows = append(rows, associates(4, 10)...)
	out, err := breakdown.Render(rows, opts(5))
	require.NoError(t, err)

	pages := strings.Split(out, breakdown.FormFeed)
	require.Len(t, pages, 2)
	assert.Contains(t, pages[0], "ASSOC 001")
	assert.NotContains(t, pages[0], "ASSOC 002")
	assert.Contains(t, pages[1], breakdown.AssociatesLabel)
	assert.Contains(t, pages[1], "ASSOC 003")
	assert.Contains(t, pages[1], "PAGE    2")
}

// =============================================================================
// SUPPRESSION
// =============================================================================

func inactiveZero(badge, store int, name string) plan.MemberYearSummary {
	r := associate(badge, store, name, "0")
	r.Status = plan.StatusInactive
	return r
}

func terminatedZero(badge, store int, name string) plan.MemberYearSummary {
	r := inactiveZero(badge, store, name)
	r.Status = plan.StatusTerminated
	return r
}

func TestRender_ZeroBalanceInactiveStoreOmitted(t *testing.T) {
	// GIVEN: Store 20 where every member is inactive with zero balance
	// THEN:  No header emitted for it

	rows := []plan.MemberYearSummary{
		associate(1, 10, "KEEP", "10"),
		inactiveZero(2, 20, "GONE"),
		terminatedZero(3, 20, "ALSO GONE"),
	}
	out, err := breakdown.Render(rows, opts(50))
	require.NoError(t, err)
	assert.NotContains(t, out, "STORE 020")
	assert.NotContains(t, out, "GONE")
	assert.Equal(t, 1, strings.Count(out, breakdown.ProgramID))
}

func TestRender_AlwaysShowStoreEmitsEmptyBody(t *testing.T) {
	rows := []plan.MemberYearSummary{inactiveZero(1, 700, "GHOST")}
	out, err := breakdown.Render(rows, opts(50))
	require.NoError(t, err)

	ls := lines(out)
	require.Len(t, ls, 5, "header, store, blank, titles, dashes")
	assert.Equal(t, "STORE 700", ls[1])
	assert.NotContains(t, out, "GHOST")
	assert.NotContains(t, out, breakdown.AssociatesLabel)
	assert.NotContains(t, out, "TOTALS")
}

func TestRender_KeepZeroBalanceStores(t *testing.T) {
	o := opts(50)
	o.KeepZeroBalanceStores = []int{20}
	out, err := breakdown.Render([]plan.MemberYearSummary{inactiveZero(2, 20, "KEPT")}, o)
	require.NoError(t, err)
	assert.Contains(t, out, "KEPT")
}

func TestRender_ActiveZeroBalanceShown(t *testing.T) {
	out, err := breakdown.Render([]plan.MemberYearSummary{associate(2, 20, "ACTIVE ZERO", "0")}, opts(50))
	require.NoError(t, err)
	assert.Contains(t, out, "ACTIVE ZERO")
}

func TestRender_EmptyAndInvalid(t *testing.T) {
	out, err := breakdown.Render(nil, opts(50))
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = breakdown.Render(associates(1, 10), opts(0))
	assert.Error(t, err)
}

func TestRankTable(t *testing.T) {
	ranks := breakdown.DefaultRankTable()
	assert.Equal(t, 10, ranks.Rank(1, 1))
	assert.Equal(t, breakdown.AssociateRank, ranks.Rank(42, 42))
	assert.True(t, breakdown.IsManagement(ranks.Rank(1, 2)))
	assert.False(t, breakdown.IsManagement(breakdown.AssociateRank))
}

// =============================================================================
// GOLDEN REPORTS
// =============================================================================

var update = flag.Bool("update", false, "rewrite testdata/*.txt from the renderer")

var (
	reportField  = regexp.MustCompile(`\S+`)
	numericField = regexp.MustCompile(`^[0-9][0-9,]*(\.[0-9]+)?-?$`)
	statusFields = map[string]bool{
		"A": true, "I": true, "T": true, "D": true,
		"ACTIVE": true, "INACTIVE": true, "TERMINATED": true, "DECEASED": true,
	}
)

// normaliseField drops leading zeros from numbers and upper-cases status
// codes. Every other field is left as printed.
func normaliseField(f string) string {
	if numericField.MatchString(f) {
		n := strings.TrimLeft(f, "0")
		if n == "" || !strings.ContainsAny(n[:1], "123456789") {
			n = "0" + n
		}
		return n
	}
	if up := strings.ToUpper(f); statusFields[up] {
		return up
	}
	return f
}

func normaliseReport(out string) []string {
	ls := strings.Split(out, "\n")
	for i, l := range ls {
		ls[i] = reportField.ReplaceAllStringFunc(l, normaliseField)
	}
	return ls
}

// assertSameReport compares reports line by line. Spacing, form feeds and
// labels must match exactly.
func assertSameReport(t *testing.T, want, got string) {
	t.Helper()
	assert.Equal(t, normaliseReport(want), normaliseReport(got))
}

func TestNormaliseField(t *testing.T) {
	assert.Equal(t, "10", normaliseField("010"))
	assert.Equal(t, "0", normaliseField("000"))
	assert.Equal(t, "0.50", normaliseField("00.50"))
	assert.Equal(t, "0.50-", normaliseField("0.50-"))
	assert.Equal(t, "1,234.00", normaliseField("01,234.00"))
	assert.Equal(t, "ACTIVE", normaliseField("active"))
	assert.Equal(t, "T", normaliseField("t"))
	assert.Equal(t, "Smith,", normaliseField("Smith,"))
	assert.Equal(t, "QPAY066", normaliseField("QPAY066"))
}

func TestAssertSameReport_SpacingStillCounts(t *testing.T) {
	assert.Equal(t, normaliseReport("STORE 010\n"), normaliseReport("STORE 10\n"))
	assert.NotEqual(t, normaliseReport("STORE  10\n"), normaliseReport("STORE 10\n"))
	assert.NotEqual(t, normaliseReport("\fQPAY066\n"), normaliseReport("QPAY066\n"))
	assert.NotEqual(t, normaliseReport("associates\n"), normaliseReport("ASSOCIATES\n"))
}

// summary builds a row from the eight money columns in report order.
func summary(badge, store int, name string, status plan.EmploymentStatus, pct int, cols ...string) plan.MemberYearSummary {
	r := plan.MemberYearSummary{
		MemberID:          plan.MemberID(fmt.Sprintf("m-%d", badge)),
		Badge:             badge,
		FullName:          name,
		Store:             store,
		Department:        9,
		PayClassification: 9,
		Status:            status,
		VestedPercent:     decimal.NewFromInt(int64(pct)),
	}
	fields := []*decimal.Decimal{
		&r.BeginningBalance, &r.Earnings, &r.Contributions, &r.Forfeitures,
		&r.Distributions, &r.BeneficiaryAllocation, &r.EndingBalance, &r.VestedAmount,
	}
	for i, c := range cols {
		*fields[i] = d(c)
	}
	return r
}

func multiStoreRows() []plan.MemberYearSummary {
	baker := summary(101, 10, "BAKER, ANN", plan.StatusActive, 80, "12000", "480.25", "1500", "0", "-2500", "0", "11480.25", "9184.20")
	baker.Department, baker.PayClassification = 1, 1
	adams := summary(102, 10, "ADAMS, TOM", plan.StatusActive, 20, "3000", "120", "900", "0", "0", "0", "4020", "804")
	adams.Department, adams.PayClassification = 1, 2

	return []plan.MemberYearSummary{
		summary(205, 10, "YOUNG, KIM", plan.StatusActive, 0, "0", "0", "450.50", "0", "0", "0", "450.50", "0"),
		baker,
		summary(301, 30, "DIAZ, MARIA", plan.StatusActive, 100, "1500", "60", "0", "0", "0", "250", "1810", "1810"),
		inactiveZero(206, 10, "GONE, PAT"),
		summary(204, 10, "CARTER, LEE", plan.StatusTerminated, 20, "800", "32", "300", "-226.40", "0", "0", "905.60", "181.12"),
		adams,
	}
}

func pageBreakRows() []plan.MemberYearSummary {
	rows := []plan.MemberYearSummary{
		manager(1, 10, 1, "M1"), manager(2, 10, 1, "M2"), manager(3, 10, 1, "M3"),
	}
	return append(rows, associates(4, 10)...)
}

func alwaysShowRows() []plan.MemberYearSummary {
	deceased := inactiveZero(3, 700, "GHOST, TWO")
	deceased.Status = plan.StatusDeceased
	return []plan.MemberYearSummary{
		associate(1, 10, "KEEP, ME", "10"),
		inactiveZero(2, 700, "GHOST, ONE"),
		deceased,
	}
}

func TestRender_GoldenReports(t *testing.T) {
	tests := []struct {
		name         string
		rows         []plan.MemberYearSummary
		linesPerPage int
	}{
		{"multi_store", multiStoreRows(), 50},
		{"page_break", pageBreakRows(), 5},
		{"always_show_store", alwaysShowRows(), 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: A fixed population and the legacy layout
			path := filepath.Join("testdata", tt.name+".txt")

			// WHEN: The report is rendered
			out, err := breakdown.Render(tt.rows, opts(tt.linesPerPage))
			require.NoError(t, err)
			if *update {
				require.NoError(t, os.WriteFile(path, []byte(out), 0o644))
			}

			// THEN: It matches the stored report
			want, err := os.ReadFile(path)
			require.NoError(t, err)
			assertSameReport(t, string(want), out)
		})
	}
}
