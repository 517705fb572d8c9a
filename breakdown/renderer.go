/*
Package breakdown renders the store breakdown report in the fixed-width
layout of the legacy QPAY066 print program.

PURPOSE:
  Render is a pure function from member-year summaries to report text. It
  performs no data access; callers aggregate and filter first.

LAYOUT:
  Every page starts with a header line (program id, title, run date, plan
  year, page number), a store line and the column header block. Each store
  lists a STORE MANAGEMENT section (rank order, then name) and an
  ASSOCIATES section (name order), followed by a store totals line. The
  report ends with a report totals line.

  Columns: badge (7, left), name (25, left), eight money columns (13,
  right) and the vested percentage (4, right). Money is blank when zero,
  uses thousands separators and a trailing minus. Lines are right-trimmed.

PAGINATION:
  LinesPerPage counts detail rows. When a page is full and another row
  follows, a form feed and a fresh header are emitted, mid-section if need
  be. Each store starts on a new page. Totals lines do not count.

SUPPRESSION:
  Rows with a zero ending balance whose member is inactive, terminated or
  deceased are dropped unless their store is in KeepZeroBalanceStores. A
  store left with no rows is skipped, except AlwaysShowStore which prints
  its header block with an empty body.

SEE ALSO:
  - format.go: Field formatting
  - rank.go: Management rank table
*/
package breakdown

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/profit-sharing/plan"
)

const (
	ProgramID           = "QPAY066"
	DefaultTitle        = "PROFIT SHARING BREAKDOWN REPORT"
	DefaultLinesPerPage = 50
	DefaultAlwaysShow   = 700

	ManagementLabel = "STORE MANAGEMENT"
	AssociatesLabel = "ASSOCIATES"
	FormFeed        = "\f"
)

// Options controls layout and suppression.
type Options struct {
	Title        string
	Year         int
	RunDate      time.Time
	LinesPerPage int

	// AlwaysShowStore is printed even when every row is suppressed. Zero
	// disables the exception.
	AlwaysShowStore       int
	KeepZeroBalanceStores []int

	Ranks RankTable
}

// DefaultOptions returns the legacy layout for a plan year.
func DefaultOptions(year int, runDate time.Time) Options {
	return Options{
		Title:           DefaultTitle,
		Year:            year,
		RunDate:         runDate,
		LinesPerPage:    DefaultLinesPerPage,
		AlwaysShowStore: DefaultAlwaysShow,
		Ranks:           DefaultRankTable(),
	}
}

var errLinesPerPage = errors.New("breakdown: lines per page must be positive")

// =============================================================================
// RENDER
// =============================================================================

// Render produces the report text.
func Render(rows []plan.MemberYearSummary, opts Options) (string, error) {
	if opts.LinesPerPage <= 0 {
		return "", errLinesPerPage
	}
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	if opts.Ranks == nil {
		opts.Ranks = RankTable{}
	}

	r := &renderer{opts: opts}
	var report columnTotals
	for _, g := range group(rows, opts) {
		if len(g.management)+len(g.associates) == 0 {
			if g.store == opts.AlwaysShowStore && opts.AlwaysShowStore != 0 {
				r.startPage(g.store)
			}
			continue
		}
		r.startPage(g.store)
		var store columnTotals
		for _, sec := range []struct {
			label string
			rows  []plan.MemberYearSummary
		}{
			{ManagementLabel, g.management},
			{AssociatesLabel, g.associates},
		} {
			if len(sec.rows) == 0 {
				continue
			}
			if r.detail == opts.LinesPerPage {
				r.startPage(g.store)
			}
			r.line(sec.label)
			for _, row := range sec.rows {
				if r.detail == opts.LinesPerPage {
					r.startPage(g.store)
					r.line(sec.label)
				}
				r.line(detailLine(row))
				r.detail++
				store.addRow(row)
			}
		}
		r.line(store.line(fmt.Sprintf("STORE %03d TOTALS", g.store)))
		report.add(store.sum...)
	}
	if report.sum != nil {
		r.line(report.line("REPORT TOTALS"))
	}
	return r.b.String(), nil
}

type renderer struct {
	opts   Options
	b      strings.Builder
	page   int
	detail int
}

func (r *renderer) line(s string) {
	r.b.WriteString(strings.TrimRight(s, " "))
	r.b.WriteByte('\n')
}

func (r *renderer) startPage(store int) {
	if r.page > 0 {
		r.b.WriteString(FormFeed)
	}
	r.page++
	r.detail = 0
	r.line(headerLine(r.opts, r.page))
	r.line(fmt.Sprintf("STORE %03d", store))
	r.line("")
	for _, l := range columnBlock() {
		r.line(l)
	}
}

// =============================================================================
// LINES
// =============================================================================

func headerLine(opts Options, page int) string {
	return fmt.Sprintf("%-8s %-40s DATE %s   PLAN YEAR %d   PAGE %4d",
		ProgramID, opts.Title, opts.RunDate.Format("01/02/2006"), opts.Year, page)
}

var moneyTitles = []string{
	"BEGINNING", "EARNINGS", "CONTRIBUTION", "FORFEITURE",
	"DISTRIBUTION", "BENEFICIARY", "ENDING", "VESTED",
}

func columnBlock() []string {
	var titles, dashes strings.Builder
	titles.WriteString(padRight("BADGE", BadgeWidth) + " " + padRight("NAME", NameWidth))
	dashes.WriteString(strings.Repeat("-", BadgeWidth) + " " + strings.Repeat("-", NameWidth))
	for _, t := range moneyTitles {
		titles.WriteString(" " + padLeft(t, MoneyWidth))
		dashes.WriteString(" " + strings.Repeat("-", MoneyWidth))
	}
	titles.WriteString(" " + padLeft("PCT", PercentWidth))
	dashes.WriteString(" " + strings.Repeat("-", PercentWidth))
	return []string{titles.String(), dashes.String()}
}

func moneyColumns(row plan.MemberYearSummary) []decimal.Decimal {
	return []decimal.Decimal{
		row.BeginningBalance,
		row.Earnings,
		row.Contributions,
		row.Forfeitures,
		row.Distributions,
		row.BeneficiaryAllocation,
		row.EndingBalance,
		row.VestedAmount,
	}
}

func detailLine(row plan.MemberYearSummary) string {
	var b strings.Builder
	b.WriteString(Badge(row.Badge) + " " + Name(row.FullName))
	for _, v := range moneyColumns(row) {
		b.WriteString(" " + Money(v, MoneyWidth))
	}
	b.WriteString(" " + Percent(row.VestedPercent, PercentWidth))
	return b.String()
}

type columnTotals struct {
	sum []decimal.Decimal
}

func (t *columnTotals) add(vals ...decimal.Decimal) {
	if t.sum == nil {
		t.sum = make([]decimal.Decimal, len(moneyTitles))
	}
	for i, v := range vals {
		t.sum[i] = t.sum[i].Add(v)
	}
}

func (t *columnTotals) line(label string) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", BadgeWidth) + " " + Name(label))
	for i := range moneyTitles {
		v := decimal.Zero
		if t.sum != nil {
			v = t.sum[i]
		}
		b.WriteString(" " + Money(v, MoneyWidth))
	}
	return b.String()
}

func (t *columnTotals) addRow(row plan.MemberYearSummary) { t.add(moneyColumns(row)...) }

// =============================================================================
// GROUPING
// =============================================================================

type storeGroup struct {
	store      int
	management []plan.MemberYearSummary
	associates []plan.MemberYearSummary
}

func group(rows []plan.MemberYearSummary, opts Options) []storeGroup {
	keep := make(map[int]bool, len(opts.KeepZeroBalanceStores))
	for _, s := range opts.KeepZeroBalanceStores {
		keep[s] = true
	}

	byStore := make(map[int]*storeGroup)
	var stores []int
	for _, row := range rows {
		g, ok := byStore[row.Store]
		if !ok {
			g = &storeGroup{store: row.Store}
			byStore[row.Store] = g
			stores = append(stores, row.Store)
		}
		if suppressed(row, keep) {
			continue
		}
		row.SortRank = opts.Ranks.Rank(row.Department, row.PayClassification)
		if IsManagement(row.SortRank) {
			g.management = append(g.management, row)
		} else {
			g.associates = append(g.associates, row)
		}
	}
	sort.Ints(stores)

	result := make([]storeGroup, 0, len(stores))
	for _, s := range stores {
		g := byStore[s]
		sort.SliceStable(g.management, func(i, j int) bool {
			a, b := g.management[i], g.management[j]
			if a.SortRank != b.SortRank {
				return a.SortRank < b.SortRank
			}
			return byName(a, b)
		})
		sort.SliceStable(g.associates, func(i, j int) bool {
			return byName(g.associates[i], g.associates[j])
		})
		result = append(result, *g)
	}
	return result
}

func byName(a, b plan.MemberYearSummary) bool {
	if a.FullName != b.FullName {
		return a.FullName < b.FullName
	}
	return a.Badge < b.Badge
}

func suppressed(row plan.MemberYearSummary, keep map[int]bool) bool {
	if !row.EndingBalance.IsZero() || keep[row.Store] {
		return false
	}
	switch row.Status {
	case plan.StatusInactive, plan.StatusTerminated, plan.StatusDeceased:
		return true
	}
	return false
}
