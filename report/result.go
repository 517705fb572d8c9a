package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/profit-sharing/plan"
)

// =============================================================================
// RESULT - One shape for every report
// =============================================================================

// Result is the envelope of a report. Capabilities such as CSV export or a
// totals line are discovered on Rows through the interfaces below.
type Result[T any] struct {
	Name        string    `json:"name"`
	Year        int       `json:"year"`
	GeneratedAt time.Time `json:"generatedAt"`
	Rows        T         `json:"rows"`
}

// CSVProducer is implemented by row sets that export to CSV.
type CSVProducer interface {
	CSVHeader() []string
	CSVRecords() [][]string
}

// TotalsProvider is implemented by row sets with a totals line.
type TotalsProvider interface {
	Totals() map[string]decimal.Decimal
}

// CSV returns the rows as a CSVProducer when they support it.
func (r Result[T]) CSV() (CSVProducer, bool) {
	p, ok := any(r.Rows).(CSVProducer)
	return p, ok
}

// Totals returns the totals of the rows when they provide them.
func (r Result[T]) Totals() (map[string]decimal.Decimal, bool) {
	p, ok := any(r.Rows).(TotalsProvider)
	if !ok {
		return nil, false
	}
	return p.Totals(), true
}

// WriteCSV writes a header and all records.
func WriteCSV(w io.Writer, p CSVProducer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(p.CSVHeader()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(p.CSVRecords()); err != nil {
		return fmt.Errorf("write csv records: %w", err)
	}
	return nil
}

// =============================================================================
// SUMMARY ROWS
// =============================================================================

// SummaryRows is the row set of ComputeYearSummaries.
type SummaryRows []plan.MemberYearSummary

func (s SummaryRows) CSVHeader() []string {
	return []string{
		"member_id", "badge", "name", "store", "status", "beginning_balance",
		"contributions", "earnings", "forfeitures", "distributions",
		"beneficiary_allocation", "ending_balance", "vesting_ratio",
		"vested_amount", "vested_percent", "etva", "warnings",
	}
}

func (s SummaryRows) CSVRecords() [][]string {
	records := make([][]string, 0, len(s))
	for _, r := range s {
		records = append(records, []string{
			string(r.MemberID),
			strconv.Itoa(r.Badge),
			r.FullName,
			strconv.Itoa(r.Store),
			string(r.Status),
			r.BeginningBalance.StringFixed(2),
			r.Contributions.StringFixed(2),
			r.Earnings.StringFixed(2),
			r.Forfeitures.StringFixed(2),
			r.Distributions.StringFixed(2),
			r.BeneficiaryAllocation.StringFixed(2),
			r.EndingBalance.StringFixed(2),
			r.VestingRatio.String(),
			r.VestedAmount.StringFixed(2),
			r.VestedPercent.StringFixed(0),
			r.Etva.StringFixed(2),
			strings.Join(r.Warnings, "; "),
		})
	}
	return records
}

func (s SummaryRows) Totals() map[string]decimal.Decimal {
	t := map[string]decimal.Decimal{
		"beginning_balance":      decimal.Zero,
		"contributions":          decimal.Zero,
		"earnings":               decimal.Zero,
		"forfeitures":            decimal.Zero,
		"distributions":          decimal.Zero,
		"beneficiary_allocation": decimal.Zero,
		"ending_balance":         decimal.Zero,
		"vested_amount":          decimal.Zero,
	}
	for _, r := range s {
		t["beginning_balance"] = t["beginning_balance"].Add(r.BeginningBalance)
		t["contributions"] = t["contributions"].Add(r.Contributions)
		t["earnings"] = t["earnings"].Add(r.Earnings)
		t["forfeitures"] = t["forfeitures"].Add(r.Forfeitures)
		t["distributions"] = t["distributions"].Add(r.Distributions)
		t["beneficiary_allocation"] = t["beneficiary_allocation"].Add(r.BeneficiaryAllocation)
		t["ending_balance"] = t["ending_balance"].Add(r.EndingBalance)
		t["vested_amount"] = t["vested_amount"].Add(r.VestedAmount)
	}
	return t
}

// EligibleRows lists eligible members. It has no totals line.
type EligibleRows []plan.MemberID

func (e EligibleRows) CSVHeader() []string { return []string{"member_id"} }

func (e EligibleRows) CSVRecords() [][]string {
	records := make([][]string, len(e))
	for i, id := range e {
		records[i] = []string{string(id)}
	}
	return records
}
