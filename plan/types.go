/*
Package plan provides the core data model of the profit-sharing engine.

PURPOSE:
  This package contains the types every other package speaks: members,
  their year-scoped records, the append-only transaction ledger and the
  derived per-member year summary that reports are built from. It has no
  knowledge of storage technology, transport or report layout.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member: A plan participant or beneficiary (identity + demographics)
  - YearRecord: Year-scoped state stamped by the year-end close
  - TransactionDetail: An immutable ledger row classified by ProfitCode
  - MemberYearSummary: The derived report row (never persisted)

DESIGN PRINCIPLES:
  1. Immutability: Transaction rows are never modified, only appended
  2. Precision: Money is decimal.Decimal, never float64
  3. Type Safety: MemberID and ProfitCode are distinct types
  4. Derivation: Balances are always recomputed from the ledger

USAGE:
  row := plan.TransactionDetail{
      MemberID:     "m-1001",
      Year:         2024,
      Code:         plan.CodeIncomingContribution,
      Contribution: plan.Money("1000.00"),
  }

SEE ALSO:
  - profitcode.go: Profit-code to balance bucket mapping
  - store.go: Repository interfaces
  - errors.go: Error taxonomy
*/
package plan

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type TransactionID string

// =============================================================================
// MONEY HELPERS
// =============================================================================

// Money parses a decimal literal. Invalid input yields zero; use it for
// constants and tests, never for user input.
func Money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Cents rounds a monetary value to two fractional digits (half away from zero).
func Cents(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// =============================================================================
// MEMBER
// =============================================================================

type EmploymentStatus string

const (
	StatusActive     EmploymentStatus = "a"
	StatusInactive   EmploymentStatus = "i"
	StatusTerminated EmploymentStatus = "t"
	StatusDeceased   EmploymentStatus = "d"
)

// IsActive reports whether the member is currently employed.
func (s EmploymentStatus) IsActive() bool { return s == StatusActive }

type Enrollment string

const (
	EnrollmentEmployee    Enrollment = "employee"
	EnrollmentBeneficiary Enrollment = "beneficiary"
)

// Member is a plan participant (employee) or a beneficiary holding a
// balance transferred from a participant.
type Member struct {
	ID                MemberID
	Badge             int
	FullName          string
	Store             int
	Department        int
	PayClassification int
	Status            EmploymentStatus
	DateOfBirth       time.Time
	HireDate          time.Time
	TerminationDate   *time.Time
	Enrollment        Enrollment
}

func (m Member) IsBeneficiary() bool { return m.Enrollment == EnrollmentBeneficiary }

// =============================================================================
// YEAR RECORD - One per member per plan year
// =============================================================================

type EmployeeType int

const (
	EmployeeTypeIneligible  EmployeeType = 0
	EmployeeTypeNewInPlan   EmployeeType = 1
	EmployeeTypeRegular     EmployeeType = 2
	EmployeeTypeBeneficiary EmployeeType = 3
)

func (t EmployeeType) String() string {
	switch t {
	case EmployeeTypeNewInPlan:
		return "new_in_plan"
	case EmployeeTypeRegular:
		return "regular"
	case EmployeeTypeBeneficiary:
		return "beneficiary"
	default:
		return "ineligible"
	}
}

// ZeroContributionReason explains why a member received no contribution.
type ZeroContributionReason int

const (
	ZeroContNormal ZeroContributionReason = iota
	ZeroContUnder21Over1000Hours
	ZeroContTerminatedOver1000Hours
	ZeroContOver64Under1000Hours
	ZeroContBelowMinimumHours
	ZeroContOver64Over1000Hours
	ZeroContSixtyFiveVested
	ZeroContBeneficiary
)

var zeroContDescriptions = map[ZeroContributionReason]string{
	ZeroContNormal:                  "Normal",
	ZeroContUnder21Over1000Hours:    "18, 19, 20 with 1000+ hours",
	ZeroContTerminatedOver1000Hours: "Terminated with 1000+ hours, vesting credit only",
	ZeroContOver64Under1000Hours:    "Over 64 with under 1000 hours, 1 year vesting credit",
	ZeroContBelowMinimumHours:       "Under minimum hours",
	ZeroContOver64Over1000Hours:     "Over 64 with 1000+ hours, vesting credit only",
	ZeroContSixtyFiveVested:         "65 and over, first contribution 5+ years ago, 100% vested",
	ZeroContBeneficiary:             "Beneficiary, no contribution",
}

func (r ZeroContributionReason) String() string {
	if d, ok := zeroContDescriptions[r]; ok {
		return d
	}
	return "Unknown"
}

// YearRecord holds year-scoped state. Created lazily when a year is first
// touched; updated by the year-end close; never deleted.
type YearRecord struct {
	MemberID               MemberID
	Year                   int
	Hours                  decimal.Decimal
	Income                 decimal.Decimal
	WeeksWorked            int
	YearsInPlan            int
	Points                 int
	ZeroContributionReason ZeroContributionReason
	CertificateIssuedDate  *time.Time
	EmployeeType           EmployeeType
	Eligible               bool
	ClosedAt               *time.Time
}

// Equal compares every persisted field. Used to prove rollbacks restore state.
func (r YearRecord) Equal(o YearRecord) bool {
	return r.MemberID == o.MemberID &&
		r.Year == o.Year &&
		r.Hours.Equal(o.Hours) &&
		r.Income.Equal(o.Income) &&
		r.WeeksWorked == o.WeeksWorked &&
		r.YearsInPlan == o.YearsInPlan &&
		r.Points == o.Points &&
		r.ZeroContributionReason == o.ZeroContributionReason &&
		timePtrEqual(r.CertificateIssuedDate, o.CertificateIssuedDate) &&
		r.EmployeeType == o.EmployeeType &&
		r.Eligible == o.Eligible &&
		timePtrEqual(r.ClosedAt, o.ClosedAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// =============================================================================
// TRANSACTION DETAIL - Immutable ledger row
// =============================================================================

type TransactionDetail struct {
	ID             TransactionID
	MemberID       MemberID
	Year           int
	Code           ProfitCode
	Contribution   decimal.Decimal
	Earnings       decimal.Decimal
	Forfeiture     decimal.Decimal
	Remark         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// BALANCE SNAPSHOT - Ending balance persisted by a committed close
// =============================================================================

type BalanceSnapshot struct {
	MemberID MemberID
	Year     int
	Ending   decimal.Decimal
	Vested   decimal.Decimal
}

// =============================================================================
// MEMBER YEAR SUMMARY - The report row shape (derived, never persisted)
// =============================================================================

type MemberYearSummary struct {
	MemberID          MemberID
	Badge             int
	FullName          string
	Store             int
	Department        int
	PayClassification int
	Status            EmploymentStatus
	Enrollment        Enrollment
	DateOfBirth       time.Time
	SortRank          int

	BeginningBalance      decimal.Decimal
	Earnings              decimal.Decimal
	Contributions         decimal.Decimal
	Forfeitures           decimal.Decimal
	Distributions         decimal.Decimal
	BeneficiaryAllocation decimal.Decimal
	EndingBalance         decimal.Decimal

	VestingRatio  decimal.Decimal
	VestedAmount  decimal.Decimal
	VestedPercent decimal.Decimal
	Etva          decimal.Decimal

	// Warnings carries per-row data-quality anomalies (e.g. an
	// AggregationInconsistency). The row is still reported.
	Warnings []string
}

// ComputedEnding re-derives the ending balance from the buckets.
func (s MemberYearSummary) ComputedEnding() decimal.Decimal {
	return s.BeginningBalance.
		Add(s.Contributions).
		Add(s.Earnings).
		Add(s.Forfeitures).
		Add(s.Distributions).
		Add(s.BeneficiaryAllocation)
}

// =============================================================================
// CLOSING RUN - Job row for the year-end close
// =============================================================================

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

func (s RunStatus) Terminal() bool { return s == RunCompleted || s == RunFailed }

type ClosingRun struct {
	ID               string
	Year             int
	Status           RunStatus
	Committed        bool
	MembersProcessed int
	Error            string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
}
