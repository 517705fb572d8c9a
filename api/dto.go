/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract. Money is always a
  string with two decimals so clients never see floating point.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Members:      MemberDTO, CreateMemberRequest
  Records:      YearRecordRequest
  Ledger:       CreateTransactionRequest, TransactionDTO
  Periods:      PeriodRequest
  Summaries:    SummaryDTO, SummariesResponse
  Eligibility:  EligibilityDTO
  Close:        WhatIfRequest, ClosingResultDTO, MemberOutcomeDTO, RunDTO
  Scenarios:    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags and are checked by
  decodeAndValidate before a handler touches them.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/report"
	"github.com/warp/profit-sharing/yearend"
)

const dateLayout = "2006-01-02"

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID                string  `json:"id"`
	Badge             int     `json:"badge"`
	FullName          string  `json:"full_name"`
	Store             int     `json:"store"`
	Department        int     `json:"department"`
	PayClassification int     `json:"pay_classification"`
	Status            string  `json:"status"`
	DateOfBirth       string  `json:"date_of_birth"`
	HireDate          string  `json:"hire_date,omitempty"`
	TerminationDate   *string `json:"termination_date,omitempty"`
	Enrollment        string  `json:"enrollment"`
}

// CreateMemberRequest creates or updates a member.
type CreateMemberRequest struct {
	ID                string  `json:"id" validate:"required,max=36"`
	Badge             int     `json:"badge" validate:"required,gt=0,lte=9999999"`
	FullName          string  `json:"full_name" validate:"required,max=40"`
	Store             int     `json:"store" validate:"gte=0,lte=999"`
	Department        int     `json:"department" validate:"gte=0"`
	PayClassification int     `json:"pay_classification" validate:"gte=0"`
	Status            string  `json:"status" validate:"required,oneof=a i t d"`
	DateOfBirth       string  `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	HireDate          string  `json:"hire_date" validate:"omitempty,datetime=2006-01-02"`
	TerminationDate   *string `json:"termination_date" validate:"omitempty,datetime=2006-01-02"`
	Enrollment        string  `json:"enrollment" validate:"omitempty,oneof=employee beneficiary"`
}

func (r CreateMemberRequest) toMember() plan.Member {
	m := plan.Member{
		ID:                plan.MemberID(r.ID),
		Badge:             r.Badge,
		FullName:          r.FullName,
		Store:             r.Store,
		Department:        r.Department,
		PayClassification: r.PayClassification,
		Status:            plan.EmploymentStatus(r.Status),
		Enrollment:        plan.Enrollment(r.Enrollment),
	}
	if m.Enrollment == "" {
		m.Enrollment = plan.EnrollmentEmployee
	}
	// Formats are checked by the validator.
	m.DateOfBirth, _ = time.Parse(dateLayout, r.DateOfBirth)
	if r.HireDate != "" {
		m.HireDate, _ = time.Parse(dateLayout, r.HireDate)
	}
	if r.TerminationDate != nil {
		t, _ := time.Parse(dateLayout, *r.TerminationDate)
		m.TerminationDate = &t
	}
	return m
}

func toMemberDTO(m plan.Member) MemberDTO {
	dto := MemberDTO{
		ID:                string(m.ID),
		Badge:             m.Badge,
		FullName:          m.FullName,
		Store:             m.Store,
		Department:        m.Department,
		PayClassification: m.PayClassification,
		Status:            string(m.Status),
		DateOfBirth:       formatDate(m.DateOfBirth),
		HireDate:          formatDate(m.HireDate),
		Enrollment:        string(m.Enrollment),
	}
	if m.TerminationDate != nil {
		s := formatDate(*m.TerminationDate)
		dto.TerminationDate = &s
	}
	return dto
}

// =============================================================================
// YEAR RECORDS / PERIODS
// =============================================================================

// YearRecordRequest loads the HR feed for one member-year.
type YearRecordRequest struct {
	MemberID    string `json:"member_id" validate:"required"`
	Hours       string `json:"hours" validate:"omitempty,numeric"`
	Income      string `json:"income" validate:"omitempty,numeric"`
	WeeksWorked int    `json:"weeks_worked" validate:"gte=0,lte=53"`
	YearsInPlan int    `json:"years_in_plan" validate:"gte=0"`
}

// PeriodRequest sets the fiscal boundaries of a plan year.
type PeriodRequest struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// CreateTransactionRequest appends a ledger row.
type CreateTransactionRequest struct {
	MemberID       string `json:"member_id" validate:"required"`
	Year           int    `json:"year" validate:"required,gte=1900,lte=2999"`
	ProfitCode     *int   `json:"profit_code" validate:"required,gte=0,lte=9"`
	Contribution   string `json:"contribution" validate:"omitempty,numeric"`
	Earnings       string `json:"earnings" validate:"omitempty,numeric"`
	Forfeiture     string `json:"forfeiture" validate:"omitempty,numeric"`
	Remark         string `json:"remark" validate:"max=80"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=128"`
}

// TransactionDTO represents a ledger row.
type TransactionDTO struct {
	ID             string `json:"id"`
	MemberID       string `json:"member_id"`
	Year           int    `json:"year"`
	ProfitCode     int    `json:"profit_code"`
	CodeName       string `json:"code_name"`
	Contribution   string `json:"contribution"`
	Earnings       string `json:"earnings"`
	Forfeiture     string `json:"forfeiture"`
	Remark         string `json:"remark,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toTransactionDTO(tx plan.TransactionDetail) TransactionDTO {
	return TransactionDTO{
		ID:             string(tx.ID),
		MemberID:       string(tx.MemberID),
		Year:           tx.Year,
		ProfitCode:     int(tx.Code),
		CodeName:       tx.Code.String(),
		Contribution:   money(tx.Contribution),
		Earnings:       money(tx.Earnings),
		Forfeiture:     money(tx.Forfeiture),
		Remark:         tx.Remark,
		IdempotencyKey: tx.IdempotencyKey,
		CreatedAt:      tx.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// SUMMARIES
// =============================================================================

// SummaryDTO is one member-year summary row.
type SummaryDTO struct {
	MemberID              string   `json:"member_id"`
	Badge                 int      `json:"badge"`
	FullName              string   `json:"full_name"`
	Store                 int      `json:"store"`
	Status                string   `json:"status"`
	SortRank              int      `json:"sort_rank"`
	BeginningBalance      string   `json:"beginning_balance"`
	Contributions         string   `json:"contributions"`
	Earnings              string   `json:"earnings"`
	Forfeitures           string   `json:"forfeitures"`
	Distributions         string   `json:"distributions"`
	BeneficiaryAllocation string   `json:"beneficiary_allocation"`
	EndingBalance         string   `json:"ending_balance"`
	VestedAmount          string   `json:"vested_amount"`
	VestedPercent         string   `json:"vested_percent"`
	Etva                  string   `json:"etva"`
	Warnings              []string `json:"warnings,omitempty"`
}

// SummariesResponse wraps the summary rows with their totals line.
type SummariesResponse struct {
	Name        string            `json:"name"`
	Year        int               `json:"year"`
	GeneratedAt string            `json:"generated_at"`
	Rows        []SummaryDTO      `json:"rows"`
	Totals      map[string]string `json:"totals,omitempty"`
}

func toSummariesResponse(res report.Result[report.SummaryRows]) SummariesResponse {
	out := SummariesResponse{
		Name:        res.Name,
		Year:        res.Year,
		GeneratedAt: res.GeneratedAt.Format(time.RFC3339),
		Rows:        make([]SummaryDTO, len(res.Rows)),
	}
	for i, s := range res.Rows {
		out.Rows[i] = SummaryDTO{
			MemberID:              string(s.MemberID),
			Badge:                 s.Badge,
			FullName:              s.FullName,
			Store:                 s.Store,
			Status:                string(s.Status),
			SortRank:              s.SortRank,
			BeginningBalance:      money(s.BeginningBalance),
			Contributions:         money(s.Contributions),
			Earnings:              money(s.Earnings),
			Forfeitures:           money(s.Forfeitures),
			Distributions:         money(s.Distributions),
			BeneficiaryAllocation: money(s.BeneficiaryAllocation),
			EndingBalance:         money(s.EndingBalance),
			VestedAmount:          money(s.VestedAmount),
			VestedPercent:         s.VestedPercent.StringFixed(0),
			Etva:                  money(s.Etva),
			Warnings:              s.Warnings,
		}
	}
	if totals, ok := res.Totals(); ok {
		out.Totals = make(map[string]string, len(totals))
		for k, v := range totals {
			out.Totals[k] = money(v)
		}
	}
	return out
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

// EligibilityDTO lists the eligible members of a year with control counts.
type EligibilityDTO struct {
	Year          int      `json:"year"`
	Eligible      []string `json:"eligible"`
	CountRead     int      `json:"count_read"`
	CountExcluded int      `json:"count_excluded"`
	CountWritten  int      `json:"count_written"`
	Anomaly       bool     `json:"anomaly"`
}

func toEligibilityDTO(res *report.EligibilityReport) EligibilityDTO {
	ids := make([]string, len(res.Rows))
	for i, id := range res.Rows {
		ids[i] = string(id)
	}
	return EligibilityDTO{
		Year:          res.Year,
		Eligible:      ids,
		CountRead:     res.CountRead,
		CountExcluded: res.CountExcluded,
		CountWritten:  res.CountWritten,
		Anomaly:       res.Anomaly,
	}
}

// =============================================================================
// YEAR-END CLOSE / WHAT-IF
// =============================================================================

// WhatIfRequest carries simulation parameters. Percentages are 0-100.
type WhatIfRequest struct {
	ContributionPercent string `json:"contribution_percent" validate:"omitempty,numeric"`
	ForfeiturePercent   string `json:"forfeiture_percent" validate:"omitempty,numeric"`
	EarningsPercent     string `json:"earnings_percent" validate:"omitempty,numeric"`
	MaxContribution     string `json:"max_contribution" validate:"omitempty,numeric"`
	Commit              bool   `json:"commit"`
}

func (r WhatIfRequest) toParams() yearend.Params {
	return yearend.Params{
		ContributionPercent: parseDecimal(r.ContributionPercent),
		ForfeiturePercent:   parseDecimal(r.ForfeiturePercent),
		EarningsPercent:     parseDecimal(r.EarningsPercent),
		MaxContribution:     parseDecimal(r.MaxContribution),
	}
}

// RunDTO represents a closing run row.
type RunDTO struct {
	ID               string  `json:"id"`
	Year             int     `json:"year"`
	Status           string  `json:"status"`
	Committed        bool    `json:"committed"`
	MembersProcessed int     `json:"members_processed"`
	Error            string  `json:"error,omitempty"`
	StartedAt        *string `json:"started_at,omitempty"`
	CompletedAt      *string `json:"completed_at,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

func toRunDTO(r plan.ClosingRun) RunDTO {
	return RunDTO{
		ID:               r.ID,
		Year:             r.Year,
		Status:           string(r.Status),
		Committed:        r.Committed,
		MembersProcessed: r.MembersProcessed,
		Error:            r.Error,
		StartedAt:        timePtr(r.StartedAt),
		CompletedAt:      timePtr(r.CompletedAt),
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
	}
}

// MemberOutcomeDTO is the close of one member.
type MemberOutcomeDTO struct {
	MemberID               string `json:"member_id"`
	FullName               string `json:"full_name"`
	Created                bool   `json:"created"`
	EmployeeType           string `json:"employee_type"`
	ZeroContributionReason string `json:"zero_contribution_reason"`
	Eligible               bool   `json:"eligible"`
	Contributing           bool   `json:"contributing"`
	YearsInPlan            int    `json:"years_in_plan"`
	Points                 int    `json:"points"`
	EndingBalance          string `json:"ending_balance"`
	VestedAmount           string `json:"vested_amount"`
	AllocatedContribution  string `json:"allocated_contribution"`
	AllocatedForfeiture    string `json:"allocated_forfeiture"`
	AllocatedEarnings      string `json:"allocated_earnings"`
	ProjectedEnding        string `json:"projected_ending"`
}

// TotalsDTO summarises a close.
type TotalsDTO struct {
	Beginning             string `json:"beginning"`
	Contributions         string `json:"contributions"`
	Earnings              string `json:"earnings"`
	Forfeitures           string `json:"forfeitures"`
	Distributions         string `json:"distributions"`
	BeneficiaryAllocation string `json:"beneficiary_allocation"`
	LedgerEnding          string `json:"ledger_ending"`
	ProjectedEnding       string `json:"projected_ending"`
	Allocated             string `json:"allocated"`
	Points                int    `json:"points"`
	Employees             int    `json:"employees"`
	Beneficiaries         int    `json:"beneficiaries"`
}

// ClosingResultDTO is returned by close and what-if.
type ClosingResultDTO struct {
	Run            RunDTO             `json:"run"`
	PeriodStart    string             `json:"period_start"`
	PeriodEnd      string             `json:"period_end"`
	Totals         TotalsDTO          `json:"totals"`
	TotalPoints    int                `json:"total_points"`
	Contributing   int                `json:"contributing"`
	ByEmployeeType map[string]int     `json:"by_employee_type"`
	Members        []MemberOutcomeDTO `json:"members"`
}

func toClosingResultDTO(res *yearend.ClosingResult) ClosingResultDTO {
	t := res.Totals
	out := ClosingResultDTO{
		Run:         toRunDTO(res.Run.ClosingRun),
		PeriodStart: formatDate(res.Period.Start),
		PeriodEnd:   formatDate(res.Period.End),
		Totals: TotalsDTO{
			Beginning:             money(t.Beginning),
			Contributions:         money(t.Contributions),
			Earnings:              money(t.Earnings),
			Forfeitures:           money(t.Forfeitures),
			Distributions:         money(t.Distributions),
			BeneficiaryAllocation: money(t.BeneficiaryAllocation),
			LedgerEnding:          money(t.LedgerEnding),
			ProjectedEnding:       money(t.ProjectedEnding),
			Allocated:             money(t.Allocated),
			Points:                t.Points,
			Employees:             t.Employees,
			Beneficiaries:         t.Beneficiaries,
		},
		TotalPoints:    res.Points.TotalPoints,
		Contributing:   res.Points.Contributing,
		ByEmployeeType: make(map[string]int, len(res.Points.ByEmployeeType)),
		Members:        make([]MemberOutcomeDTO, len(res.Members)),
	}
	for et, n := range res.Points.ByEmployeeType {
		out.ByEmployeeType[et.String()] = n
	}
	for i, o := range res.Members {
		out.Members[i] = MemberOutcomeDTO{
			MemberID:               string(o.MemberID),
			FullName:               o.Name,
			Created:                o.Created(),
			EmployeeType:           o.Record.EmployeeType.String(),
			ZeroContributionReason: o.Record.ZeroContributionReason.String(),
			Eligible:               o.Record.Eligible,
			Contributing:           o.Contributing,
			YearsInPlan:            o.Record.YearsInPlan,
			Points:                 o.Record.Points,
			EndingBalance:          money(o.Summary.EndingBalance),
			VestedAmount:           money(o.Summary.VestedAmount),
			AllocatedContribution:  money(o.Allocation.Contribution),
			AllocatedForfeiture:    money(o.Allocation.Forfeiture),
			AllocatedEarnings:      money(o.Allocation.Earnings),
			ProjectedEnding:        money(o.ProjectedEnding),
		}
	}
	sort.Slice(out.Members, func(i, j int) bool { return out.Members[i].MemberID < out.Members[j].MemberID })
	return out
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// =============================================================================
// HELPERS
// =============================================================================

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// parseDecimal parses a validated numeric string; empty is zero.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
