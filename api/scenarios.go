/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built populations that exercise the year-end engine end
	to end: eligibility, vesting, the breakdown report suppression rules
	and the close.

AVAILABLE SCENARIOS:

	single-store:  One store with a manager, associates, an under-21 member,
	               a paid-out terminated member and a part-timer
	multi-store:   single-store plus a second store with a beneficiary
	               transfer, a vested 65+ member, and an idle store 700
	no-eligible:   A store where nobody reaches the hours threshold

HOW SCENARIOS WORK:
 1. Reset database (clear all data) when the store supports it
 2. Seed accounting periods 2018-2027 and the default vesting schedule
 3. Create members, 2023/2024 year records and ledger rows

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "multi-store"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - cmd/server/main.go: load-scenario command
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/profit-sharing/calendar"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/vesting"
)

// ErrUnknownScenario is returned for a scenario id that is not listed.
var ErrUnknownScenario = errors.New("unknown scenario")

// Resetter is implemented by stores that can drop all their data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-store",
		Name:        "Single Store",
		Description: "Manager, associates, an under-21 member, a paid-out termination and a part-timer",
	},
	{
		ID:          "multi-store",
		Name:        "Multi Store",
		Description: "Adds a beneficiary transfer, a vested 65+ member and the always-shown store 700",
	},
	{
		ID:          "no-eligible",
		Name:        "No Eligible Members",
		Description: "Every member is below the hours threshold",
	},
}

// Scenarios lists the available demo scenarios.
func Scenarios() []ScenarioDTO {
	return append([]ScenarioDTO(nil), scenarios...)
}

// LoadScenario resets st (when supported) and seeds the named scenario.
func LoadScenario(ctx context.Context, st plan.Store, id string) error {
	var load func(*seeder)
	switch id {
	case "single-store":
		load = seedSingleStore
	case "multi-store":
		load = func(s *seeder) {
			seedSingleStore(s)
			seedSecondStore(s)
		}
	case "no-eligible":
		load = seedNoEligible
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}

	if rs, ok := st.(Resetter); ok {
		if err := rs.Reset(ctx); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
	}

	s := &seeder{ctx: ctx, st: st}
	s.calendar(2018, 2027)
	s.err = firstErr(s.err, st.SaveVestingSteps(ctx, vesting.DefaultSchedule().Steps()))
	load(s)
	if s.err != nil {
		return fmt.Errorf("load scenario %s: %w", id, s.err)
	}
	return nil
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a demo scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := LoadScenario(r.Context(), h.Store, req.ScenarioID); err != nil {
		if errors.Is(err, ErrUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()
	h.Log.WithField("scenario", req.ScenarioID).Info("scenario loaded")

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	rs, ok := h.Store.(Resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}
	if err := rs.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// POPULATIONS
// =============================================================================

func seedSingleStore(s *seeder) {
	s.member(plan.Member{ID: "m-100", Badge: 100, FullName: "ANDERSON, KAREN", Store: 10, Department: 1, PayClassification: 1,
		Status: plan.StatusActive, DateOfBirth: date(1975, 3, 2), HireDate: date(2005, 6, 1)})
	s.record("m-100", 2023, "2080", "85000", 9)
	s.record("m-100", 2024, "2080", "88000", 9)
	s.tx("m-100", 2022, plan.CodeIncomingContribution, "20000", "0", "0")
	s.tx("m-100", 2023, plan.CodeIncomingContribution, "3000", "1200", "0")
	s.tx("m-100", 2024, plan.CodeIncomingContribution, "3200", "900", "0")

	s.member(plan.Member{ID: "m-101", Badge: 101, FullName: "BAKER, LUIS", Store: 10, Department: 2, PayClassification: 13,
		Status: plan.StatusActive, DateOfBirth: date(1990, 7, 19), HireDate: date(2019, 2, 11)})
	s.record("m-101", 2023, "1500", "32000", 2)
	s.record("m-101", 2024, "1600", "34000", 2)
	s.tx("m-101", 2023, plan.CodeIncomingContribution, "800", "0", "0")
	s.tx("m-101", 2024, plan.CodeIncomingContribution, "900", "40", "0")

	s.member(plan.Member{ID: "m-102", Badge: 102, FullName: "CHEN, AMY", Store: 10, Department: 4, PayClassification: 20,
		Status: plan.StatusActive, DateOfBirth: date(2005, 9, 30), HireDate: date(2023, 5, 1)})
	s.record("m-102", 2024, "1100", "15000", 0)

	term := date(2024, 3, 15)
	s.member(plan.Member{ID: "m-103", Badge: 103, FullName: "DAVIS, OMAR", Store: 10, Department: 2, PayClassification: 13,
		Status: plan.StatusTerminated, DateOfBirth: date(1985, 1, 10), HireDate: date(2015, 8, 3), TerminationDate: &term})
	s.record("m-103", 2023, "2000", "30000", 6)
	s.record("m-103", 2024, "300", "5000", 6)
	s.tx("m-103", 2023, plan.CodeIncomingContribution, "1500", "0", "0")
	s.tx("m-103", 2024, plan.CodeVestedPayment, "0", "0", "1500")

	s.member(plan.Member{ID: "m-104", Badge: 104, FullName: "EVANS, ROSA", Store: 10, Department: 5, PayClassification: 21,
		Status: plan.StatusActive, DateOfBirth: date(1970, 12, 1), HireDate: date(2020, 4, 6)})
	s.record("m-104", 2023, "650", "9500", 3)
	s.record("m-104", 2024, "600", "9000", 3)
	s.tx("m-104", 2023, plan.CodeIncomingContribution, "200", "0", "0")
}

func seedSecondStore(s *seeder) {
	s.member(plan.Member{ID: "m-200", Badge: 200, FullName: "FOSTER, DANA", Store: 20, Department: 3, PayClassification: 10,
		Status: plan.StatusActive, DateOfBirth: date(1968, 11, 5), HireDate: date(2001, 9, 17)})
	s.record("m-200", 2023, "2100", "61000", 12)
	s.record("m-200", 2024, "2100", "61000", 12)
	s.tx("m-200", 2021, plan.CodeIncomingContribution, "40000", "0", "0")
	s.tx("m-200", 2024, plan.CodeIncomingContribution, "2500", "1800", "0")
	s.tx("m-200", 2024, plan.CodeOutgoingBeneficiary, "0", "0", "5000")

	s.member(plan.Member{ID: "m-201", Badge: 201, FullName: "GARCIA, ELENA", Store: 20,
		Status: plan.StatusInactive, DateOfBirth: date(1970, 2, 14), Enrollment: plan.EnrollmentBeneficiary})
	s.tx("m-201", 2024, plan.CodeIncomingQDROBeneficiary, "5000", "0", "0")

	s.member(plan.Member{ID: "m-202", Badge: 202, FullName: "HILL, SAM", Store: 20, Department: 2, PayClassification: 13,
		Status: plan.StatusActive, DateOfBirth: date(1958, 4, 12), HireDate: date(2012, 1, 9)})
	s.record("m-202", 2023, "1250", "27000", 8)
	s.record("m-202", 2024, "1200", "28000", 8)
	s.tx("m-202", 2020, plan.CodeIncomingContribution, "15000", "0", "0")
	s.tx("m-202", 2024, plan.CodeIncomingContribution, "700", "0", "0")

	s.member(plan.Member{ID: "m-700", Badge: 700, FullName: "IVERSON, JO", Store: 700, Department: 9, PayClassification: 30,
		Status: plan.StatusInactive, DateOfBirth: date(1980, 6, 6), HireDate: date(2010, 1, 4)})
	s.record("m-700", 2024, "0", "0", 0)
	s.tx("m-700", 2023, plan.CodeIncomingContribution, "300", "0", "0")
	s.tx("m-700", 2024, plan.CodeVestedPayment, "0", "0", "300")
}

func seedNoEligible(s *seeder) {
	s.member(plan.Member{ID: "m-300", Badge: 300, FullName: "JAMES, PAT", Store: 30, Department: 2, PayClassification: 13,
		Status: plan.StatusActive, DateOfBirth: date(1988, 5, 5), HireDate: date(2022, 3, 1)})
	s.record("m-300", 2024, "420", "6300", 1)
	s.tx("m-300", 2023, plan.CodeIncomingContribution, "90", "0", "0")

	s.member(plan.Member{ID: "m-301", Badge: 301, FullName: "KIM, LEE", Store: 30, Department: 5, PayClassification: 21,
		Status: plan.StatusActive, DateOfBirth: date(1992, 8, 21), HireDate: date(2023, 10, 2)})
	s.record("m-301", 2024, "310", "4800", 0)
}

// =============================================================================
// SEEDER
// =============================================================================

// seeder keeps the first error so population code reads as a flat list.
type seeder struct {
	ctx context.Context
	st  plan.Store
	seq int
	err error
}

func (s *seeder) calendar(from, to int) {
	for y := from; y <= to && s.err == nil; y++ {
		s.err = s.st.SaveAccountingPeriod(s.ctx, calendar.DefaultFiscalPeriod(y))
	}
}

func (s *seeder) member(m plan.Member) {
	if s.err != nil {
		return
	}
	if m.Enrollment == "" {
		m.Enrollment = plan.EnrollmentEmployee
	}
	s.err = s.st.SaveMember(s.ctx, m)
}

func (s *seeder) record(member string, year int, hours, income string, yearsInPlan int) {
	if s.err != nil {
		return
	}
	s.err = s.st.SaveYearRecord(s.ctx, plan.YearRecord{
		MemberID:    plan.MemberID(member),
		Year:        year,
		Hours:       decimal.RequireFromString(hours),
		Income:      decimal.RequireFromString(income),
		WeeksWorked: weeksFor(hours),
		YearsInPlan: yearsInPlan,
	})
}

func (s *seeder) tx(member string, year int, code plan.ProfitCode, contribution, earnings, forfeiture string) {
	if s.err != nil {
		return
	}
	s.seq++
	s.err = s.st.Append(s.ctx, plan.TransactionDetail{
		ID:             plan.TransactionID(fmt.Sprintf("scn-%s-%d", member, s.seq)),
		MemberID:       plan.MemberID(member),
		Year:           year,
		Code:           code,
		Contribution:   decimal.RequireFromString(contribution),
		Earnings:       decimal.RequireFromString(earnings),
		Forfeiture:     decimal.RequireFromString(forfeiture),
		Remark:         "scenario",
		IdempotencyKey: fmt.Sprintf("scenario-%d", s.seq),
		CreatedAt:      date(year, 12, 1),
	})
}

// weeksFor approximates weeks worked from 40-hour weeks, capped at 52.
func weeksFor(hours string) int {
	w := int(decimal.RequireFromString(hours).Div(decimal.NewFromInt(40)).IntPart())
	if w > 52 {
		return 52
	}
	return w
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
