/*
handlers.go - HTTP API handlers for the profit-sharing engine

PURPOSE:
  Exposes the year-end engine via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to report.Service.

ENDPOINTS:
  Members:
    GET    /api/members                       List all members
    POST   /api/members                       Create or update a member
    GET    /api/members/{id}                  Get member details
    GET    /api/members/{id}/transactions     Ledger rows (?year=)

  Ledger:
    POST   /api/transactions                  Append a ledger row

  Plan years:
    PUT    /api/years/{year}/period           Set fiscal boundaries
    POST   /api/years/{year}/records          Load hours/income for a member
    GET    /api/years/{year}/summaries        Summary rows (?format=csv&store=&active=&under21=)
    GET    /api/years/{year}/eligibility      Eligible members + counts
    POST   /api/years/{year}/close            Year-end close (?commit=true)
    POST   /api/years/{year}/whatif           Simulated close with parameters
    GET    /api/years/{year}/breakdown        Paginated text report
    GET    /api/years/{year}/runs             Closing run history

  Scenarios:
    GET    /api/scenarios                     List demo scenarios
    POST   /api/scenarios/load                Load a demo scenario

REQUEST FLOW:
  1. Parse path and query parameters
  2. Decode and validate the body (validator/v10 tags in dto.go)
  3. Call report.Service or the store
  4. Serialize the DTO

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid parameters
  - 404: Member or accounting period not found
  - 409: Duplicate idempotency key, beginning balance inconsistency
  - 422: Strict eligibility with no eligible members
  - 500: Internal errors, failed close (the body carries the run id)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/report"
	"github.com/warp/profit-sharing/vesting"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *report.Service
	Store    plan.Store
	Validate *validator.Validate
	Log      logrus.FieldLogger

	NewID func() string
	Now   func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over a report service.
func NewHandler(svc *report.Service, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Service:  svc,
		Store:    svc.Store,
		Validate: validator.New(),
		Log:      log,
		NewID:    func() string { return "tx-" + uuid.NewString() },
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.Members(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMember returns a single member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.Member(r.Context(), plan.MemberID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

// CreateMember creates or updates a member.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	m := req.toMember()
	if err := h.Store.SaveMember(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

// GetMemberTransactions returns a member's ledger rows, optionally for one year.
func (h *Handler) GetMemberTransactions(w http.ResponseWriter, r *http.Request) {
	filter := plan.TransactionFilter{MemberIDs: []plan.MemberID{plan.MemberID(chi.URLParam(r, "id"))}}
	if v := r.URL.Query().Get("year"); v != "" {
		year, err := parseYear(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		filter.FromYear, filter.ToYear = year, year
	}

	txs, err := h.Store.Transactions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// CreateTransaction appends a ledger row.
// POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	code := plan.ProfitCode(*req.ProfitCode)
	if !code.Known() {
		writeError(w, http.StatusBadRequest, "Unknown profit code", fmt.Errorf("profit code %d", *req.ProfitCode))
		return
	}

	ctx := r.Context()
	if _, err := h.Store.Member(ctx, plan.MemberID(req.MemberID)); err != nil {
		h.writeServiceError(w, "Failed to append transaction", err)
		return
	}

	tx := plan.TransactionDetail{
		ID:             plan.TransactionID(h.NewID()),
		MemberID:       plan.MemberID(req.MemberID),
		Year:           req.Year,
		Code:           code,
		Contribution:   parseDecimal(req.Contribution),
		Earnings:       parseDecimal(req.Earnings),
		Forfeiture:     parseDecimal(req.Forfeiture),
		Remark:         req.Remark,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      h.Now(),
	}
	if err := h.Store.Append(ctx, tx); err != nil {
		h.writeServiceError(w, "Failed to append transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// =============================================================================
// PLAN YEAR SETUP
// =============================================================================

// PutPeriod sets the fiscal boundaries of a plan year.
// PUT /api/years/{year}/period
func (h *Handler) PutPeriod(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	var req PeriodRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	start, _ := time.Parse(dateLayout, req.Start)
	end, _ := time.Parse(dateLayout, req.End)
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "Period end must be after start", nil)
		return
	}

	p := plan.AccountingPeriod{Year: year, Start: start, End: end}
	if err := h.Store.SaveAccountingPeriod(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save period", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "start": req.Start, "end": req.End})
}

// PostYearRecord loads the HR feed (hours, income, weeks) for one member-year.
// Fields stamped by the close are left untouched.
// POST /api/years/{year}/records
func (h *Handler) PostYearRecord(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	var req YearRecordRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	id := plan.MemberID(req.MemberID)
	if _, err := h.Store.Member(ctx, id); err != nil {
		h.writeServiceError(w, "Failed to save year record", err)
		return
	}
	recs, err := h.Store.YearRecords(ctx, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load year records", err)
		return
	}

	rec := plan.YearRecord{MemberID: id, Year: year}
	status := http.StatusCreated
	for _, existing := range recs {
		if existing.MemberID == id {
			rec, status = existing, http.StatusOK
			break
		}
	}
	rec.Hours = parseDecimal(req.Hours)
	rec.Income = parseDecimal(req.Income)
	rec.WeeksWorked = req.WeeksWorked
	if req.YearsInPlan > 0 {
		rec.YearsInPlan = req.YearsInPlan
	}

	if err := h.Store.SaveYearRecord(ctx, rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save year record", err)
		return
	}
	writeJSON(w, status, map[string]any{
		"member_id":     rec.MemberID,
		"year":          rec.Year,
		"hours":         rec.Hours.String(),
		"income":        money(rec.Income),
		"weeks_worked":  rec.WeeksWorked,
		"years_in_plan": rec.YearsInPlan,
	})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetSummaries returns the member-year summaries as JSON or CSV.
// GET /api/years/{year}/summaries?format=csv&store=10&active=true&under21=false
func (h *Handler) GetSummaries(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	res, err := h.Service.ComputeYearSummaries(r.Context(), year, filter)
	if err != nil {
		h.writeServiceError(w, "Failed to compute summaries", err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		p, _ := res.CSV()
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("summaries-%d.csv", year)))
		w.WriteHeader(http.StatusOK)
		if err := report.WriteCSV(w, p); err != nil {
			h.Log.WithError(err).Error("failed to stream csv")
		}
		return
	}
	writeJSON(w, http.StatusOK, toSummariesResponse(res))
}

// GetEligibility returns the eligible members of a year.
// GET /api/years/{year}/eligibility
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	res, err := h.Service.GetEligibility(r.Context(), year)
	if err != nil {
		h.writeServiceError(w, "Failed to evaluate eligibility", err)
		return
	}
	writeJSON(w, http.StatusOK, toEligibilityDTO(res))
}

// GetBreakdown renders the store breakdown report as plain text.
// GET /api/years/{year}/breakdown?store=10&active=true
func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	out, err := h.Service.RenderBreakdownReport(r.Context(), year, report.BreakdownRequest{
		Store:       filter.Store,
		ActiveOnly:  filter.ActiveOnly,
		Under21Only: filter.Under21Only,
	})
	if err != nil {
		h.writeServiceError(w, "Failed to render breakdown report", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}

// =============================================================================
// YEAR-END CLOSE
// =============================================================================

// CloseYear runs the year-end close with the configured parameters.
// Without ?commit=true the close is a preview and nothing is written.
// POST /api/years/{year}/close
func (h *Handler) CloseYear(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	commit, err := boolQuery(r, "commit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid commit flag", err)
		return
	}

	res, err := h.Service.RunYearEndClose(r.Context(), year, commit)
	if err != nil {
		h.writeServiceError(w, "Year-end close failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toClosingResultDTO(res))
}

// WhatIf previews (or commits) a close under caller-supplied parameters.
// POST /api/years/{year}/whatif
func (h *Handler) WhatIf(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	var req WhatIfRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.Service.WhatIf(r.Context(), year, req.toParams(), req.Commit)
	if err != nil {
		h.writeServiceError(w, "What-if failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toClosingResultDTO(res))
}

// ListRuns returns the closing run history of a year, newest first.
// GET /api/years/{year}/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	runs, err := h.Service.ClosingRuns(r.Context(), year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get closing runs", err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps engine errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Details: err.Error()}
	var ce *plan.ClosingError
	if errors.As(err, &ce) {
		resp.RunID = ce.RunID
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.WithError(err).WithField("run_id", resp.RunID).Error(message)
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, plan.ErrDuplicateIdempotencyKey),
		errors.Is(err, plan.ErrAggregationInconsistency):
		return http.StatusConflict
	case plan.IsClientError(err):
		return http.StatusBadRequest
	case plan.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, plan.ErrNoEligibleMembers):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeAndValidate decodes the JSON body into dst and runs the validator.
// It writes a 400 and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := parseYear(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return 0, false
	}
	return year, true
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("year %q is not a number", s)
	}
	if year < 1900 || year > 2999 {
		return 0, fmt.Errorf("year %d out of range", year)
	}
	return year, nil
}

func boolQuery(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func filterFromQuery(r *http.Request) (vesting.Filter, error) {
	var f vesting.Filter
	if v := r.URL.Query().Get("store"); v != "" {
		store, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("store %q is not a number", v)
		}
		f.Store = &store
	}
	var err error
	if f.ActiveOnly, err = boolQuery(r, "active"); err != nil {
		return f, fmt.Errorf("active: %w", err)
	}
	if f.Under21Only, err = boolQuery(r, "under21"); err != nil {
		return f, fmt.Errorf("under21: %w", err)
	}
	return f, nil
}
