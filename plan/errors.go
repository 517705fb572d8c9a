/*
errors.go - Centralized error types for the profit-sharing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers wrap these with context and test them with errors.Is/errors.As.

ERROR CATEGORIES:
  1. Configuration errors - missing accounting period, invalid schedule
  2. Data-quality errors - aggregation inconsistencies
  3. Closing errors - failed atomic year-end update
  4. Store errors - idempotency and lookup failures

PROPAGATION:
  Read-only aggregation attaches AggregationInconsistency to the row as a
  warning. The year-end close treats the same condition as fatal and rolls
  back. Nothing here is retried automatically.

SEE ALSO:
  - vesting/aggregator.go: Produces inconsistency warnings
  - yearend/closing.go: Produces ClosingError
*/
package plan

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPeriodNotConfigured is returned when a plan year has no accounting
	// period. Fatal for any computation over that year.
	ErrPeriodNotConfigured = errors.New("accounting period not configured")

	// ErrAggregationInconsistency is returned when a member's beginning balance
	// cannot be reconciled with the prior year's persisted totals.
	ErrAggregationInconsistency = errors.New("aggregation inconsistency")

	// ErrClosingTransactionFailed is returned when the atomic year-end update
	// fails. All writes of the run have been rolled back.
	ErrClosingTransactionFailed = errors.New("closing transaction failed")

	// ErrNoEligibleMembers is returned in strict mode when a year with plan
	// activity produces no eligible members.
	ErrNoEligibleMembers = errors.New("no eligible members")

	// ErrDuplicateIdempotencyKey is returned when a ledger row with the same
	// idempotency key already exists. Expected for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrMemberNotFound is returned when a referenced member doesn't exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrInvalidParams is returned for out-of-range simulation parameters.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrInvalidSchedule is returned when a vesting schedule is not monotonic
	// or leaves [0,1].
	ErrInvalidSchedule = errors.New("invalid vesting schedule")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PeriodError names the year whose accounting period is missing.
type PeriodError struct {
	Year int
}

func (e *PeriodError) Error() string {
	return fmt.Sprintf("plan year %d: %s", e.Year, ErrPeriodNotConfigured)
}

func (e *PeriodError) Unwrap() error { return ErrPeriodNotConfigured }

// InconsistencyError details a beginning balance that disagrees with the
// prior year's persisted ending balance.
type InconsistencyError struct {
	MemberID  MemberID
	Year      int
	Ledger    decimal.Decimal
	Persisted decimal.Decimal
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("member %s year %d: beginning balance %s does not match persisted %s",
		e.MemberID, e.Year, e.Ledger.StringFixed(2), e.Persisted.StringFixed(2))
}

func (e *InconsistencyError) Unwrap() error { return ErrAggregationInconsistency }

// ClosingError carries enough context to investigate a failed close.
type ClosingError struct {
	Year             int
	RunID            string
	MembersProcessed int
	Err              error
}

func (e *ClosingError) Error() string {
	return fmt.Sprintf("year-end close %d (run %s) failed after %d members: %v",
		e.Year, e.RunID, e.MembersProcessed, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *ClosingError) Unwrap() []error { return []error{ErrClosingTransactionFailed, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidParams) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidSchedule)
}

// IsNotFound returns true if the error indicates missing reference data.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPeriodNotConfigured) ||
		errors.Is(err, ErrMemberNotFound)
}
