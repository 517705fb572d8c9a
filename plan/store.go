/*
store.go - Persistence interfaces for members, year records and the ledger

PURPOSE:
  Defines the boundary between the year-end engine and the database. The
  engine only needs "a queryable repository of transaction/member rows";
  the concrete technology lives in store/sqlite (production) and
  plan/store (in-memory, for tests).

KEY INTERFACES:
  Reader:     Read-only queries used by aggregation and reporting
  Writer:     Reader + the writes performed inside a closing transaction
  Repository: Reader + WithTx (atomic unit of work)
  Ledger:     Append-only transaction rows with idempotency keys
  Store:      Everything above plus reference-data and job-row writes

APPEND-ONLY CONTRACT:
  TransactionDetail rows are only ever appended. There is no Update or
  Delete for ledger rows. YearRecords are upserted; never deleted.

ATOMIC UNITS:
  WithTx() runs fn against a Writer. If fn returns an error, every write
  made through that Writer is undone. The year-end close relies on this
  for its all-or-nothing guarantee.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - plan/store/memory.go: In-memory implementation
*/
package plan

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AccountingPeriod is the fiscal boundary of a plan year, inclusive.
type AccountingPeriod struct {
	Year  int
	Start time.Time
	End   time.Time
}

// VestingStep grants Ratio once a member reaches Years of service.
type VestingStep struct {
	Years int
	Ratio decimal.Decimal
}

// TransactionFilter scopes ledger queries. Years are inclusive; a zero
// FromYear means "from the first year". Empty MemberIDs means everyone.
type TransactionFilter struct {
	FromYear  int
	ToYear    int
	MemberIDs []MemberID
}

// Matches reports whether a row passes the filter.
func (f TransactionFilter) Matches(tx TransactionDetail) bool {
	if f.FromYear != 0 && tx.Year < f.FromYear {
		return false
	}
	if f.ToYear != 0 && tx.Year > f.ToYear {
		return false
	}
	if len(f.MemberIDs) == 0 {
		return true
	}
	for _, id := range f.MemberIDs {
		if id == tx.MemberID {
			return true
		}
	}
	return false
}

// =============================================================================
// READ / WRITE SPLIT
// =============================================================================

// Reader is the read-only view consumed by aggregation and reporting.
type Reader interface {
	Members(ctx context.Context) ([]Member, error)
	Member(ctx context.Context, id MemberID) (Member, error)
	YearRecords(ctx context.Context, year int) ([]YearRecord, error)
	Transactions(ctx context.Context, filter TransactionFilter) ([]TransactionDetail, error)
	BalanceSnapshots(ctx context.Context, year int) (map[MemberID]BalanceSnapshot, error)
	VestingSteps(ctx context.Context) ([]VestingStep, error)

	// AccountingPeriod returns ok=false when the year is not configured.
	AccountingPeriod(ctx context.Context, year int) (AccountingPeriod, bool, error)
}

// Writer is available only inside WithTx.
type Writer interface {
	Reader
	SaveYearRecord(ctx context.Context, rec YearRecord) error
	SaveBalanceSnapshot(ctx context.Context, snap BalanceSnapshot) error
}

// Repository adds the atomic unit of work.
type Repository interface {
	Reader

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the Writer is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Writer) error) error
}

// Ledger persists TransactionDetail rows. Append-only.
type Ledger interface {
	// Append persists a row. Returns ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, tx TransactionDetail) error

	// AppendBatch persists rows atomically. Either all succeed or none do.
	AppendBatch(ctx context.Context, txs []TransactionDetail) error

	// Exists checks if an idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// Store is the full persistence surface used by the service layer.
type Store interface {
	Repository
	Ledger

	SaveMember(ctx context.Context, m Member) error
	SaveYearRecord(ctx context.Context, rec YearRecord) error
	SaveAccountingPeriod(ctx context.Context, p AccountingPeriod) error
	SaveVestingSteps(ctx context.Context, steps []VestingStep) error

	// Job rows for the year-end close. Written outside the closing
	// transaction, at its start and terminal boundaries.
	SaveClosingRun(ctx context.Context, run ClosingRun) error
	ClosingRuns(ctx context.Context, year int) ([]ClosingRun, error)
}
