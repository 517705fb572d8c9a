/*
Package sqlite provides a SQLite-backed implementation of plan.Store.

PURPOSE:
  Persists members, year records, the transaction ledger, balance
  snapshots, accounting periods, the vesting schedule and closing runs.
  The engine only sees the plan.Store interfaces; nothing outside this
  package writes SQL.

APPEND-ONLY ENFORCEMENT:
  The transactions table is only ever INSERTed into:
  - No UPDATE statements on transactions
  - No DELETE statements on transactions (except Reset, dev only)
  - idempotency_key is UNIQUE; a repeat append returns
    plan.ErrDuplicateIdempotencyKey

KEY TABLES:
  members:            Plan participants and beneficiaries
  year_records:       One row per member per plan year (upserted)
  transactions:       Immutable ledger of profit-code rows
  balance_snapshots:  Ending balances written by a committed close
  accounting_periods: Fiscal boundaries per plan year
  vesting_steps:      Years-of-service vesting schedule
  closing_runs:       Year-end close job rows

MONEY:
  Decimal amounts are stored as TEXT and parsed with shopspring/decimal.
  Sums are computed in Go, never with SQL SUM over REAL.

ATOMIC UNITS:
  WithTx runs fn against a txStore bound to one *sql.Tx. Reads inside fn go
  through the same transaction so they observe its own writes. Any error
  rolls everything back.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, which also
  keeps ":memory:" databases on one connection.

USAGE:
  st, err := sqlite.New("./data/profit-sharing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

SEE ALSO:
  - plan/store.go: Interface definitions
  - plan/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/profit-sharing/plan"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

// Store implements plan.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ plan.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		badge INTEGER NOT NULL,
		full_name TEXT NOT NULL,
		store INTEGER NOT NULL,
		department INTEGER NOT NULL DEFAULT 0,
		pay_classification INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		date_of_birth TEXT,
		hire_date TEXT,
		termination_date TEXT,
		enrollment TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_store ON members(store);

	-- Year records: created lazily, upserted by the close, never deleted
	CREATE TABLE IF NOT EXISTS year_records (
		member_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		hours TEXT NOT NULL DEFAULT '0',
		income TEXT NOT NULL DEFAULT '0',
		weeks_worked INTEGER NOT NULL DEFAULT 0,
		years_in_plan INTEGER NOT NULL DEFAULT 0,
		points INTEGER NOT NULL DEFAULT 0,
		zero_contribution_reason INTEGER NOT NULL DEFAULT 0,
		certificate_issued_date TEXT,
		employee_type INTEGER NOT NULL DEFAULT 0,
		eligible INTEGER NOT NULL DEFAULT 0,
		closed_at TEXT,
		PRIMARY KEY (member_id, year)
	);

	CREATE INDEX IF NOT EXISTS idx_year_records_year ON year_records(year);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		profit_code INTEGER NOT NULL,
		contribution TEXT NOT NULL DEFAULT '0',
		earnings TEXT NOT NULL DEFAULT '0',
		forfeiture TEXT NOT NULL DEFAULT '0',
		remark TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	-- Year-bounded aggregation (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_year_member
		ON transactions(year, member_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_member
		ON transactions(member_id);

	CREATE TABLE IF NOT EXISTS balance_snapshots (
		member_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		ending TEXT NOT NULL,
		vested TEXT NOT NULL,
		PRIMARY KEY (member_id, year)
	);

	CREATE TABLE IF NOT EXISTS accounting_periods (
		year INTEGER PRIMARY KEY,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vesting_steps (
		years INTEGER PRIMARY KEY,
		ratio TEXT NOT NULL
	);

	-- Year-end close job rows
	CREATE TABLE IF NOT EXISTS closing_runs (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		committed INTEGER NOT NULL DEFAULT 0,
		members_processed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_closing_runs_year ON closing_runs(year);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER (plan.Ledger interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx plan.TransactionDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, q querier, tx plan.TransactionDetail) error {
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions
		(id, member_id, year, profit_code, contribution, earnings, forfeiture,
		 remark, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		tx.ID,
		tx.MemberID,
		tx.Year,
		int(tx.Code),
		tx.Contribution.String(),
		tx.Earnings.String(),
		tx.Forfeiture.String(),
		nullString(tx.Remark),
		nullString(tx.IdempotencyKey),
		createdAt.UTC().Format(timeLayout),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return plan.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []plan.TransactionDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	idempotencyKeys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if idempotencyKeys[tx.IdempotencyKey] {
				return plan.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[tx.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

// =============================================================================
// READER (plan.Reader interface)
// =============================================================================

func (s *Store) Members(ctx context.Context) ([]plan.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMembers(ctx, s.db)
}

func (s *Store) Member(ctx context.Context, id plan.MemberID) (plan.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMember(ctx, s.db, id)
}

func (s *Store) YearRecords(ctx context.Context, year int) ([]plan.YearRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listYearRecords(ctx, s.db, year)
}

func (s *Store) Transactions(ctx context.Context, filter plan.TransactionFilter) ([]plan.TransactionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, filter)
}

func (s *Store) BalanceSnapshots(ctx context.Context, year int) (map[plan.MemberID]plan.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSnapshots(ctx, s.db, year)
}

func (s *Store) VestingSteps(ctx context.Context) ([]plan.VestingStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listVestingSteps(ctx, s.db)
}

func (s *Store) AccountingPeriod(ctx context.Context, year int) (plan.AccountingPeriod, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccountingPeriod(ctx, s.db, year)
}

const memberColumns = `id, badge, full_name, store, department, pay_classification,
	status, date_of_birth, hire_date, termination_date, enrollment`

func listMembers(ctx context.Context, q querier) ([]plan.Member, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+memberColumns+" FROM members ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []plan.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func getMember(ctx context.Context, q querier, id plan.MemberID) (plan.Member, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+memberColumns+" FROM members WHERE id = ?", id)
	if err != nil {
		return plan.Member{}, fmt.Errorf("failed to query member: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return plan.Member{}, err
		}
		return plan.Member{}, plan.ErrMemberNotFound
	}
	return scanMember(rows)
}

func scanMember(rows *sql.Rows) (plan.Member, error) {
	var (
		m                    plan.Member
		status, enrollment   string
		dob, hire, terminate sql.NullString
	)
	if err := rows.Scan(&m.ID, &m.Badge, &m.FullName, &m.Store, &m.Department,
		&m.PayClassification, &status, &dob, &hire, &terminate, &enrollment); err != nil {
		return plan.Member{}, fmt.Errorf("failed to scan member: %w", err)
	}
	m.Status = plan.EmploymentStatus(status)
	m.Enrollment = plan.Enrollment(enrollment)
	m.DateOfBirth = parseDate(dob)
	m.HireDate = parseDate(hire)
	m.TerminationDate = parseDatePtr(terminate)
	return m, nil
}

func listYearRecords(ctx context.Context, q querier, year int) ([]plan.YearRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT member_id, year, hours, income, weeks_worked, years_in_plan, points,
		       zero_contribution_reason, certificate_issued_date, employee_type,
		       eligible, closed_at
		FROM year_records
		WHERE year = ?
		ORDER BY member_id
	`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query year records: %w", err)
	}
	defer rows.Close()

	var records []plan.YearRecord
	for rows.Next() {
		var (
			r                 plan.YearRecord
			hours, income     string
			reason, empType   int
			eligible          bool
			certDate, closedAt sql.NullString
		)
		if err := rows.Scan(&r.MemberID, &r.Year, &hours, &income, &r.WeeksWorked,
			&r.YearsInPlan, &r.Points, &reason, &certDate, &empType, &eligible, &closedAt); err != nil {
			return nil, fmt.Errorf("failed to scan year record: %w", err)
		}
		if r.Hours, err = decimal.NewFromString(hours); err != nil {
			return nil, fmt.Errorf("year record %s/%d hours: %w", r.MemberID, r.Year, err)
		}
		if r.Income, err = decimal.NewFromString(income); err != nil {
			return nil, fmt.Errorf("year record %s/%d income: %w", r.MemberID, r.Year, err)
		}
		r.ZeroContributionReason = plan.ZeroContributionReason(reason)
		r.EmployeeType = plan.EmployeeType(empType)
		r.Eligible = eligible
		r.CertificateIssuedDate = parseDatePtr(certDate)
		r.ClosedAt = parseTimePtr(closedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

func listTransactions(ctx context.Context, q querier, filter plan.TransactionFilter) ([]plan.TransactionDetail, error) {
	var (
		where []string
		args  []any
	)
	if filter.FromYear != 0 {
		where = append(where, "year >= ?")
		args = append(args, filter.FromYear)
	}
	if filter.ToYear != 0 {
		where = append(where, "year <= ?")
		args = append(args, filter.ToYear)
	}
	if len(filter.MemberIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.MemberIDs)), ",")
		where = append(where, "member_id IN ("+placeholders+")")
		for _, id := range filter.MemberIDs {
			args = append(args, id)
		}
	}

	query := `
		SELECT id, member_id, year, profit_code, contribution, earnings, forfeiture,
		       remark, idempotency_key, created_at
		FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY year ASC, rowid ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []plan.TransactionDetail
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(rows *sql.Rows) (plan.TransactionDetail, error) {
	var (
		tx                                 plan.TransactionDetail
		code                               int
		contribution, earnings, forfeiture string
		remark, idempotencyKey             sql.NullString
		createdAt                          string
	)
	err := rows.Scan(&tx.ID, &tx.MemberID, &tx.Year, &code, &contribution, &earnings,
		&forfeiture, &remark, &idempotencyKey, &createdAt)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Code = plan.ProfitCode(code)
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&tx.Contribution, contribution},
		{&tx.Earnings, earnings},
		{&tx.Forfeiture, forfeiture},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return tx, fmt.Errorf("transaction %s amount %q: %w", tx.ID, f.src, err)
		}
	}
	tx.Remark = remark.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return tx, nil
}

func listSnapshots(ctx context.Context, q querier, year int) (map[plan.MemberID]plan.BalanceSnapshot, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT member_id, year, ending, vested FROM balance_snapshots WHERE year = ?", year)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance snapshots: %w", err)
	}
	defer rows.Close()

	result := make(map[plan.MemberID]plan.BalanceSnapshot)
	for rows.Next() {
		var (
			snap           plan.BalanceSnapshot
			ending, vested string
		)
		if err := rows.Scan(&snap.MemberID, &snap.Year, &ending, &vested); err != nil {
			return nil, fmt.Errorf("failed to scan balance snapshot: %w", err)
		}
		if snap.Ending, err = decimal.NewFromString(ending); err != nil {
			return nil, fmt.Errorf("snapshot %s ending: %w", snap.MemberID, err)
		}
		if snap.Vested, err = decimal.NewFromString(vested); err != nil {
			return nil, fmt.Errorf("snapshot %s vested: %w", snap.MemberID, err)
		}
		result[snap.MemberID] = snap
	}
	return result, rows.Err()
}

func listVestingSteps(ctx context.Context, q querier) ([]plan.VestingStep, error) {
	rows, err := q.QueryContext(ctx, "SELECT years, ratio FROM vesting_steps ORDER BY years")
	if err != nil {
		return nil, fmt.Errorf("failed to query vesting steps: %w", err)
	}
	defer rows.Close()

	var steps []plan.VestingStep
	for rows.Next() {
		var (
			step  plan.VestingStep
			ratio string
		)
		if err := rows.Scan(&step.Years, &ratio); err != nil {
			return nil, fmt.Errorf("failed to scan vesting step: %w", err)
		}
		if step.Ratio, err = decimal.NewFromString(ratio); err != nil {
			return nil, fmt.Errorf("vesting step %d ratio: %w", step.Years, err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func getAccountingPeriod(ctx context.Context, q querier, year int) (plan.AccountingPeriod, bool, error) {
	var start, end string
	err := q.QueryRowContext(ctx,
		"SELECT start_date, end_date FROM accounting_periods WHERE year = ?", year,
	).Scan(&start, &end)
	if err == sql.ErrNoRows {
		return plan.AccountingPeriod{}, false, nil
	}
	if err != nil {
		return plan.AccountingPeriod{}, false, fmt.Errorf("failed to query accounting period: %w", err)
	}
	p := plan.AccountingPeriod{Year: year}
	if p.Start, err = time.Parse(dateLayout, start); err != nil {
		return p, false, fmt.Errorf("accounting period %d start: %w", year, err)
	}
	if p.End, err = time.Parse(dateLayout, end); err != nil {
		return p, false, fmt.Errorf("accounting period %d end: %w", year, err)
	}
	return p, true, nil
}

// =============================================================================
// WRITES
// =============================================================================

// SaveMember upserts a member row.
func (s *Store) SaveMember(ctx context.Context, m plan.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO members (` + memberColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			badge = excluded.badge,
			full_name = excluded.full_name,
			store = excluded.store,
			department = excluded.department,
			pay_classification = excluded.pay_classification,
			status = excluded.status,
			date_of_birth = excluded.date_of_birth,
			hire_date = excluded.hire_date,
			termination_date = excluded.termination_date,
			enrollment = excluded.enrollment
	`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.Badge, m.FullName, m.Store, m.Department, m.PayClassification,
		string(m.Status), formatDate(m.DateOfBirth), formatDate(m.HireDate),
		formatDatePtr(m.TerminationDate), string(m.Enrollment),
	)
	if err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}
	return nil
}

// SaveYearRecord upserts a year record outside a closing transaction
// (e.g. the HR feed loading hours and income).
func (s *Store) SaveYearRecord(ctx context.Context, rec plan.YearRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveYearRecord(ctx, s.db, rec)
}

func saveYearRecord(ctx context.Context, q querier, r plan.YearRecord) error {
	query := `
		INSERT INTO year_records (member_id, year, hours, income, weeks_worked,
			years_in_plan, points, zero_contribution_reason, certificate_issued_date,
			employee_type, eligible, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id, year) DO UPDATE SET
			hours = excluded.hours,
			income = excluded.income,
			weeks_worked = excluded.weeks_worked,
			years_in_plan = excluded.years_in_plan,
			points = excluded.points,
			zero_contribution_reason = excluded.zero_contribution_reason,
			certificate_issued_date = excluded.certificate_issued_date,
			employee_type = excluded.employee_type,
			eligible = excluded.eligible,
			closed_at = excluded.closed_at
	`
	_, err := q.ExecContext(ctx, query,
		r.MemberID, r.Year, r.Hours.String(), r.Income.String(), r.WeeksWorked,
		r.YearsInPlan, r.Points, int(r.ZeroContributionReason),
		formatDatePtr(r.CertificateIssuedDate), int(r.EmployeeType), r.Eligible,
		formatTimePtr(r.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save year record %s/%d: %w", r.MemberID, r.Year, err)
	}
	return nil
}

func saveBalanceSnapshot(ctx context.Context, q querier, snap plan.BalanceSnapshot) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO balance_snapshots (member_id, year, ending, vested)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(member_id, year) DO UPDATE SET
			ending = excluded.ending,
			vested = excluded.vested
	`, snap.MemberID, snap.Year, snap.Ending.String(), snap.Vested.String())
	if err != nil {
		return fmt.Errorf("failed to save balance snapshot %s/%d: %w", snap.MemberID, snap.Year, err)
	}
	return nil
}

// SaveAccountingPeriod upserts the fiscal boundaries of a plan year.
func (s *Store) SaveAccountingPeriod(ctx context.Context, p plan.AccountingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounting_periods (year, start_date, end_date)
		VALUES (?, ?, ?)
		ON CONFLICT(year) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date
	`, p.Year, formatDate(p.Start), formatDate(p.End))
	if err != nil {
		return fmt.Errorf("failed to save accounting period %d: %w", p.Year, err)
	}
	return nil
}

// SaveVestingSteps replaces the vesting schedule.
func (s *Store) SaveVestingSteps(ctx context.Context, steps []plan.VestingStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM vesting_steps"); err != nil {
		return fmt.Errorf("failed to clear vesting steps: %w", err)
	}
	for _, step := range steps {
		if _, err := sqlTx.ExecContext(ctx,
			"INSERT INTO vesting_steps (years, ratio) VALUES (?, ?)",
			step.Years, step.Ratio.String(),
		); err != nil {
			return fmt.Errorf("failed to save vesting step %d: %w", step.Years, err)
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// CLOSING RUNS
// =============================================================================

// SaveClosingRun upserts a closing run job row.
func (s *Store) SaveClosingRun(ctx context.Context, r plan.ClosingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO closing_runs (id, year, status, committed, members_processed,
			error, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			members_processed = excluded.members_processed,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Year, string(r.Status), r.Committed, r.MembersProcessed,
		nullString(r.Error), formatTimePtr(r.StartedAt), formatTimePtr(r.CompletedAt),
		r.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save closing run: %w", err)
	}
	return nil
}

// ClosingRuns returns the runs of a plan year, newest first.
func (s *Store) ClosingRuns(ctx context.Context, year int) ([]plan.ClosingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, year, status, committed, members_processed, error,
		       started_at, completed_at, created_at
		FROM closing_runs
		WHERE year = ?
		ORDER BY created_at DESC
	`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query closing runs: %w", err)
	}
	defer rows.Close()

	var runs []plan.ClosingRun
	for rows.Next() {
		var (
			r                      plan.ClosingRun
			status                 string
			errText                sql.NullString
			startedAt, completedAt sql.NullString
			createdAt              string
		)
		if err := rows.Scan(&r.ID, &r.Year, &status, &r.Committed, &r.MembersProcessed,
			&errText, &startedAt, &completedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan closing run: %w", err)
		}
		r.Status = plan.RunStatus(status)
		r.Error = errText.String
		r.StartedAt = parseTimePtr(startedAt)
		r.CompletedAt = parseTimePtr(completedAt)
		r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (plan.Repository interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(plan.Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore reads and writes through one *sql.Tx. WithTx holds the lock.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Members(ctx context.Context) ([]plan.Member, error) {
	return listMembers(ctx, ts.tx)
}

func (ts *txStore) Member(ctx context.Context, id plan.MemberID) (plan.Member, error) {
	return getMember(ctx, ts.tx, id)
}

func (ts *txStore) YearRecords(ctx context.Context, year int) ([]plan.YearRecord, error) {
	return listYearRecords(ctx, ts.tx, year)
}

func (ts *txStore) Transactions(ctx context.Context, filter plan.TransactionFilter) ([]plan.TransactionDetail, error) {
	return listTransactions(ctx, ts.tx, filter)
}

func (ts *txStore) BalanceSnapshots(ctx context.Context, year int) (map[plan.MemberID]plan.BalanceSnapshot, error) {
	return listSnapshots(ctx, ts.tx, year)
}

func (ts *txStore) VestingSteps(ctx context.Context) ([]plan.VestingStep, error) {
	return listVestingSteps(ctx, ts.tx)
}

func (ts *txStore) AccountingPeriod(ctx context.Context, year int) (plan.AccountingPeriod, bool, error) {
	return getAccountingPeriod(ctx, ts.tx, year)
}

func (ts *txStore) SaveYearRecord(ctx context.Context, rec plan.YearRecord) error {
	return saveYearRecord(ctx, ts.tx, rec)
}

func (ts *txStore) SaveBalanceSnapshot(ctx context.Context, snap plan.BalanceSnapshot) error {
	return saveBalanceSnapshot(ctx, ts.tx, snap)
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset deletes all data. Used by the demo scenario loader; dev only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"transactions", "year_records", "balance_snapshots", "members",
		"accounting_periods", "vesting_steps", "closing_runs",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func formatDatePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return formatDate(*t)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseDate(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(dateLayout, s.String)
	return t
}

func parseDatePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseDate(s)
	return &t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
