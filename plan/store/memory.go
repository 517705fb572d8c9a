// Package store provides an in-memory plan.Store implementation.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/profit-sharing/plan"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	members      map[plan.MemberID]plan.Member
	records      map[recordKey]plan.YearRecord
	transactions []plan.TransactionDetail
	idempotency  map[string]bool
	snapshots    map[recordKey]plan.BalanceSnapshot
	periods      map[int]plan.AccountingPeriod
	steps        []plan.VestingStep
	runs         map[string]plan.ClosingRun
}

type recordKey struct {
	MemberID plan.MemberID
	Year     int
}

func NewMemory() *Memory {
	return &Memory{
		members:     make(map[plan.MemberID]plan.Member),
		records:     make(map[recordKey]plan.YearRecord),
		idempotency: make(map[string]bool),
		snapshots:   make(map[recordKey]plan.BalanceSnapshot),
		periods:     make(map[int]plan.AccountingPeriod),
		runs:        make(map[string]plan.ClosingRun),
	}
}

// =============================================================================
// LEDGER (append-only)
// =============================================================================

func (m *Memory) Append(_ context.Context, tx plan.TransactionDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return plan.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(tx)
	return nil
}

// AppendBatch adds multiple rows atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []plan.TransactionDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first (atomic check), including within the batch
	seen := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[tx.IdempotencyKey] || seen[tx.IdempotencyKey] {
			return plan.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}
	for _, tx := range txs {
		m.appendLocked(tx)
	}
	return nil
}

func (m *Memory) appendLocked(tx plan.TransactionDetail) {
	m.transactions = append(m.transactions, tx)
	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// READER
// =============================================================================

func (m *Memory) Members(_ context.Context) ([]plan.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.membersLocked(), nil
}

func (m *Memory) membersLocked() []plan.Member {
	result := make([]plan.Member, 0, len(m.members))
	for _, mem := range m.members {
		result = append(result, mem)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) Member(_ context.Context, id plan.MemberID) (plan.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.memberLocked(id)
}

func (m *Memory) memberLocked(id plan.MemberID) (plan.Member, error) {
	mem, ok := m.members[id]
	if !ok {
		return plan.Member{}, plan.ErrMemberNotFound
	}
	return mem, nil
}

func (m *Memory) YearRecords(_ context.Context, year int) ([]plan.YearRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.yearRecordsLocked(year), nil
}

func (m *Memory) yearRecordsLocked(year int) []plan.YearRecord {
	var result []plan.YearRecord
	for k, rec := range m.records {
		if k.Year == year {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MemberID < result[j].MemberID })
	return result
}

func (m *Memory) Transactions(_ context.Context, filter plan.TransactionFilter) ([]plan.TransactionDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transactionsLocked(filter), nil
}

func (m *Memory) transactionsLocked(filter plan.TransactionFilter) []plan.TransactionDetail {
	var result []plan.TransactionDetail
	for _, tx := range m.transactions {
		if filter.Matches(tx) {
			result = append(result, tx)
		}
	}
	return result
}

func (m *Memory) BalanceSnapshots(_ context.Context, year int) (map[plan.MemberID]plan.BalanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotsLocked(year), nil
}

func (m *Memory) snapshotsLocked(year int) map[plan.MemberID]plan.BalanceSnapshot {
	result := make(map[plan.MemberID]plan.BalanceSnapshot)
	for k, s := range m.snapshots {
		if k.Year == year {
			result[k.MemberID] = s
		}
	}
	return result
}

func (m *Memory) VestingSteps(_ context.Context) ([]plan.VestingStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]plan.VestingStep(nil), m.steps...), nil
}

func (m *Memory) AccountingPeriod(_ context.Context, year int) (plan.AccountingPeriod, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.periods[year]
	return p, ok, nil
}

// =============================================================================
// REFERENCE DATA AND JOB ROWS
// =============================================================================

func (m *Memory) SaveMember(_ context.Context, mem plan.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[mem.ID] = mem
	return nil
}

func (m *Memory) SaveYearRecord(_ context.Context, rec plan.YearRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{rec.MemberID, rec.Year}] = rec
	return nil
}

func (m *Memory) SaveAccountingPeriod(_ context.Context, p plan.AccountingPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[p.Year] = p
	return nil
}

func (m *Memory) SaveVestingSteps(_ context.Context, steps []plan.VestingStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append([]plan.VestingStep(nil), steps...)
	return nil
}

func (m *Memory) SaveClosingRun(_ context.Context, run plan.ClosingRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) ClosingRuns(_ context.Context, year int) ([]plan.ClosingRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []plan.ClosingRun
	for _, r := range m.runs {
		if r.Year == year {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(plan.Writer) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	view := &txView{parent: m}

	if err := fn(view); err != nil {
		m.restore(snapshot)
		return err
	}
	if err := ctx.Err(); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	records   map[recordKey]plan.YearRecord
	snapshots map[recordKey]plan.BalanceSnapshot
}

func (m *Memory) snapshot() memorySnapshot {
	records := make(map[recordKey]plan.YearRecord, len(m.records))
	for k, v := range m.records {
		records[k] = v
	}
	snaps := make(map[recordKey]plan.BalanceSnapshot, len(m.snapshots))
	for k, v := range m.snapshots {
		snaps[k] = v
	}
	return memorySnapshot{records: records, snapshots: snaps}
}

func (m *Memory) restore(s memorySnapshot) {
	m.records = s.records
	m.snapshots = s.snapshots
}

// txView reads and writes the parent without locking; WithTx holds the lock.
type txView struct {
	parent *Memory
}

func (v *txView) Members(_ context.Context) ([]plan.Member, error) {
	return v.parent.membersLocked(), nil
}

func (v *txView) Member(_ context.Context, id plan.MemberID) (plan.Member, error) {
	return v.parent.memberLocked(id)
}

func (v *txView) YearRecords(_ context.Context, year int) ([]plan.YearRecord, error) {
	return v.parent.yearRecordsLocked(year), nil
}

func (v *txView) Transactions(_ context.Context, filter plan.TransactionFilter) ([]plan.TransactionDetail, error) {
	return v.parent.transactionsLocked(filter), nil
}

func (v *txView) BalanceSnapshots(_ context.Context, year int) (map[plan.MemberID]plan.BalanceSnapshot, error) {
	return v.parent.snapshotsLocked(year), nil
}

func (v *txView) VestingSteps(_ context.Context) ([]plan.VestingStep, error) {
	return append([]plan.VestingStep(nil), v.parent.steps...), nil
}

func (v *txView) AccountingPeriod(_ context.Context, year int) (plan.AccountingPeriod, bool, error) {
	p, ok := v.parent.periods[year]
	return p, ok, nil
}

func (v *txView) SaveYearRecord(_ context.Context, rec plan.YearRecord) error {
	v.parent.records[recordKey{rec.MemberID, rec.Year}] = rec
	return nil
}

func (v *txView) SaveBalanceSnapshot(_ context.Context, snap plan.BalanceSnapshot) error {
	v.parent.snapshots[recordKey{snap.MemberID, snap.Year}] = snap
	return nil
}
