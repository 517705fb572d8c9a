package plan

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROFIT CODE - Closed classification of a ledger row
// =============================================================================

// ProfitCode classifies the economic meaning of a TransactionDetail row.
// The set is closed: every code in AllProfitCodes has a bucket rule in
// bucketTable, which is checked at init.
type ProfitCode int

const (
	CodeIncomingContribution    ProfitCode = 0 // contributions, incoming forfeitures, earnings
	CodePartialWithdrawal       ProfitCode = 1
	CodeOutgoingForfeiture      ProfitCode = 2
	CodeDirectPayment           ProfitCode = 3
	CodeOutgoingBeneficiary     ProfitCode = 5 // beneficiary transfer / QDRO out
	CodeIncomingQDROBeneficiary ProfitCode = 6
	CodeIncomingVestedEarnings  ProfitCode = 8
	CodeVestedPayment           ProfitCode = 9 // payment of a 100% vested balance
)

// AllProfitCodes lists every enumerated code.
var AllProfitCodes = []ProfitCode{
	CodeIncomingContribution,
	CodePartialWithdrawal,
	CodeOutgoingForfeiture,
	CodeDirectPayment,
	CodeOutgoingBeneficiary,
	CodeIncomingQDROBeneficiary,
	CodeIncomingVestedEarnings,
	CodeVestedPayment,
}

func (c ProfitCode) String() string {
	switch c {
	case CodeIncomingContribution:
		return "incoming_contribution"
	case CodePartialWithdrawal:
		return "outgoing_partial_withdrawal"
	case CodeOutgoingForfeiture:
		return "outgoing_forfeiture"
	case CodeDirectPayment:
		return "outgoing_direct_payment"
	case CodeOutgoingBeneficiary:
		return "outgoing_beneficiary_transfer"
	case CodeIncomingQDROBeneficiary:
		return "incoming_qdro_beneficiary"
	case CodeIncomingVestedEarnings:
		return "incoming_vested_earnings"
	case CodeVestedPayment:
		return "outgoing_vested_payment"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// IsDistribution reports whether rows with this code pay money out of the plan.
func (c ProfitCode) IsDistribution() bool {
	return c == CodePartialWithdrawal || c == CodeDirectPayment || c == CodeVestedPayment
}

// Known reports whether c is one of the enumerated codes.
func (c ProfitCode) Known() bool {
	_, ok := bucketTable[c]
	return ok
}

// =============================================================================
// BUCKETS - Where each signed field of a row lands
// =============================================================================

type Bucket int

const (
	BucketContributions Bucket = iota
	BucketEarnings
	BucketForfeitures
	BucketDistributions
	BucketBeneficiaryAllocation
)

type Field int

const (
	FieldContribution Field = iota
	FieldEarnings
	FieldForfeiture
)

// BucketRule moves one field of a row, with a sign, into one bucket.
type BucketRule struct {
	Field  Field
	Sign   int // +1 or -1
	Bucket Bucket
}

// bucketTable is the explicit sign convention for every profit code.
var bucketTable = map[ProfitCode][]BucketRule{
	CodeIncomingContribution: {
		{Field: FieldContribution, Sign: +1, Bucket: BucketContributions},
		{Field: FieldEarnings, Sign: +1, Bucket: BucketEarnings},
		{Field: FieldForfeiture, Sign: +1, Bucket: BucketForfeitures},
	},
	CodePartialWithdrawal:       {{Field: FieldForfeiture, Sign: -1, Bucket: BucketDistributions}},
	CodeOutgoingForfeiture:      {{Field: FieldForfeiture, Sign: -1, Bucket: BucketForfeitures}},
	CodeDirectPayment:           {{Field: FieldForfeiture, Sign: -1, Bucket: BucketDistributions}},
	CodeOutgoingBeneficiary:     {{Field: FieldForfeiture, Sign: -1, Bucket: BucketBeneficiaryAllocation}},
	CodeIncomingQDROBeneficiary: {{Field: FieldContribution, Sign: +1, Bucket: BucketBeneficiaryAllocation}},
	CodeIncomingVestedEarnings:  {{Field: FieldEarnings, Sign: +1, Bucket: BucketEarnings}},
	CodeVestedPayment:           {{Field: FieldForfeiture, Sign: -1, Bucket: BucketDistributions}},
}

func init() {
	if err := ValidateBucketTable(); err != nil {
		panic(err)
	}
}

// ValidateBucketTable checks that every enumerated code has a rule and
// every rule is well formed.
func ValidateBucketTable() error {
	for _, c := range AllProfitCodes {
		rules, ok := bucketTable[c]
		if !ok || len(rules) == 0 {
			return fmt.Errorf("profit code %d has no bucket rule", int(c))
		}
		for _, r := range rules {
			if r.Sign != 1 && r.Sign != -1 {
				return fmt.Errorf("profit code %d: invalid sign %d", int(c), r.Sign)
			}
		}
	}
	if len(bucketTable) != len(AllProfitCodes) {
		return fmt.Errorf("bucket table has %d codes, enumeration has %d", len(bucketTable), len(AllProfitCodes))
	}
	return nil
}

// BucketRules returns the rules for a code; nil for codes outside the enumeration.
func BucketRules(c ProfitCode) []BucketRule { return bucketTable[c] }

// Buckets accumulates the signed bucket totals of a member-year.
type Buckets struct {
	Contributions         decimal.Decimal
	Earnings              decimal.Decimal
	Forfeitures           decimal.Decimal
	Distributions         decimal.Decimal
	BeneficiaryAllocation decimal.Decimal
}

// Apply folds one row into the buckets. Returns false when the row's code
// is outside the enumeration; such rows contribute nothing.
func (b *Buckets) Apply(tx TransactionDetail) bool {
	rules, ok := bucketTable[tx.Code]
	if !ok {
		return false
	}
	for _, r := range rules {
		v := fieldValue(tx, r.Field)
		if r.Sign < 0 {
			v = v.Neg()
		}
		switch r.Bucket {
		case BucketContributions:
			b.Contributions = b.Contributions.Add(v)
		case BucketEarnings:
			b.Earnings = b.Earnings.Add(v)
		case BucketForfeitures:
			b.Forfeitures = b.Forfeitures.Add(v)
		case BucketDistributions:
			b.Distributions = b.Distributions.Add(v)
		case BucketBeneficiaryAllocation:
			b.BeneficiaryAllocation = b.BeneficiaryAllocation.Add(v)
		}
	}
	return true
}

// Net is the signed sum of all buckets.
func (b Buckets) Net() decimal.Decimal {
	return b.Contributions.Add(b.Earnings).Add(b.Forfeitures).Add(b.Distributions).Add(b.BeneficiaryAllocation)
}

// EtvaDelta is the row's effect on the early termination vested amount:
// money that is 100% vested regardless of the schedule.
func EtvaDelta(tx TransactionDetail) decimal.Decimal {
	switch tx.Code {
	case CodeIncomingQDROBeneficiary:
		return tx.Contribution
	case CodeIncomingVestedEarnings:
		return tx.Earnings
	case CodeVestedPayment:
		return tx.Forfeiture.Neg()
	default:
		return decimal.Zero
	}
}

func fieldValue(tx TransactionDetail, f Field) decimal.Decimal {
	switch f {
	case FieldContribution:
		return tx.Contribution
	case FieldEarnings:
		return tx.Earnings
	default:
		return tx.Forfeiture
	}
}
