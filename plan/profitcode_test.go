package plan_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/profit-sharing/plan"
)

func TestBucketTable_CoversEveryCode(t *testing.T) {
	require.NoError(t, plan.ValidateBucketTable())
	for _, c := range plan.AllProfitCodes {
		assert.True(t, c.Known(), "code %s", c)
		assert.NotEmpty(t, plan.BucketRules(c), "code %s", c)
	}
	assert.False(t, plan.ProfitCode(4).Known())
	assert.Nil(t, plan.BucketRules(plan.ProfitCode(7)))
}

func TestBuckets_Apply(t *testing.T) {
	tests := []struct {
		code plan.ProfitCode
		want plan.Buckets
	}{
		{plan.CodeIncomingContribution, plan.Buckets{Contributions: decimal.NewFromInt(1), Earnings: decimal.NewFromInt(2), Forfeitures: decimal.NewFromInt(3)}},
		{plan.CodePartialWithdrawal, plan.Buckets{Distributions: decimal.NewFromInt(-3)}},
		{plan.CodeOutgoingForfeiture, plan.Buckets{Forfeitures: decimal.NewFromInt(-3)}},
		{plan.CodeDirectPayment, plan.Buckets{Distributions: decimal.NewFromInt(-3)}},
		{plan.CodeOutgoingBeneficiary, plan.Buckets{BeneficiaryAllocation: decimal.NewFromInt(-3)}},
		{plan.CodeIncomingQDROBeneficiary, plan.Buckets{BeneficiaryAllocation: decimal.NewFromInt(1)}},
		{plan.CodeIncomingVestedEarnings, plan.Buckets{Earnings: decimal.NewFromInt(2)}},
		{plan.CodeVestedPayment, plan.Buckets{Distributions: decimal.NewFromInt(-3)}},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			var b plan.Buckets
			ok := b.Apply(plan.TransactionDetail{
				Code:         tt.code,
				Contribution: decimal.NewFromInt(1),
				Earnings:     decimal.NewFromInt(2),
				Forfeiture:   decimal.NewFromInt(3),
			})
			require.True(t, ok)
			assert.True(t, tt.want.Contributions.Equal(b.Contributions), "contributions")
			assert.True(t, tt.want.Earnings.Equal(b.Earnings), "earnings")
			assert.True(t, tt.want.Forfeitures.Equal(b.Forfeitures), "forfeitures")
			assert.True(t, tt.want.Distributions.Equal(b.Distributions), "distributions")
			assert.True(t, tt.want.BeneficiaryAllocation.Equal(b.BeneficiaryAllocation), "beneficiary")
		})
	}
}

func TestBuckets_UnknownCodeIgnored(t *testing.T) {
	var b plan.Buckets
	ok := b.Apply(plan.TransactionDetail{Code: plan.ProfitCode(4), Contribution: decimal.NewFromInt(10)})
	assert.False(t, ok)
	assert.True(t, b.Net().IsZero())
}

func TestProfitCode_IsDistribution(t *testing.T) {
	assert.True(t, plan.CodePartialWithdrawal.IsDistribution())
	assert.True(t, plan.CodeDirectPayment.IsDistribution())
	assert.True(t, plan.CodeVestedPayment.IsDistribution())
	assert.False(t, plan.CodeOutgoingForfeiture.IsDistribution())
	assert.False(t, plan.CodeOutgoingBeneficiary.IsDistribution())
}

func TestClosingError_UnwrapsBoth(t *testing.T) {
	cause := errors.New("disk full")
	err := &plan.ClosingError{Year: 2024, RunID: "r-1", MembersProcessed: 3, Err: cause}

	assert.ErrorIs(t, err, plan.ErrClosingTransactionFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 3 members")
}

func TestYearRecord_Equal(t *testing.T) {
	a := plan.YearRecord{MemberID: "m", Year: 2024, Hours: decimal.RequireFromString("1000.0"), Points: 3}
	b := plan.YearRecord{MemberID: "m", Year: 2024, Hours: decimal.RequireFromString("1000"), Points: 3}
	assert.True(t, a.Equal(b))
	b.Points = 4
	assert.False(t, a.Equal(b))
}
