package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bonus-manager/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApply_Deduction(t *testing.T) {
	c := &model.Client{ID: 7, Balance: dec("100")}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entry, err := Apply(dec("-30"))(c, at)
	require.NoError(t, err)

	assert.True(t, c.Balance.Equal(dec("70")), "balance = %s", c.Balance)
	assert.Equal(t, int64(7), entry.ClientID)
	assert.Equal(t, at, entry.CreatedAt)
	assert.True(t, entry.Amount.Equal(dec("-30")))
	assert.Equal(t, model.DescriptionDeduction, entry.Description)
	assert.True(t, entry.BalanceAfter.Equal(dec("70")))
}

func TestApply_Accrual(t *testing.T) {
	c := &model.Client{Balance: dec("0.10")}

	entry, err := Apply(dec("0.20"))(c, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "0.30", c.Balance.StringFixed(2))
	assert.Equal(t, model.DescriptionAccrual, entry.Description)
	assert.Equal(t, "0.30", entry.BalanceAfter.StringFixed(2))
}

func TestApply_ZeroAmount(t *testing.T) {
	c := &model.Client{Balance: dec("5")}

	_, err := Apply(decimal.Zero)(c, time.Now())
	require.ErrorIs(t, err, ErrZeroAmount)
	assert.True(t, c.Balance.Equal(dec("5")), "balance must stay untouched")
}

func TestReset(t *testing.T) {
	c := &model.Client{Balance: dec("70")}

	entry, err := Reset()(c, time.Now())
	require.NoError(t, err)

	assert.True(t, c.Balance.IsZero())
	assert.True(t, entry.Amount.Equal(dec("-70")))
	assert.Equal(t, model.DescriptionReset, entry.Description)
	assert.True(t, entry.BalanceAfter.IsZero())
}

func TestSignedAmount(t *testing.T) {
	got, err := SignedAmount(model.BonusTypeAccrual, dec("12.50"))
	require.NoError(t, err)
	assert.Equal(t, "12.50", got.StringFixed(2))

	got, err = SignedAmount(model.BonusTypeDeduction, dec("12.50"))
	require.NoError(t, err)
	assert.Equal(t, "-12.50", got.StringFixed(2))

	_, err = SignedAmount("gift", dec("1"))
	if !errors.Is(err, ErrUnknownBonusType) {
		t.Fatalf("expected ErrUnknownBonusType, got %v", err)
	}
}

func TestLedgerMatchesBalance(t *testing.T) {
	c := &model.Client{Balance: decimal.Zero}
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	steps := []Mutation{
		Apply(dec("100")),
		Apply(dec("-30")),
		Apply(dec("0.01")),
		Reset(),
		Apply(dec("-5.55")),
		Apply(dec("12.34")),
		Reset(),
		Apply(dec("99999999.99")),
	}

	var entries []model.BonusHistory
	for i, step := range steps {
		entry, err := step(c, at.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		entries = append(entries, entry)
	}

	running := decimal.Zero
	for i, e := range entries {
		running = running.Add(e.Amount)
		assert.True(t, running.Equal(e.BalanceAfter), "entry %d: running %s, balance_after %s", i, running, e.BalanceAfter)
	}
	assert.True(t, running.Equal(c.Balance), "final running %s, balance %s", running, c.Balance)
}

func TestApply_BalanceLimit(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		amount  string
		wantErr bool
	}{
		{name: "just below limit", balance: "99999999.00", amount: "0.99"},
		{name: "accrual reaches limit", balance: "99999999.99", amount: "0.01", wantErr: true},
		{name: "deduction reaches negative limit", balance: "-99999999.00", amount: "-1", wantErr: true},
		{name: "deduction back into range", balance: "99999999.99", amount: "-0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &model.Client{Balance: dec(tt.balance)}

			_, err := Apply(dec(tt.amount))(c, time.Now())
			if tt.wantErr {
				require.ErrorIs(t, err, ErrBalanceLimit)
				assert.True(t, c.Balance.Equal(dec(tt.balance)), "balance must stay unchanged")
				return
			}
			require.NoError(t, err)
			assert.True(t, c.Balance.Equal(dec(tt.balance).Add(dec(tt.amount))))
		})
	}
}
