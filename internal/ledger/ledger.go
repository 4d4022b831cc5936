// Package ledger содержит правила изменения бонусного баланса клиента.
//
// Каждая операция меняет баланс и формирует ровно одну запись журнала,
// в которой balance_after равен балансу после изменения. Сохранение
// баланса и записи в одной транзакции обеспечивает репозиторий.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bonus-manager/internal/model"
)

var (
	// ErrZeroAmount возвращается при попытке провести операцию на нулевую сумму.
	ErrZeroAmount = errors.New("amount must not be zero")
	// ErrUnknownBonusType возвращается для неизвестного типа операции.
	ErrUnknownBonusType = errors.New("unknown bonus type")
	// ErrBalanceLimit возвращается, если баланс после операции выходит за BalanceLimit.
	ErrBalanceLimit = errors.New("balance out of range")
)

// BalanceLimit ограничивает модуль баланса: 10 значащих цифр, из них 2 после запятой.
var BalanceLimit = decimal.New(1, 8)

var bonusSigns = map[model.BonusType]int64{
	model.BonusTypeAccrual:   1,
	model.BonusTypeDeduction: -1,
}

// SignedAmount переводит выбранный тип операции и модуль суммы в знаковую сумму.
func SignedAmount(bonusType model.BonusType, magnitude decimal.Decimal) (decimal.Decimal, error) {
	sign, ok := bonusSigns[bonusType]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownBonusType, bonusType)
	}
	return magnitude.Abs().Mul(decimal.NewFromInt(sign)), nil
}

// Mutation изменяет баланс клиента и возвращает запись журнала для сохранения.
type Mutation func(c *model.Client, at time.Time) (model.BonusHistory, error)

// Apply возвращает операцию начисления (amount > 0) или списания (amount < 0).
func Apply(amount decimal.Decimal) Mutation {
	return func(c *model.Client, at time.Time) (model.BonusHistory, error) {
		if amount.IsZero() {
			return model.BonusHistory{}, ErrZeroAmount
		}

		balance := c.Balance.Add(amount)
		if balance.Abs().GreaterThanOrEqual(BalanceLimit) {
			return model.BonusHistory{}, fmt.Errorf("%w: %s", ErrBalanceLimit, balance.StringFixed(2))
		}
		c.Balance = balance

		desc := model.DescriptionAccrual
		if amount.IsNegative() {
			desc = model.DescriptionDeduction
		}

		return model.BonusHistory{
			ClientID:     c.ID,
			CreatedAt:    at,
			Amount:       amount,
			Description:  desc,
			BalanceAfter: c.Balance,
		}, nil
	}
}

// Reset возвращает операцию обнуления баланса.
func Reset() Mutation {
	return func(c *model.Client, at time.Time) (model.BonusHistory, error) {
		old := c.Balance
		c.Balance = decimal.Zero

		return model.BonusHistory{
			ClientID:     c.ID,
			CreatedAt:    at,
			Amount:       old.Neg(),
			Description:  model.DescriptionReset,
			BalanceAfter: decimal.Zero,
		}, nil
	}
}
