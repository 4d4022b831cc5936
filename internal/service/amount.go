package service

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bonus-manager/internal/ledger"
)

const moneyPlaces = 2

var (
	minBonusAmount = decimal.New(1, -moneyPlaces)
	moneyLimit     = ledger.BalanceLimit
)

func validateMoney(field string, d decimal.Decimal) error {
	if !d.Equal(d.Truncate(moneyPlaces)) {
		return fieldError(field, "at most %d decimal places allowed", moneyPlaces)
	}
	if d.Abs().GreaterThanOrEqual(moneyLimit) {
		return fieldError(field, "must be less than %s", moneyLimit)
	}
	return nil
}

func validateBonusAmount(d decimal.Decimal) error {
	if d.LessThan(minBonusAmount) {
		return fieldError("amount", "must be at least %s", minBonusAmount.StringFixed(moneyPlaces))
	}
	return validateMoney("amount", d)
}
