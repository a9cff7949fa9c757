package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a ledger entry.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// Transaction is one canonical ledger entry.
// Created once by the normalizer; never mutated afterwards, only aggregated.
type Transaction struct {
	Timestamp    time.Time           `json:"timestamp"`
	Amount       decimal.Decimal     `json:"amount"` // always > 0
	Direction    Direction           `json:"direction"`
	BalanceAfter decimal.NullDecimal `json:"balanceAfter"`
	Description  string              `json:"description,omitempty"`
	Category     string              `json:"category,omitempty"`
	AccountID    string              `json:"accountId,omitempty"`
}

// IsCredit reports whether the entry is an inflow.
func (t Transaction) IsCredit() bool {
	return t.Direction == Credit
}

// Signed returns the amount with outflows negated.
func (t Transaction) Signed() decimal.Decimal {
	if t.Direction == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// MonthlyBucket summarizes one (account, calendar month) group of transactions.
type MonthlyBucket struct {
	AccountID string    `json:"accountId,omitempty"`
	Month     time.Time `json:"month"` // first instant of the month, UTC

	TotalCredits     decimal.Decimal `json:"totalCredits"`
	TotalDebits      decimal.Decimal `json:"totalDebits"`
	CreditCount      int             `json:"creditCount"`
	DebitCount       int             `json:"debitCount"`
	TransactionCount int             `json:"transactionCount"`

	// Balance statistics. Drawn from BalanceAfter when the statement carries it;
	// otherwise derived from a running sum of net flow and BalanceDerived is set.
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
	AvgBalance     decimal.Decimal `json:"avgBalance"`
	MinBalance     decimal.Decimal `json:"minBalance"`
	MaxBalance     decimal.Decimal `json:"maxBalance"`
	BalanceDerived bool            `json:"balanceDerived,omitempty"`
}

// NetFlow is credits minus debits for the month.
func (b MonthlyBucket) NetFlow() decimal.Decimal {
	return b.TotalCredits.Sub(b.TotalDebits)
}

// MonthKey formats the bucket month as YYYY-MM.
func (b MonthlyBucket) MonthKey() string {
	return b.Month.Format("2006-01")
}
