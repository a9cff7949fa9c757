// Package buckets groups canonical transactions into calendar-month summaries.
package buckets

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

type groupKey struct {
	account string
	month   time.Time
}

// Aggregate buckets transactions by (account, calendar month).
// Buckets are ordered chronologically, then by account. The input is not modified.
func Aggregate(txs []domain.Transaction) []domain.MonthlyBucket {
	if len(txs) == 0 {
		return []domain.MonthlyBucket{}
	}

	ordered := make([]domain.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(a, b int) bool {
		if ordered[a].AccountID != ordered[b].AccountID {
			return ordered[a].AccountID < ordered[b].AccountID
		}
		return ordered[a].Timestamp.Before(ordered[b].Timestamp)
	})

	groups := make(map[groupKey][]domain.Transaction)
	keys := make([]groupKey, 0)
	for _, tx := range ordered {
		k := groupKey{account: tx.AccountID, month: MonthStart(tx.Timestamp)}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], tx)
	}

	// keys are in (account, month) order, so the running balance carries across months.
	result := make([]domain.MonthlyBucket, 0, len(keys))
	running := make(map[string]decimal.Decimal)
	for _, k := range keys {
		b, closing := summarize(k, groups[k], running[k.account])
		running[k.account] = closing
		result = append(result, b)
	}

	sort.SliceStable(result, func(a, b int) bool {
		if !result[a].Month.Equal(result[b].Month) {
			return result[a].Month.Before(result[b].Month)
		}
		return result[a].AccountID < result[b].AccountID
	})
	return result
}

// summarize builds one bucket. opening is the derived running balance carried in
// from the previous month of the same account; it is used only when the statement
// carries no balances of its own.
func summarize(k groupKey, txs []domain.Transaction, opening decimal.Decimal) (domain.MonthlyBucket, decimal.Decimal) {
	b := domain.MonthlyBucket{
		AccountID:    k.account,
		Month:        k.month,
		TotalCredits: decimal.Zero,
		TotalDebits:  decimal.Zero,
	}

	var balances []decimal.Decimal
	var firstWithBalance *domain.Transaction
	for i := range txs {
		tx := txs[i]
		b.TransactionCount++
		if tx.IsCredit() {
			b.TotalCredits = b.TotalCredits.Add(tx.Amount)
			b.CreditCount++
		} else {
			b.TotalDebits = b.TotalDebits.Add(tx.Amount)
			b.DebitCount++
		}
		if tx.BalanceAfter.Valid {
			if firstWithBalance == nil {
				firstWithBalance = &txs[i]
			}
			balances = append(balances, tx.BalanceAfter.Decimal)
		}
	}

	if len(balances) > 0 {
		b.OpeningBalance = firstWithBalance.BalanceAfter.Decimal.Sub(firstWithBalance.Signed())
		b.ClosingBalance = balances[len(balances)-1]
		b.AvgBalance, b.MinBalance, b.MaxBalance = stats(balances)
		return b, b.ClosingBalance
	}

	b.BalanceDerived = true
	b.OpeningBalance = opening
	run := opening
	balances = make([]decimal.Decimal, 0, len(txs))
	for _, tx := range txs {
		run = run.Add(tx.Signed())
		balances = append(balances, run)
	}
	b.ClosingBalance = run
	b.AvgBalance, b.MinBalance, b.MaxBalance = stats(balances)
	return b, run
}

func stats(values []decimal.Decimal) (avg, lo, hi decimal.Decimal) {
	lo, hi = values[0], values[0]
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
		if v.LessThan(lo) {
			lo = v
		}
		if v.GreaterThan(hi) {
			hi = v
		}
	}
	avg = sum.Div(decimal.NewFromInt(int64(len(values))))
	return avg, lo, hi
}

// Merge folds per-account buckets into one bucket per month.
// Balance figures are summed across accounts.
func Merge(bks []domain.MonthlyBucket) []domain.MonthlyBucket {
	byMonth := make(map[time.Time]*domain.MonthlyBucket)
	months := make([]time.Time, 0)
	for _, b := range bks {
		m, ok := byMonth[b.Month]
		if !ok {
			m = &domain.MonthlyBucket{
				Month:          b.Month,
				TotalCredits:   decimal.Zero,
				TotalDebits:    decimal.Zero,
				OpeningBalance: decimal.Zero,
				ClosingBalance: decimal.Zero,
				AvgBalance:     decimal.Zero,
				MinBalance:     decimal.Zero,
				MaxBalance:     decimal.Zero,
			}
			byMonth[b.Month] = m
			months = append(months, b.Month)
		}
		m.TotalCredits = m.TotalCredits.Add(b.TotalCredits)
		m.TotalDebits = m.TotalDebits.Add(b.TotalDebits)
		m.CreditCount += b.CreditCount
		m.DebitCount += b.DebitCount
		m.TransactionCount += b.TransactionCount
		m.OpeningBalance = m.OpeningBalance.Add(b.OpeningBalance)
		m.ClosingBalance = m.ClosingBalance.Add(b.ClosingBalance)
		m.AvgBalance = m.AvgBalance.Add(b.AvgBalance)
		m.MinBalance = m.MinBalance.Add(b.MinBalance)
		m.MaxBalance = m.MaxBalance.Add(b.MaxBalance)
		m.BalanceDerived = m.BalanceDerived || b.BalanceDerived
	}

	sort.Slice(months, func(a, b int) bool { return months[a].Before(months[b]) })
	result := make([]domain.MonthlyBucket, 0, len(months))
	for _, month := range months {
		result = append(result, *byMonth[month])
	}
	return result
}

// MonthStart returns the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Totals are credit and debit sums over a ledger or a bucket series.
type Totals struct {
	Credits     decimal.Decimal
	Debits      decimal.Decimal
	CreditCount int
	DebitCount  int
}

// LedgerTotals sums the transaction set directly.
func LedgerTotals(txs []domain.Transaction) Totals {
	t := Totals{Credits: decimal.Zero, Debits: decimal.Zero}
	for _, tx := range txs {
		if tx.IsCredit() {
			t.Credits = t.Credits.Add(tx.Amount)
			t.CreditCount++
		} else {
			t.Debits = t.Debits.Add(tx.Amount)
			t.DebitCount++
		}
	}
	return t
}

// BucketTotals sums a bucket series. For buckets produced by Aggregate it
// always equals LedgerTotals of the same transactions.
func BucketTotals(bks []domain.MonthlyBucket) Totals {
	t := Totals{Credits: decimal.Zero, Debits: decimal.Zero}
	for _, b := range bks {
		t.Credits = t.Credits.Add(b.TotalCredits)
		t.Debits = t.Debits.Add(b.TotalDebits)
		t.CreditCount += b.CreditCount
		t.DebitCount += b.DebitCount
	}
	return t
}

// MonthlyAverages returns mean monthly credits and mean monthly net flow
// across the merged series. Both are zero for an empty series.
func MonthlyAverages(merged []domain.MonthlyBucket) (credits, net decimal.Decimal) {
	if len(merged) == 0 {
		return decimal.Zero, decimal.Zero
	}
	t := BucketTotals(merged)
	n := decimal.NewFromInt(int64(len(merged)))
	return t.Credits.Div(n), t.Credits.Sub(t.Debits).Div(n)
}
