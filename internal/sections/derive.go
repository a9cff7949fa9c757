package sections

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/anomaly"
	"github.com/opensource-finance/harrier/internal/buckets"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Derived holds statement-derived signal values by section.
type Derived map[domain.Section]map[string]float64

// Set records one derived value.
func (d Derived) Set(s domain.Section, key string, v float64) {
	if d[s] == nil {
		d[s] = make(map[string]float64)
	}
	d[s][key] = v
}

var (
	salaryKeywords = []string{"SALARY", "SAL CR", "PAYROLL", "WAGES"}
	bounceKeywords = []string{"BOUNCE", "RETURNED", "RTN", "DISHONOUR", "DISHONOR", "INSUFFICIENT", "INSUFF FUNDS"}
)

// Derive computes signals from the cleaned statement. merged is the
// per-month series folded across accounts. Nothing is derived from an
// empty statement.
func Derive(txs []domain.Transaction, merged []domain.MonthlyBucket, report domain.AnomalyReport) Derived {
	d := make(Derived)
	if len(txs) == 0 || len(merged) == 0 {
		return d
	}
	d.Set(domain.SectionFraud, SignalAnomalyRisk, report.TotalRisk)

	months := decimal.NewFromInt(int64(len(merged)))
	totals := buckets.BucketTotals(merged)
	avgIn := totals.Credits.Div(months)
	avgOut := totals.Debits.Div(months)

	// income
	d.Set(domain.SectionIncome, "verified_monthly_income", avgIn.InexactFloat64())
	monthlyCredits := make([]float64, 0, len(merged))
	creditMonths := 0
	for _, b := range merged {
		monthlyCredits = append(monthlyCredits, b.TotalCredits.InexactFloat64())
		if b.TotalCredits.IsPositive() {
			creditMonths++
		}
	}
	d.Set(domain.SectionIncome, "income_months_observed", float64(creditMonths))
	if len(merged) >= 2 && avgIn.IsPositive() {
		d.Set(domain.SectionIncome, "income_stability_cv", anomaly.CoefficientOfVariation(monthlyCredits))
	}
	if ratio, ok := salaryRegularity(txs, len(merged)); ok {
		d.Set(domain.SectionIncome, "salary_credit_regularity", ratio)
	}

	// cash flow
	d.Set(domain.SectionCashFlow, "avg_monthly_inflow", avgIn.InexactFloat64())
	d.Set(domain.SectionCashFlow, "avg_monthly_outflow", avgOut.InexactFloat64())
	negative := 0
	avgBal := decimal.Zero
	minBal := merged[0].MinBalance
	for _, b := range merged {
		if b.NetFlow().IsNegative() {
			negative++
		}
		avgBal = avgBal.Add(b.AvgBalance)
		if b.MinBalance.LessThan(minBal) {
			minBal = b.MinBalance
		}
	}
	d.Set(domain.SectionCashFlow, "negative_net_months_ratio", float64(negative)/float64(len(merged)))
	d.Set(domain.SectionCashFlow, "avg_balance", avgBal.Div(months).InexactFloat64())
	d.Set(domain.SectionCashFlow, "min_balance", minBal.InexactFloat64())
	d.Set(domain.SectionCashFlow, "bounce_count", float64(countMatching(txs, bounceKeywords)))

	// vendor
	if sizes := counterpartySizes(txs, domain.Credit); len(sizes) > 0 {
		d.Set(domain.SectionVendor, "customer_hhi", HHI(sizes))
		d.Set(domain.SectionVendor, "top_customer_share", topShare(sizes))
	}
	if sizes := counterpartySizes(txs, domain.Debit); len(sizes) > 0 {
		d.Set(domain.SectionVendor, "vendor_hhi", HHI(sizes))
	}

	return d
}

// forcedSignals always come from the engine, whatever the caller declared.
var forcedSignals = map[domain.Section]map[string]bool{
	domain.SectionFraud: {SignalAnomalyRisk: true},
}

// Merge overlays derived values onto caller-declared signals. Declared values
// win, except for forced signals, which are never taken from the caller.
// A declared null counts as absent.
// Neither input is modified.
func Merge(declared domain.RawSignals, derived Derived) domain.RawSignals {
	out := make(domain.RawSignals, len(domain.AllSections()))
	for s, kv := range declared {
		m := make(map[string]any, len(kv))
		for k, v := range kv {
			if v == nil || forcedSignals[s][k] {
				continue
			}
			m[k] = v
		}
		out[s] = m
	}
	for s, kv := range derived {
		if out[s] == nil {
			out[s] = make(map[string]any, len(kv))
		}
		for k, v := range kv {
			if _, declaredHere := out[s][k]; declaredHere {
				continue
			}
			out[s][k] = v
		}
	}
	return out
}

func salaryRegularity(txs []domain.Transaction, months int) (float64, bool) {
	seen := make(map[string]bool)
	for _, tx := range txs {
		if tx.IsCredit() && containsAny(tx.Description, salaryKeywords) {
			seen[tx.Timestamp.Format("2006-01")] = true
		}
	}
	if len(seen) == 0 || months == 0 {
		return 0, false
	}
	return float64(len(seen)) / float64(months), true
}

func countMatching(txs []domain.Transaction, keywords []string) int {
	n := 0
	for _, tx := range txs {
		if containsAny(tx.Description, keywords) {
			n++
		}
	}
	return n
}

func containsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	upper := strings.ToUpper(text)
	for _, kw := range keywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// counterpartySizes sums amounts per normalized narration for one direction.
// Sizes are returned in key order so float sums stay reproducible.
func counterpartySizes(txs []domain.Transaction, dir domain.Direction) []float64 {
	sums := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		if tx.Direction != dir {
			continue
		}
		key := anomaly.NormalizeDescription(tx.Description)
		if key == "" {
			continue
		}
		sums[key] = sums[key].Add(tx.Amount)
	}
	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sizes := make([]float64, 0, len(keys))
	for _, k := range keys {
		sizes = append(sizes, sums[k].InexactFloat64())
	}
	return sizes
}

func topShare(sizes []float64) float64 {
	var total, top float64
	for _, s := range sizes {
		total += s
		if s > top {
			top = s
		}
	}
	if total == 0 {
		return 0
	}
	return top / total
}
