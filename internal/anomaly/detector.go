// Package anomaly scans a transaction stream for manipulation patterns.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Detector runs the circular-funds, peer-to-peer and balance-manipulation checks.
// It holds no state between calls.
type Detector struct {
	cfg domain.AnomalyConfig
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg domain.AnomalyConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Detect runs every check. The report is advisory; each component is bounded
// on its own and TotalRisk is capped at 1.
func (d *Detector) Detect(txs []domain.Transaction) domain.AnomalyReport {
	var report domain.AnomalyReport
	if len(txs) == 0 {
		return report
	}

	ordered := byTime(txs)

	var finding string
	report.CircularRisk, finding = d.Circular(ordered)
	report.Findings = appendFinding(report.Findings, finding)

	report.P2PRisk, finding = d.PeerToPeer(ordered)
	report.Findings = appendFinding(report.Findings, finding)

	var findings []string
	report.BalanceRisk, findings = d.Balance(txs)
	report.Findings = append(report.Findings, findings...)

	report.TotalRisk = math.Min(1, report.CircularRisk+report.P2PRisk+report.BalanceRisk)
	return report
}

func appendFinding(findings []string, f string) []string {
	if f == "" {
		return findings
	}
	return append(findings, f)
}

type windowTotals struct {
	credits float64
	debits  float64
}

// Circular compares the first and last N calendar days of activity. Both credit
// and debit totals must mirror each other and each window must roughly net to zero.
// The windows never overlap; shorter histories are not assessed.
func (d *Detector) Circular(ordered []domain.Transaction) (float64, string) {
	if len(ordered) == 0 || d.cfg.CircularWindowDays <= 0 {
		return 0, ""
	}
	first := dayOf(ordered[0].Timestamp)
	lastIdx := daysBetween(first, dayOf(ordered[len(ordered)-1].Timestamp))
	window := d.cfg.CircularWindowDays
	if lastIdx < 2*window-1 {
		return 0, ""
	}

	var head, tail windowTotals
	for _, tx := range ordered {
		idx := daysBetween(first, dayOf(tx.Timestamp))
		amount := tx.Amount.InexactFloat64()
		switch {
		case idx < window:
			head.add(tx.Direction, amount)
		case idx > lastIdx-window:
			tail.add(tx.Direction, amount)
		}
	}

	if similarity(head.credits, tail.credits) <= d.cfg.CircularSimilarityRatio ||
		similarity(head.debits, tail.debits) <= d.cfg.CircularSimilarityRatio {
		return 0, ""
	}
	if !head.balanced(d.cfg.CircularNetFlowRatio) || !tail.balanced(d.cfg.CircularNetFlowRatio) {
		return 0, ""
	}
	return d.cfg.CircularRisk, fmt.Sprintf("circular: first and last %d-day windows mirror each other and net to near zero", window)
}

func (w *windowTotals) add(dir domain.Direction, amount float64) {
	if dir == domain.Credit {
		w.credits += amount
	} else {
		w.debits += amount
	}
}

func (w windowTotals) balanced(ratio float64) bool {
	return w.credits > 0 && math.Abs(w.credits-w.debits) < ratio*w.credits
}

// similarity is min/max of two non-negative totals, 0 when both are zero.
func similarity(a, b float64) float64 {
	hi := math.Max(a, b)
	if hi == 0 {
		return 0
	}
	return math.Min(a, b) / hi
}

// PeerToPeer looks for one peer-transfer source dominating P2P credits with
// suspiciously uniform amounts.
func (d *Detector) PeerToPeer(txs []domain.Transaction) (float64, string) {
	groups := make(map[string][]float64)
	total := 0
	for _, tx := range txs {
		if !tx.IsCredit() || !d.isPeerTransfer(tx.Description) {
			continue
		}
		key := NormalizeDescription(tx.Description)
		groups[key] = append(groups[key], tx.Amount.InexactFloat64())
		total++
	}
	if total == 0 {
		return 0, ""
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	top := keys[0]
	for _, k := range keys[1:] {
		if len(groups[k]) > len(groups[top]) {
			top = k
		}
	}

	amounts := groups[top]
	share := float64(len(amounts)) / float64(total)
	if share <= d.cfg.P2PShareThreshold || len(amounts) < d.cfg.P2PMinOccurrences {
		return 0, ""
	}
	cv := CoefficientOfVariation(amounts)
	if cv >= d.cfg.P2PMaxCV {
		return 0, ""
	}

	risk := d.cfg.P2PModerateRisk
	if cv < d.cfg.P2PTightCV {
		risk = d.cfg.P2PTightRisk
	}
	return risk, fmt.Sprintf("p2p: %q is %.0f%% of peer credits (%d occurrences, cv %.2f)", top, share*100, len(amounts), cv)
}

func (d *Detector) isPeerTransfer(description string) bool {
	if description == "" {
		return false
	}
	upper := strings.ToUpper(description)
	for _, kw := range d.cfg.P2PKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// NormalizeDescription folds reference numbers and spacing out of a narration
// so that repeated transfers from one source compare equal.
func NormalizeDescription(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		if unicode.IsLetter(r) {
			return unicode.ToUpper(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(cleaned), " ")
}

// CoefficientOfVariation is the population standard deviation over the mean.
// It returns +Inf for an empty or zero-mean series.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return math.Inf(1)
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq/float64(len(values))) / mean
}

// Balance combines two signals: large credits quickly reversed by a matching
// debit within the same account, and a recent mean balance far above the overall mean.
func (d *Detector) Balance(txs []domain.Transaction) (float64, []string) {
	var findings []string
	accounts := byAccount(txs)

	reversals := 0
	for _, acct := range accounts {
		reversals += d.countReversals(acct)
	}
	reversalRisk := math.Min(d.cfg.ReversalRiskCap, float64(reversals)*d.cfg.ReversalRisk)
	if reversals > 0 {
		findings = append(findings, fmt.Sprintf("balance: %d large credits reversed within %d days", reversals, d.cfg.ReversalMaxDays))
	}

	paddingRisk := 0.0
	if ratio, ok := d.recentBalanceRatio(accounts); ok && ratio > d.cfg.PaddingRatio {
		paddingRisk = d.cfg.PaddingRisk
		findings = append(findings, fmt.Sprintf("balance: recent mean balance is %.1fx the overall mean", ratio))
	}

	return math.Min(d.cfg.BalanceRiskCap, reversalRisk+paddingRisk), findings
}

func (d *Detector) countReversals(ordered []domain.Transaction) int {
	maxGap := time.Duration(d.cfg.ReversalMaxDays) * 24 * time.Hour
	tolerance := decimal.NewFromFloat(d.cfg.ReversalTolerance)
	count := 0
	for i := 0; i+1 < len(ordered); i++ {
		cur, next := ordered[i], ordered[i+1]
		if !cur.IsCredit() || next.IsCredit() || !cur.Amount.GreaterThan(d.cfg.LargeCreditThreshold) {
			continue
		}
		if next.Timestamp.Sub(cur.Timestamp) > maxGap {
			continue
		}
		if next.Amount.Sub(cur.Amount).Abs().LessThanOrEqual(cur.Amount.Mul(tolerance)) {
			count++
		}
	}
	return count
}

// recentBalanceRatio compares the mean balance over the trailing window to the
// mean over the whole history. Statement balances are used when present,
// otherwise a running balance is derived per account.
func (d *Detector) recentBalanceRatio(accounts [][]domain.Transaction) (float64, bool) {
	type point struct {
		at      time.Time
		balance float64
	}
	var points []point
	var latest time.Time
	for _, acct := range accounts {
		running := decimal.Zero
		for _, tx := range acct {
			running = running.Add(tx.Signed())
			bal := running
			if tx.BalanceAfter.Valid {
				bal = tx.BalanceAfter.Decimal
				running = bal
			}
			points = append(points, point{at: tx.Timestamp, balance: bal.InexactFloat64()})
			if tx.Timestamp.After(latest) {
				latest = tx.Timestamp
			}
		}
	}
	if len(points) == 0 {
		return 0, false
	}

	cutoff := latest.Add(-time.Duration(d.cfg.RecentBalanceDays) * 24 * time.Hour)
	var overall, recent float64
	var recentN int
	for _, p := range points {
		overall += p.balance
		if p.at.After(cutoff) {
			recent += p.balance
			recentN++
		}
	}
	overall /= float64(len(points))
	if overall <= 0 || recentN == 0 {
		return 0, false
	}
	return (recent / float64(recentN)) / overall, true
}

func byTime(txs []domain.Transaction) []domain.Transaction {
	ordered := make([]domain.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].Timestamp.Before(ordered[b].Timestamp)
	})
	return ordered
}

// byAccount splits transactions per account, each in time order, accounts sorted by ID.
func byAccount(txs []domain.Transaction) [][]domain.Transaction {
	groups := make(map[string][]domain.Transaction)
	ids := make([]string, 0)
	for _, tx := range byTime(txs) {
		if _, ok := groups[tx.AccountID]; !ok {
			ids = append(ids, tx.AccountID)
		}
		groups[tx.AccountID] = append(groups[tx.AccountID], tx)
	}
	sort.Strings(ids)
	result := make([][]domain.Transaction, 0, len(ids))
	for _, id := range ids {
		result = append(result, groups[id])
	}
	return result
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
