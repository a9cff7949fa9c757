// Package normalize maps heterogeneous transaction records onto canonical ledger entries.
package normalize

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// StatusOK marks a result with at least one usable transaction.
const StatusOK = "OK"

// Result is the cleaned transaction set plus what was dropped on the way.
type Result struct {
	Transactions []domain.Transaction
	Status       string // StatusOK or EMPTY_TRANSACTION_SET
	Received     int
	Dropped      int
	Duplicates   int
	Diagnostics  []domain.Diagnostic
}

// Empty reports whether no usable transactions remained after cleaning.
func (r Result) Empty() bool {
	return r.Status == string(domain.EmptyTransactionSet)
}

// Normalizer converts raw records into canonical Transactions.
type Normalizer struct {
	ceiling   decimal.Decimal
	earliest  time.Time
	maxFuture time.Duration

	// Now is the clock used for the future-date cutoff.
	Now func() time.Time
}

// New creates a normalizer from the scoring configuration.
func New(cfg domain.ScoringConfig) *Normalizer {
	n := &Normalizer{
		ceiling:   cfg.OutlierCeiling,
		earliest:  cfg.EarliestDate,
		maxFuture: time.Duration(cfg.MaxFutureDays) * 24 * time.Hour,
		Now:       time.Now,
	}
	if n.ceiling.LessThanOrEqual(decimal.Zero) {
		n.ceiling = decimal.NewFromInt(1_000_000)
	}
	if n.earliest.IsZero() {
		n.earliest = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if n.maxFuture <= 0 {
		n.maxFuture = 30 * 24 * time.Hour
	}
	return n
}

// Normalize cleans, deduplicates and orders the records.
// It never fails: malformed records are dropped and reported as diagnostics,
// and an empty outcome is signalled through Result.Status.
func (n *Normalizer) Normalize(records []map[string]any) Result {
	res := Result{
		Received:     len(records),
		Transactions: make([]domain.Transaction, 0, len(records)),
	}
	latest := n.Now().UTC().Add(n.maxFuture)
	seen := make(map[string]struct{}, len(records))

	for i, raw := range records {
		tx, field, err := n.convert(newRecord(raw))
		if err != nil {
			res.Dropped++
			if field != "" {
				res.Diagnostics = append(res.Diagnostics, domain.Diagnostic{
					Kind:    domain.MalformedInput,
					Index:   i,
					Field:   field,
					Message: err.Error(),
				})
				slog.Debug("dropped malformed transaction", "index", i, "field", field, "error", err)
			}
			continue
		}

		if tx.Timestamp.Before(n.earliest) || tx.Timestamp.After(latest) {
			res.Dropped++
			res.Diagnostics = append(res.Diagnostics, domain.Diagnostic{
				Kind:    domain.MalformedInput,
				Index:   i,
				Field:   "date",
				Message: fmt.Sprintf("date %s outside accepted range", tx.Timestamp.Format("2006-01-02")),
			})
			continue
		}
		if tx.Amount.GreaterThan(n.ceiling) {
			res.Dropped++
			res.Diagnostics = append(res.Diagnostics, domain.Diagnostic{
				Kind:    domain.MalformedInput,
				Index:   i,
				Field:   "amount",
				Message: fmt.Sprintf("amount %s exceeds outlier ceiling %s", tx.Amount, n.ceiling),
			})
			continue
		}

		key := dedupeKey(tx)
		if _, dup := seen[key]; dup {
			res.Dropped++
			res.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		res.Transactions = append(res.Transactions, tx)
	}

	sort.SliceStable(res.Transactions, func(a, b int) bool {
		ta, tb := res.Transactions[a], res.Transactions[b]
		if ta.AccountID != tb.AccountID {
			return ta.AccountID < tb.AccountID
		}
		return ta.Timestamp.Before(tb.Timestamp)
	})

	res.Status = StatusOK
	if len(res.Transactions) == 0 {
		res.Status = string(domain.EmptyTransactionSet)
	}
	return res
}

// errZeroAmount drops a record without reporting it as malformed.
var errZeroAmount = fmt.Errorf("zero amount")

// convert resolves one record. A non-empty field names the offending input
// for diagnostics; zero-amount rows come back with an empty field.
func (n *Normalizer) convert(r record) (domain.Transaction, string, error) {
	var tx domain.Transaction

	rawDate, _, ok := r.lookup(dateAliases)
	if !ok {
		return tx, "date", fmt.Errorf("missing date")
	}
	ts, err := parseDate(rawDate)
	if err != nil {
		return tx, "date", err
	}
	tx.Timestamp = ts
	tx.Description = r.text(descriptionAliases)
	tx.Category = r.text(categoryAliases)
	tx.AccountID = r.text(accountAliases)

	amount, dir, field, err := n.resolveAmount(r, tx.Description, tx.Category)
	if err != nil {
		return tx, field, err
	}
	if amount.IsZero() {
		return tx, "", errZeroAmount
	}
	tx.Amount = amount
	tx.Direction = dir

	if rawBal, _, ok := r.lookup(balanceAliases); ok {
		bal, err := parseAmount(rawBal)
		if err != nil {
			return tx, "balance", err
		}
		v := bal.Value
		if bal.Marker == domain.Debit && v.IsPositive() {
			v = v.Neg()
		}
		tx.BalanceAfter = decimal.NewNullDecimal(v)
	}

	return tx, "", nil
}

// resolveAmount returns the unsigned amount and its direction.
func (n *Normalizer) resolveAmount(r record, description, category string) (decimal.Decimal, domain.Direction, string, error) {
	rawDebit, _, hasDebit := r.lookup(debitAliases)
	rawCredit, _, hasCredit := r.lookup(creditAliases)

	if hasDebit || hasCredit {
		debit, credit := decimal.Zero, decimal.Zero
		if hasDebit {
			p, err := parseAmount(rawDebit)
			if err != nil {
				return decimal.Zero, "", "debit", err
			}
			debit = p.Value.Abs()
		}
		if hasCredit {
			p, err := parseAmount(rawCredit)
			if err != nil {
				return decimal.Zero, "", "credit", err
			}
			credit = p.Value.Abs()
		}
		if !debit.IsZero() || !credit.IsZero() {
			net := credit.Sub(debit)
			if net.IsNegative() {
				return net.Abs(), domain.Debit, "", nil
			}
			return net, domain.Credit, "", nil
		}
		// Both columns empty or zero: fall through to a single amount column if any.
	}

	rawAmount, _, ok := r.lookup(amountAliases)
	if !ok {
		if hasDebit || hasCredit {
			return decimal.Zero, domain.Credit, "", nil
		}
		return decimal.Zero, "", "amount", fmt.Errorf("missing amount")
	}
	p, err := parseAmount(rawAmount)
	if err != nil {
		return decimal.Zero, "", "amount", err
	}

	return p.Value.Abs(), inferDirection(r, p, description, category), "", nil
}

// inferDirection applies, in order: an explicit direction column or sign marker,
// keyword matching on description then category, and finally the numeric sign.
func inferDirection(r record, p parsedAmount, description, category string) domain.Direction {
	if v, _, ok := r.lookup(directionAliases); ok {
		if dir, known := directionFromMarker(v); known {
			return dir
		}
	}
	if p.Marker != "" {
		return p.Marker
	}
	if dir, ok := directionFromText(description); ok {
		return dir
	}
	if dir, ok := directionFromText(category); ok {
		return dir
	}
	if p.Value.IsNegative() {
		return domain.Debit
	}
	return domain.Credit
}

func dedupeKey(tx domain.Transaction) string {
	bal := ""
	if tx.BalanceAfter.Valid {
		bal = tx.BalanceAfter.Decimal.String()
	}
	return tx.Timestamp.Format(time.RFC3339Nano) + "|" + tx.Signed().String() + "|" +
		tx.Description + "|" + bal + "|" + tx.AccountID
}
