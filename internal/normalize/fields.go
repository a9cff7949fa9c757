package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// record is a raw input row with case-insensitive key lookup.
type record map[string]any

func newRecord(raw map[string]any) record {
	r := make(record, len(raw))
	for k, v := range raw {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, dup := r[key]; dup {
			continue
		}
		r[key] = v
	}
	return r
}

// lookup returns the first non-empty value among aliases and the alias that matched.
func (r record) lookup(aliases []string) (any, string, bool) {
	for _, a := range aliases {
		v, ok := r[a]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, a, true
	}
	return nil, "", false
}

func (r record) text(aliases []string) string {
	v, _, ok := r.lookup(aliases)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return decimal.NewFromFloat(val).String()
	case json.Number:
		return val.String()
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// parsedAmount is a decoded money value. Marker is set when the value itself
// carries its direction (a sign, a trailing CR/DR, or accounting parentheses).
type parsedAmount struct {
	Value  decimal.Decimal // signed
	Marker domain.Direction
}

func parseAmount(v any) (parsedAmount, error) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return parsedAmount{}, fmt.Errorf("non-finite amount")
		}
		return signed(decimal.NewFromFloat(val)), nil
	case int:
		return signed(decimal.NewFromInt(int64(val))), nil
	case int64:
		return signed(decimal.NewFromInt(val)), nil
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return parsedAmount{}, fmt.Errorf("amount %q: %w", val, err)
		}
		return signed(d), nil
	case decimal.Decimal:
		return signed(val), nil
	case string:
		return parseAmountString(val)
	default:
		return parsedAmount{}, fmt.Errorf("amount has type %T, want number or string", v)
	}
}

func signed(d decimal.Decimal) parsedAmount {
	p := parsedAmount{Value: d}
	if d.IsNegative() {
		p.Marker = domain.Debit
	}
	return p
}

var currencyTokens = strings.NewReplacer(",", "", " ", "", "₹", "", "$", "", "€", "", "£", "", "INR", "", "USD", "", "RS.", "", "RS", "")

func parseAmountString(s string) (parsedAmount, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	var p parsedAmount

	switch {
	case strings.HasSuffix(raw, "CR"):
		p.Marker = domain.Credit
		raw = strings.TrimSuffix(raw, "CR")
	case strings.HasSuffix(raw, "DR"):
		p.Marker = domain.Debit
		raw = strings.TrimSuffix(raw, "DR")
	}

	negative := false
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		negative = true
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, "("), ")")
	}

	raw = strings.TrimSuffix(currencyTokens.Replace(raw), ".")
	switch {
	case strings.HasPrefix(raw, "-"):
		negative = true
		raw = raw[1:]
	case strings.HasPrefix(raw, "+"):
		if p.Marker == "" {
			p.Marker = domain.Credit
		}
		raw = raw[1:]
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return parsedAmount{}, fmt.Errorf("amount %q is not numeric", s)
	}
	if negative {
		d = d.Neg()
		if p.Marker == "" {
			p.Marker = domain.Debit
		}
	}
	p.Value = d
	return p, nil
}

func parseDate(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), nil
	case float64:
		return fromEpoch(int64(val)), nil
	case int:
		return fromEpoch(int64(val)), nil
	case int64:
		return fromEpoch(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return fromEpoch(n), nil
		}
		f, err := val.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return time.Time{}, fmt.Errorf("date %q is not a unix timestamp", val.String())
		}
		return fromEpoch(int64(f)), nil
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("date %q matches no known layout", val)
	default:
		return time.Time{}, fmt.Errorf("date has type %T, want string or number", v)
	}
}

// fromEpoch reads Unix seconds, or milliseconds when implausibly large.
func fromEpoch(n int64) time.Time {
	if n > 1e11 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// directionFromMarker reads an explicit direction column value.
func directionFromMarker(v any) (domain.Direction, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	credit, known := directionMarkers[strings.ToUpper(strings.TrimSpace(s))]
	if !known {
		return "", false
	}
	if credit {
		return domain.Credit, true
	}
	return domain.Debit, true
}

// directionFromText matches whole-word keywords against free text.
func directionFromText(text string) (domain.Direction, bool) {
	if text == "" {
		return "", false
	}
	padded := " " + strings.Join(strings.FieldsFunc(strings.ToUpper(text), isSeparator), " ") + " "
	for _, kw := range debitKeywords {
		if strings.Contains(padded, " "+kw+" ") {
			return domain.Debit, true
		}
	}
	for _, kw := range creditKeywords {
		if strings.Contains(padded, " "+kw+" ") {
			return domain.Credit, true
		}
	}
	return "", false
}

func isSeparator(r rune) bool {
	return !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9')
}
