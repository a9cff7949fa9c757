package sections

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Kind is the declared type of a raw signal.
type Kind string

const (
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindCode   Kind = "code"
)

// SignalSpec documents one raw signal a section reads.
type SignalSpec struct {
	Key   string             `json:"key"`
	Kind  Kind               `json:"kind"`
	Min   float64            `json:"min"`
	Max   float64            `json:"max"`
	Codes map[string]float64 `json:"codes,omitempty"` // KindCode only
	Doc   string             `json:"doc"`
}

// Signals are coerced signal values keyed by signal key.
type Signals map[string]float64

// Has reports whether key was supplied.
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Coerce converts raw JSON scalars into typed values. Unknown keys are ignored.
// Values that cannot be read as the declared kind are treated as missing and
// reported; numeric values are clamped to the declared range.
func Coerce(section domain.Section, specs []SignalSpec, raw map[string]any) (Signals, []domain.Diagnostic) {
	out := make(Signals, len(specs))
	var diags []domain.Diagnostic
	for _, spec := range specs {
		v, ok := raw[spec.Key]
		if !ok || v == nil {
			continue
		}
		f, err := coerceValue(spec, v)
		if err != nil {
			diags = append(diags, domain.Diagnostic{
				Kind:    domain.MalformedInput,
				Index:   -1,
				Field:   string(section) + "." + spec.Key,
				Message: err.Error(),
			})
			continue
		}
		out[spec.Key] = clamp(f, spec.Min, spec.Max)
	}
	return out, diags
}

func coerceValue(spec SignalSpec, v any) (float64, error) {
	switch spec.Kind {
	case KindBool:
		return coerceBool(v)
	case KindCode:
		if s, ok := v.(string); ok {
			code, known := spec.Codes[strings.ToUpper(strings.TrimSpace(s))]
			if !known {
				return 0, fmt.Errorf("unknown code %q", s)
			}
			return code, nil
		}
		return coerceNumber(v)
	default:
		return coerceNumber(v)
	}
}

func coerceNumber(v any) (float64, error) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", val)
		}
		f = parsed
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			if b, berr := coerceBool(val); berr == nil {
				return b, nil
			}
			return 0, fmt.Errorf("not a number: %q", val)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value")
	}
	return f, nil
}

func coerceBool(v any) (float64, error) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y", "1":
			return 1, nil
		case "false", "no", "n", "0":
			return 0, nil
		}
		return 0, fmt.Errorf("not a boolean: %q", val)
	default:
		f, err := coerceNumber(v)
		if err != nil {
			return 0, err
		}
		if f != 0 {
			return 1, nil
		}
		return 0, nil
	}
}

func clamp(v, lo, hi float64) float64 {
	if lo == 0 && hi == 0 {
		return v
	}
	return math.Max(lo, math.Min(hi, v))
}
