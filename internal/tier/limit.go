package tier

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	// emiRate is the monthly instalment as a share of principal.
	emiRate = decimal.RequireFromString("0.03")
	// mpbfMargin is the share of net working capital a lender may finance.
	mpbfMargin = decimal.RequireFromString("0.75")
)

// LimitInput carries the figures the limit methods read.
type LimitInput struct {
	AnnualTurnover     decimal.Decimal
	MonthlySurplus     decimal.Decimal
	CurrentAssets      decimal.NullDecimal
	CurrentLiabilities decimal.NullDecimal
	ExistingDebt       decimal.NullDecimal
}

// ComputeLimit runs the turnover, cash-flow and (when working-capital figures
// are present) MPBF methods and recommends the smallest. Limits are rounded to
// two decimal places and never negative. Ineligible tiers still get figures;
// callers decide what to do with them.
func ComputeLimit(in LimitInput, tier domain.RiskTier) domain.LoanLimitResult {
	result := domain.LoanLimitResult{
		Tier:            tier.Name,
		InterestRateMin: tier.InterestRateMin,
		InterestRateMax: tier.InterestRateMax,
		MaxTenureMonths: tier.MaxTenureMonths,
	}

	result.TurnoverMethodLimit = nonNegative(in.AnnualTurnover.Mul(decimal.NewFromFloat(tier.TurnoverMultiplier))).Round(2)
	result.CashFlowMethodLimit = CashFlowLimit(in.MonthlySurplus, tier.DSCRRequired)
	recommended := decimal.Min(result.TurnoverMethodLimit, result.CashFlowMethodLimit)

	if in.CurrentAssets.Valid && in.CurrentLiabilities.Valid {
		mpbf := MPBFLimit(in.CurrentAssets.Decimal, in.CurrentLiabilities.Decimal, in.ExistingDebt.Decimal)
		result.MPBFMethodLimit = decimal.NewNullDecimal(mpbf)
		recommended = decimal.Min(recommended, mpbf)
	}

	result.RecommendedLimit = nonNegative(recommended)
	return result
}

// CashFlowLimit is the principal whose instalment the surplus can service at
// the required coverage: (surplus / dscr) / 3%. Zero when there is no surplus.
func CashFlowLimit(monthlySurplus decimal.Decimal, dscr float64) decimal.Decimal {
	if !monthlySurplus.IsPositive() || dscr <= 0 {
		return decimal.Zero
	}
	serviceable := monthlySurplus.Div(decimal.NewFromFloat(dscr))
	return serviceable.Div(emiRate).Round(2)
}

// MPBFLimit is max(0, 0.75 * (assets - liabilities) - existing debt).
// A zero-value existingDebt means no debt.
func MPBFLimit(currentAssets, currentLiabilities, existingDebt decimal.Decimal) decimal.Decimal {
	wc := currentAssets.Sub(currentLiabilities)
	return nonNegative(mpbfMargin.Mul(wc).Sub(existingDebt)).Round(2)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
