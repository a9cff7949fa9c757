package main

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Statement profiles.
const (
	ProfileClean    = "clean"
	ProfileCircular = "circular"
	ProfileP2P      = "p2p"
)

var profiles = []string{ProfileClean, ProfileCircular, ProfileP2P}

// Application mirrors the POST /assess body.
type Application struct {
	ApplicantID  string                    `json:"applicantId"`
	Transactions []map[string]any          `json:"transactions"`
	Signals      map[string]map[string]any `json:"signals,omitempty"`
	Financials   map[string]string         `json:"financials,omitempty"`
}

// Generator builds synthetic 12-month statements ending at End.
type Generator struct {
	rng *rand.Rand
	End time.Time
}

// NewGenerator returns a deterministic generator for a seed.
func NewGenerator(seed uint64, end time.Time) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), End: end}
}

// Application builds one applicant of the given profile.
func (g *Generator) Application(id int, profile string) *Application {
	app := &Application{
		ApplicantID: fmt.Sprintf("loadgen-%s-%06d", profile, id),
		Signals: map[string]map[string]any{
			"identity":   {"pan_verified": g.rng.Float64() < 0.9, "aadhaar_verified": g.rng.Float64() < 0.8},
			"debt":       {"debt_to_income": round2(0.1 + 0.5*g.rng.Float64()), "on_time_payment_ratio": round2(0.7 + 0.3*g.rng.Float64())},
			"compliance": {"gst_registration_status": "ACTIVE"},
		},
	}

	switch profile {
	case ProfileCircular:
		app.Transactions = g.circular()
	case ProfileP2P:
		app.Transactions = g.p2p()
	default:
		app.Transactions = g.clean()
	}
	return app
}

// Pick returns a profile, weighted 60/20/20 clean/circular/p2p.
func (g *Generator) Pick() string {
	switch r := g.rng.Float64(); {
	case r < 0.6:
		return ProfileClean
	case r < 0.8:
		return ProfileCircular
	default:
		return ProfileP2P
	}
}

func (g *Generator) month(i int) time.Time {
	start := time.Date(g.End.Year(), g.End.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start.AddDate(0, i-11, 0)
}

func (g *Generator) clean() []map[string]any {
	var txs []map[string]any
	salary := 40000 + float64(g.rng.IntN(80000))
	balance := salary / 2
	for i := 0; i < 12; i++ {
		m := g.month(i)
		credit := round2(salary * (0.95 + 0.1*g.rng.Float64()))
		balance += credit
		txs = append(txs, record(m.AddDate(0, 0, g.rng.IntN(3)), "deposit", credit, "SALARY ACME CORP", balance))

		for _, spend := range []struct {
			day   int
			share float64
			desc  string
		}{
			{4, 0.30, "RENT PAYMENT"},
			{12, 0.15, "BIG BASKET GROCERIES"},
			{20, 0.10, "ELECTRICITY BILL"},
		} {
			debit := round2(salary * spend.share * (0.9 + 0.2*g.rng.Float64()))
			balance -= debit
			txs = append(txs, record(m.AddDate(0, 0, spend.day), "withdrawal", debit, spend.desc, balance))
		}
	}
	return txs
}

// circular moves nearly the same amount in and out within a day, every month.
func (g *Generator) circular() []map[string]any {
	var txs []map[string]any
	amount := 100000 + float64(g.rng.IntN(200000))
	for i := 0; i < 12; i++ {
		m := g.month(i)
		in := round2(amount * (0.98 + 0.04*g.rng.Float64()))
		out := round2(in * (0.97 + 0.02*g.rng.Float64()))
		txs = append(txs,
			record(m.AddDate(0, 0, 4), "deposit", in, "NEFT FROM SHELL TRADERS", 0),
			record(m.AddDate(0, 0, 5), "withdrawal", out, "NEFT TO SHELL TRADERS", 0),
		)
	}
	return txs
}

// p2p pads income with repeated near-identical peer transfers.
func (g *Generator) p2p() []map[string]any {
	var txs []map[string]any
	base := 5000 + float64(g.rng.IntN(5000))
	for i := 0; i < 12; i++ {
		m := g.month(i)
		for j := 0; j < 4; j++ {
			amt := round2(base * (0.97 + 0.06*g.rng.Float64()))
			txs = append(txs, record(m.AddDate(0, 0, 2+7*j), "deposit", amt, "UPI TRANSFER FROM FRIEND", 0))
		}
		txs = append(txs, record(m.AddDate(0, 0, 25), "withdrawal", round2(base*2), "CASH WITHDRAWAL ATM", 0))
	}
	return txs
}

func record(date time.Time, direction string, amount float64, desc string, balance float64) map[string]any {
	r := map[string]any{
		"date":      date.Format("2006-01-02"),
		direction:   fmt.Sprintf("%.2f", amount),
		"narration": desc,
	}
	if balance != 0 {
		r["balance"] = fmt.Sprintf("%.2f", balance)
	}
	return r
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
