package normalize

// Field-name aliases, in priority order. The first alias present on a record wins.
var (
	dateAliases        = []string{"date", "transaction_date", "txn_date", "value_date", "posting_date", "booking_date", "timestamp"}
	debitAliases       = []string{"debit", "withdrawal", "withdrawal_amount", "debit_amount", "dr"}
	creditAliases      = []string{"credit", "deposit", "deposit_amount", "credit_amount", "cr"}
	amountAliases      = []string{"amount", "transaction_amount", "txn_amount", "amt", "value"}
	balanceAliases     = []string{"balance", "closing_balance", "balance_after", "running_balance", "available_balance"}
	descriptionAliases = []string{"description", "narration", "particulars", "remarks", "details", "memo"}
	categoryAliases    = []string{"category", "type", "transaction_type", "txn_type"}
	accountAliases     = []string{"account_id", "account", "account_number", "account_no"}
	directionAliases   = []string{"direction", "dr_cr", "drcr", "cr_dr", "debit_credit", "indicator"}
)

// Keyword lists for direction inference on unsigned amounts. Debit keywords
// are checked first so that "CREDIT CARD PAYMENT" reads as an outflow.
var (
	debitKeywords = []string{
		"DEBIT", "WITHDRAWAL", "WDL", "ATM", "PURCHASE", "POS", "PAYMENT TO", "PAID TO",
		"EMI", "BILL", "CHARGES", "FEE", "TRANSFER TO", "CHQ PAID", "DR",
	}
	creditKeywords = []string{
		"CREDIT", "DEPOSIT", "SALARY", "REFUND", "CASHBACK", "INTEREST", "RECEIVED",
		"TRANSFER FROM", "REVERSAL", "DIVIDEND", "CR",
	}
)

// Values accepted in an explicit direction column.
var directionMarkers = map[string]bool{
	"DEBIT": false, "DR": false, "D": false, "WITHDRAWAL": false, "OUT": false, "-": false,
	"CREDIT": true, "CR": true, "C": true, "DEPOSIT": true, "IN": true, "+": true,
}

// Date layouts tried in order. Day-first layouts precede month-first ones.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"02/01/06",
	"02-01-06",
	"01/02/2006",
	"02 Jan 2006",
	"02-Jan-2006",
	"02-Jan-06",
	"2 Jan 2006",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}
