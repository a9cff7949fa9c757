package domain

// DiagnosticKind classifies a non-fatal condition reported next to a result.
type DiagnosticKind string

const (
	// MalformedInput: an unparseable or out-of-range record or signal was dropped.
	MalformedInput DiagnosticKind = "MALFORMED_INPUT"

	// EmptyTransactionSet: no usable transactions remained after cleaning.
	EmptyTransactionSet DiagnosticKind = "EMPTY_TRANSACTION_SET"

	// SectionTimeout: a section analyzer was replaced by the neutral score.
	SectionTimeout DiagnosticKind = "SECTION_TIMEOUT"

	// ClassifierUnavailable: the injected classifier failed; the table estimate was used.
	ClassifierUnavailable DiagnosticKind = "CLASSIFIER_UNAVAILABLE"
)

// Diagnostic is metadata reported alongside a best-effort result.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Index   int            `json:"index"` // record index, -1 when not record-specific
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message"`
}
