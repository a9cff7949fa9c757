package domain

import "errors"

// Configuration-time invariant violations. All are fatal at startup and never
// returned from a scoring call.
var (
	ErrWeightTableInvariant      = errors.New("weight table invariant violated")
	ErrTierTableInvariant        = errors.New("tier table invariant violated")
	ErrProbabilityTableInvariant = errors.New("default probability table invariant violated")
)
