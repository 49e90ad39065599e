package types

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SkipReason names an intentional, terminal skip. Skips are not errors:
// the event is acked and the reason is counted in metrics.
type SkipReason string

const (
	SkipResetWindow         SkipReason = "reset-window"
	SkipProductNotFound     SkipReason = "product-not-found"
	SkipPaused              SkipReason = "paused"
	SkipOutOfStock          SkipReason = "out-of-stock"
	SkipInactive            SkipReason = "inactive"
	SkipRepricerDisabled    SkipReason = "repricer-disabled"
	SkipStrategyNotFound    SkipReason = "strategy-not-found"
	SkipStrategyDisabled    SkipReason = "strategy-disabled"
	SkipSelfCompetition     SkipReason = "self-competition"
	SkipNoCompetitor        SkipReason = "no-competitor"
	SkipNoFBACompetitor     SkipReason = "no-fba-competitor"
	SkipNoBuyBox            SkipReason = "no-buybox"
	SkipCompetitorNotHigher SkipReason = "competitor not higher"
	SkipMissingBounds       SkipReason = "missing-bounds"
	SkipDoNothing           SkipReason = "do-nothing"
	SkipPriceUnchanged      SkipReason = "price-unchanged"
	SkipPriceBounds         SkipReason = "price-bounds"
)

// Error taxonomy. Pipeline errors wrap exactly one of these sentinels so
// ingress can decide ack / nack / DLQ without inspecting stage internals.
var (
	// ErrMalformed marks payloads that cannot be parsed or are missing
	// required fields. Never retried; the message goes to the DLQ.
	ErrMalformed = errors.New("malformed payload")

	// ErrTransient marks store or queue hiccups. The message is redelivered
	// up to the configured retry budget.
	ErrTransient = errors.New("transient failure")

	// ErrFatal marks unexpected invariant violations. Alert and DLQ.
	ErrFatal = errors.New("fatal failure")
)

// Malformedf wraps ErrMalformed with context.
func Malformedf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrMalformed)...)
}

// Transientf wraps ErrTransient with context.
func Transientf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrTransient)...)
}

// IsMalformed reports whether err is terminal for the event (no retry).
func IsMalformed(err error) bool { return errors.Is(err, ErrMalformed) }

// IsTransient reports whether err should be retried via redelivery.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// PriceBoundsError reports a candidate price outside the product's hard
// bounds. Treated as a skip, logged at warning.
type PriceBoundsError struct {
	Candidate decimal.Decimal
	Min       *decimal.Decimal
	Max       *decimal.Decimal
}

func (e *PriceBoundsError) Error() string {
	minStr, maxStr := "-", "-"
	if e.Min != nil {
		minStr = e.Min.String()
	}
	if e.Max != nil {
		maxStr = e.Max.String()
	}
	return fmt.Sprintf("price %s outside bounds [%s, %s]", e.Candidate, minStr, maxStr)
}

// OutcomeStatus tags the variant of an Outcome.
type OutcomeStatus string

const (
	OutcomePriced    OutcomeStatus = "priced"
	OutcomeUnchanged OutcomeStatus = "unchanged"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is the explicit result of running one event through the pipeline:
// a persisted price, an unchanged price, an intentional skip, or an error.
// Stages return Outcome instead of using errors as control flow.
type Outcome struct {
	Status OutcomeStatus
	Price  *CalculatedPrice // set when Status == OutcomePriced
	Reason SkipReason       // set when Status is OutcomeSkipped or OutcomeUnchanged
	Err    error            // set when Status == OutcomeFailed
}

// Priced wraps a persisted calculated price.
func Priced(cp *CalculatedPrice) Outcome {
	return Outcome{Status: OutcomePriced, Price: cp}
}

// Unchanged marks the change-only short-circuit: the computed price equals
// the listed price, so nothing was persisted.
func Unchanged() Outcome {
	return Outcome{Status: OutcomeUnchanged, Reason: SkipPriceUnchanged}
}

// Skipped marks an intentional terminal skip.
func Skipped(reason SkipReason) Outcome {
	return Outcome{Status: OutcomeSkipped, Reason: reason}
}

// Failed wraps a pipeline error.
func Failed(err error) Outcome {
	return Outcome{Status: OutcomeFailed, Err: err}
}

// Terminal reports whether the event should be acked (deleted from the
// queue): priced, unchanged, and skipped outcomes are all terminal.
func (o Outcome) Terminal() bool {
	return o.Status != OutcomeFailed
}
