// Package settlement defines the contract with the downstream ledger.
// A trade is already final in the book when it reaches this package;
// settlement failures are retried or escalated, never rolled back into
// the matching state.
package settlement

import (
	"context"

	"lyra/domain/orderbook"
)

type Status uint8

const (
	// Committed: the ledger accepted the trade (or had it already).
	Committed Status = iota
	// Retryable: transient failure, resubmit later with backoff.
	Retryable
	// Fatal: the sink permanently rejects this trade.
	Fatal
)

func (s Status) String() string {
	switch s {
	case Committed:
		return "COMMITTED"
	case Retryable:
		return "RETRYABLE"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

type Result struct {
	Status Status
	Reason string
}

// Sink is the external ledger. Submit must be idempotent on the trade
// key: resubmitting an already-committed trade is a no-op upstream.
type Sink interface {
	Submit(ctx context.Context, trade *orderbook.Trade) Result
}
