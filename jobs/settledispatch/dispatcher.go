// Package settledispatch drains the settlement outbox into the ledger
// sink. It owns the retry policy: exponential backoff on retryable
// failures, a bounded attempt budget, then escalation to FATAL for
// manual reconciliation. Matching state is never touched from here.
package settledispatch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"lyra/infra/outbox"
	"lyra/metrics"
	"lyra/settlement"
)

type Config struct {
	Interval    time.Duration
	MaxAttempts uint32
	// InitialBackoff seeds the exponential retry schedule within one
	// dispatch pass.
	InitialBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:       250 * time.Millisecond,
		MaxAttempts:    8,
		InitialBackoff: 50 * time.Millisecond,
	}
}

type Dispatcher struct {
	cfg    Config
	outbox *outbox.Outbox
	sink   settlement.Sink
	log    *zap.Logger
}

func New(cfg Config, ob *outbox.Outbox, sink settlement.Sink, log *zap.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, outbox: ob, sink: sink, log: log}
}

// Run scans the outbox on a ticker until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
				d.log.Error("outbox scan failed", zap.Error(err))
			}
		}
	}
}

// RunOnce processes every pending entry once. Exported for tests and
// for a final drain during shutdown.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	return d.outbox.ScanPending(func(e *outbox.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return d.dispatch(ctx, e)
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, e *outbox.Entry) error {
	trade, err := settlement.DecodeTrade(e.Payload)
	if err != nil {
		// An undecodable payload can never settle; park it for an
		// operator instead of spinning on it forever.
		d.log.Error("undecodable outbox entry", zap.String("trade", e.Key), zap.Error(err))
		metrics.SettlementFatal.Inc()
		return d.outbox.UpdateState(e.Key, outbox.StateFatal, e.Retries)
	}

	if err := d.outbox.UpdateState(e.Key, outbox.StateSent, e.Retries); err != nil {
		return err
	}

	attempts := e.Retries
	remaining := uint64(0)
	if d.cfg.MaxAttempts > attempts {
		remaining = uint64(d.cfg.MaxAttempts - attempts)
	}
	if remaining == 0 {
		d.log.Error("settlement attempts exhausted, flagging for reconciliation",
			zap.String("trade", e.Key),
			zap.Uint32("attempts", attempts))
		metrics.SettlementFatal.Inc()
		return d.outbox.UpdateState(e.Key, outbox.StateFatal, attempts)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.InitialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, remaining-1), ctx)

	submit := func() error {
		attempts++
		res := d.sink.Submit(ctx, trade)
		switch res.Status {
		case settlement.Committed:
			return nil
		case settlement.Fatal:
			return backoff.Permanent(errors.Errorf("sink rejected trade: %s", res.Reason))
		default:
			return errors.Errorf("retryable: %s", res.Reason)
		}
	}

	if err := backoff.Retry(submit, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Shutdown mid-retry: leave the entry SENT, the next run
			// picks it up and the sink's idempotence absorbs any
			// submission that actually landed.
			return d.outbox.UpdateState(e.Key, outbox.StateSent, attempts)
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) || attempts >= d.cfg.MaxAttempts {
			d.log.Error("settlement failed permanently",
				zap.String("trade", e.Key),
				zap.Uint32("attempts", attempts),
				zap.Error(err))
			metrics.SettlementFatal.Inc()
			return d.outbox.UpdateState(e.Key, outbox.StateFatal, attempts)
		}
		return d.outbox.UpdateState(e.Key, outbox.StateSent, attempts)
	}

	d.log.Debug("trade settled",
		zap.String("trade", e.Key),
		zap.Uint32("attempts", attempts))
	return d.outbox.UpdateState(e.Key, outbox.StateCommitted, attempts)
}
