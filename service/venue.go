package service

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"lyra/domain/fixed"
	"lyra/domain/orderbook"
	"lyra/domain/risk"
	"lyra/infra/outbox"
	"lyra/infra/sequence"
	"lyra/infra/wal"
	"lyra/marketdata"
	"lyra/metrics"
	"lyra/settlement"
)

type Config struct {
	Instruments []Instrument
	JournalDir  string

	// QueueDepth bounds each engine's command channel; a full channel
	// rejects immediately instead of queuing without bound.
	QueueDepth int
	// LevelCap is the per-price-level ring capacity, a power of two.
	LevelCap uint64
	// ReclaimInterval is the pause between epoch advances.
	ReclaimInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueDepth <= 0 {
		c.QueueDepth = 4096
	}
	if c.LevelCap == 0 {
		c.LevelCap = 1024
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = 10 * time.Millisecond
	}
}

// Deps are the venue's optional collaborators. A nil feed or outbox
// disables that path, which the tests use.
type Deps struct {
	Log    *zap.Logger
	Feed   *marketdata.Feed
	Outbox *outbox.Outbox
}

// BookLevel is one aggregated price level of a depth snapshot.
type BookLevel struct {
	Price  fixed.Value
	Qty    fixed.Value
	Orders int
}

type DepthSnapshot struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
}

// Venue owns the engines and the order id sequencer, and routes
// submissions, cancels and depth requests to the right instrument
// worker.
type Venue struct {
	cfg  Config
	log  *zap.Logger
	gate *risk.Gate
	seq  *sequence.Sequencer

	engines map[string]*Engine

	// routes maps a resting order id to its engine, so a cancel does
	// not need to carry the symbol.
	routes sync.Map

	feed   *marketdata.Feed
	outbox *outbox.Outbox
}

func New(cfg Config, gate *risk.Gate, deps Deps) (*Venue, error) {
	cfg.applyDefaults()
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	v := &Venue{
		cfg:     cfg,
		log:     log,
		gate:    gate,
		seq:     sequence.New(0),
		engines: make(map[string]*Engine, len(cfg.Instruments)),
		feed:    deps.Feed,
		outbox:  deps.Outbox,
	}

	for _, in := range cfg.Instruments {
		dir := filepath.Join(cfg.JournalDir, in.Symbol)
		journal, err := wal.Open(wal.Config{Dir: dir})
		if err != nil {
			return nil, err
		}
		e := newEngine(in, gate, v.seq, journal, dir, cfg.QueueDepth, cfg.LevelCap, log)
		e.onTrade = v.publishTrade(e)
		e.onResting = func(id uint64) { v.routes.Store(id, e) }
		e.onClosed = func(id uint64) { v.routes.Delete(id) }
		v.engines[in.Symbol] = e
	}
	return v, nil
}

func (v *Venue) publishTrade(e *Engine) func(*orderbook.Trade) {
	return func(tr *orderbook.Trade) {
		if v.outbox != nil {
			if err := v.outbox.PutNew(tr.Key(), settlement.EncodeTrade(tr)); err != nil {
				// The match stands; an unrecorded trade needs manual
				// reconciliation against the journal.
				metrics.SettlementFatal.Inc()
				v.log.Error("outbox write failed",
					zap.String("trade", tr.Key()), zap.Error(err))
			}
		}
		metrics.Trades.WithLabelValues(tr.Symbol).Inc()
		if v.feed != nil && !e.replaying {
			v.feed.Publish(tr)
		}
	}
}

// Replay rebuilds every book, the risk state and the sequencer from
// the journals. Must complete before Start.
func (v *Venue) Replay() error {
	var last uint64
	for _, e := range v.engines {
		seq, err := e.replay()
		if err != nil {
			return err
		}
		if seq > last {
			last = seq
		}
	}
	if last > v.seq.Current() {
		v.seq.Reset(last)
	}
	return nil
}

// Start launches one worker per instrument plus the epoch reclaimer.
func (v *Venue) Start(ctx context.Context) {
	for _, e := range v.engines {
		go e.Run(ctx)
	}
	go v.reclaimLoop(ctx)
}

func (v *Venue) reclaimLoop(ctx context.Context) {
	t := time.NewTicker(v.cfg.ReclaimInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, e := range v.engines {
				e.reclaim()
			}
		}
	}
}

// SubmitOrder routes an order to its instrument worker and waits for
// the outcome. A cancelled ctx abandons the wait but not the order:
// the engine may still execute it.
func (v *Venue) SubmitOrder(ctx context.Context, symbol string, req SubmitRequest) (SubmitResult, error) {
	e, ok := v.engines[symbol]
	if !ok {
		return SubmitResult{}, ErrUnknownInstrument
	}

	cmd := submitCmd{req: req, resp: make(chan submitResp, 1)}
	select {
	case e.cmds <- cmd:
	default:
		metrics.OrdersRejected.WithLabelValues(symbol, Reason(ErrEngineBusy)).Inc()
		return SubmitResult{}, ErrEngineBusy
	}
	metrics.EngineQueueDepth.WithLabelValues(symbol).Set(float64(len(e.cmds)))

	select {
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	case r := <-cmd.resp:
		if r.err != nil {
			metrics.OrdersRejected.WithLabelValues(symbol, Reason(r.err)).Inc()
		} else {
			metrics.OrdersAccepted.WithLabelValues(symbol).Inc()
		}
		return r.res, r.err
	}
}

// CancelOrder cancels a resting order by id.
func (v *Venue) CancelOrder(ctx context.Context, orderID uint64) error {
	val, ok := v.routes.Load(orderID)
	if !ok {
		return ErrOrderNotFound
	}
	e := val.(*Engine)

	cmd := cancelCmd{target: orderID, resp: make(chan error, 1)}
	select {
	case e.cmds <- cmd:
	default:
		return ErrEngineBusy
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-cmd.resp:
		if err == nil {
			metrics.Cancels.WithLabelValues(e.instrument.Symbol).Inc()
		}
		return err
	}
}

// Depth returns an aggregated snapshot of the top limit levels per
// side. The reader epoch is entered before the engine collects its
// pointers, so orders retired mid-aggregation stay valid until Exit.
func (v *Venue) Depth(ctx context.Context, symbol string, limit int) (DepthSnapshot, error) {
	e, ok := v.engines[symbol]
	if !ok {
		return DepthSnapshot{}, ErrUnknownInstrument
	}

	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.snapEpoch.Enter()
	defer e.snapEpoch.Exit()

	cmd := depthCmd{limit: limit, resp: make(chan depthResp, 1)}
	select {
	case e.cmds <- cmd:
	default:
		return DepthSnapshot{}, ErrEngineBusy
	}

	select {
	case <-ctx.Done():
		return DepthSnapshot{}, ctx.Err()
	case r := <-cmd.resp:
		return DepthSnapshot{
			Symbol: symbol,
			Bids:   aggregate(r.bids),
			Asks:   aggregate(r.asks),
		}, nil
	}
}

func aggregate(levels []rawLevel) []BookLevel {
	out := make([]BookLevel, 0, len(levels))
	for _, lvl := range levels {
		bl := BookLevel{Price: lvl.price}
		for _, o := range lvl.orders {
			bl.Qty += o.Remaining()
			bl.Orders++
		}
		if bl.Orders > 0 {
			out = append(out, bl)
		}
	}
	return out
}

// Close syncs and closes every journal. Call after the workers have
// stopped.
func (v *Venue) Close() error {
	var firstErr error
	for _, e := range v.engines {
		if err := e.journal.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := e.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
