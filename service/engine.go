// Package service hosts the matching engines and the venue that routes
// to them. One engine goroutine owns one instrument's book; everything
// that mutates a book arrives through that engine's command channel, so
// book mutations are totally ordered and the journal replays them
// deterministically.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"lyra/domain/fixed"
	"lyra/domain/orderbook"
	"lyra/domain/risk"
	"lyra/infra/memory"
	"lyra/infra/sequence"
	"lyra/infra/wal"
)

// Instrument is the immutable per-symbol configuration. Changing tick
// or lot size requires restarting that instrument's engine.
type Instrument struct {
	Symbol   string
	TickSize fixed.Value
	LotSize  fixed.Value
}

type SubmitRequest struct {
	Account string
	Side    orderbook.Side
	Type    orderbook.OrderType

	// Price is the limit price; must be zero for market orders.
	Price fixed.Value
	Qty   fixed.Value

	// forced fields are set by journal replay only, so a replayed
	// command reproduces its original id and timestamp.
	forcedID   uint64
	forcedTime int64
}

// SubmitResult reports what happened to an order. Fills already
// executed stand even when the returned error is non-nil (a market
// order with an unmatched remainder).
type SubmitResult struct {
	OrderID   uint64
	FilledQty fixed.Value
	Remaining fixed.Value
	Resting   bool
}

type submitCmd struct {
	req  SubmitRequest
	resp chan submitResp
}

type submitResp struct {
	res SubmitResult
	err error
}

type cancelCmd struct {
	target uint64
	resp   chan error
}

// rawLevel carries live order pointers out of the engine goroutine.
// Receivers must hold a reader epoch before the command is sent.
type rawLevel struct {
	price  fixed.Value
	orders []*orderbook.Order
}

type depthCmd struct {
	limit int
	resp  chan depthResp
}

type depthResp struct {
	bids []rawLevel
	asks []rawLevel
}

type Engine struct {
	instrument Instrument
	book       *orderbook.Book
	gate       *risk.Gate
	seq        *sequence.Sequencer
	journal    *wal.WAL
	journalDir string
	log        *zap.Logger

	cmds chan any

	pool *memory.Pool[orderbook.Order]
	ring *memory.RetireRing

	// snapEpoch protects depth readers that dereference order pointers
	// outside this goroutine; snapMu serializes them.
	snapMu    sync.Mutex
	snapEpoch *memory.ReaderEpoch

	tradeSeq uint64

	// known holds every order id this engine ever accepted, for the
	// engine's lifetime. Resubmission of any of them is a duplicate.
	known map[uint64]struct{}

	onTrade   func(*orderbook.Trade)
	onResting func(orderID uint64)
	onClosed  func(orderID uint64)

	replaying bool
}

func newEngine(
	in Instrument,
	gate *risk.Gate,
	seq *sequence.Sequencer,
	journal *wal.WAL,
	journalDir string,
	queueDepth int,
	levelCap uint64,
	log *zap.Logger,
) *Engine {
	e := &Engine{
		instrument: in,
		gate:       gate,
		seq:        seq,
		journal:    journal,
		journalDir: journalDir,
		log:        log.With(zap.String("symbol", in.Symbol)),
		cmds:       make(chan any, queueDepth),
		pool:       memory.NewPool(func() *orderbook.Order { return &orderbook.Order{} }),
		ring:       memory.NewRetireRing(4096),
		snapEpoch:  memory.NewReaderEpoch(),
		known:      make(map[uint64]struct{}, 1024),
	}
	e.book = orderbook.NewBook(in.Symbol, levelCap)
	e.book.OnEvict(e.retire)
	return e
}

// Run is the worker loop. Exactly one goroutine per engine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-e.cmds:
			e.dispatch(c)
		}
	}
}

func (e *Engine) dispatch(c any) {
	switch cmd := c.(type) {
	case submitCmd:
		res, err := e.handleSubmit(&cmd.req)
		cmd.resp <- submitResp{res: res, err: err}
	case cancelCmd:
		cmd.resp <- e.handleCancel(cmd.target)
	case depthCmd:
		cmd.resp <- e.handleDepth(cmd.limit)
	}
}

// handleSubmit drives one order through validation, risk, the journal
// and the matching loop. Nothing is mutated before the risk reservation
// commits, and the journal append precedes the first book mutation.
func (e *Engine) handleSubmit(req *SubmitRequest) (SubmitResult, error) {
	if err := e.validate(req); err != nil {
		return SubmitResult{}, err
	}

	limits, ok := e.gate.Limits(req.Account)
	if !ok {
		return SubmitResult{}, ErrUnknownAccount
	}
	if req.Qty > limits.MaxOrderQty {
		return SubmitResult{}, ErrInvalidQuantity
	}
	if req.forcedID != 0 {
		if _, dup := e.known[req.forcedID]; dup {
			return SubmitResult{}, ErrDuplicateOrder
		}
	}

	// A market order reserves at the best opposite price. With no
	// liquidity there is nothing to reserve against and nothing to
	// fill, so the rejection happens before any state changes.
	riskPrice := req.Price
	if req.Type == orderbook.Market {
		best, ok := e.book.BestOpposite(req.Side)
		if !ok {
			return SubmitResult{}, ErrUnfilledMarketOrder
		}
		riskPrice = best
	}

	notional, err := riskPrice.Mul(req.Qty)
	if err != nil {
		return SubmitResult{}, err
	}
	if _, err := e.gate.CheckAndReserve(req.Account, notional); err != nil {
		switch {
		case errors.Is(err, risk.ErrRejected):
			return SubmitResult{}, ErrRiskRejected
		case errors.Is(err, risk.ErrUnknownAccount):
			return SubmitResult{}, ErrUnknownAccount
		}
		return SubmitResult{}, err
	}

	id, now := req.forcedID, req.forcedTime
	if id == 0 {
		id = e.seq.Next()
		now = time.Now().UnixNano()
	}
	e.known[id] = struct{}{}

	if !e.replaying {
		rec := &wal.Record{
			Type:      wal.RecordPlace,
			Seq:       id,
			Time:      now,
			Account:   req.Account,
			Symbol:    e.instrument.Symbol,
			Side:      uint8(req.Side),
			OrderType: uint8(req.Type),
			Price:     int64(req.Price),
			Qty:       int64(req.Qty),
		}
		if err := e.journal.Append(rec); err != nil {
			e.gate.Release(req.Account, notional)
			return SubmitResult{}, errors.Wrap(err, "journal place")
		}
	}

	o := e.pool.Get()
	o.ID = id
	o.Account = req.Account
	o.Symbol = e.instrument.Symbol
	o.Side = req.Side
	o.Type = req.Type
	o.Price = req.Price
	o.RiskPrice = riskPrice
	o.Qty = req.Qty
	o.Seq = id
	o.SetRemaining(req.Qty)

	return e.runMatch(o)
}

func (e *Engine) validate(req *SubmitRequest) error {
	if !req.Qty.IsPositive() || !req.Qty.IsMultipleOf(e.instrument.LotSize) {
		return ErrInvalidQuantity
	}
	switch req.Type {
	case orderbook.Limit:
		if !req.Price.IsPositive() || !req.Price.IsMultipleOf(e.instrument.TickSize) {
			return ErrInvalidTick
		}
	case orderbook.Market:
		if req.Price != 0 {
			return ErrInvalidTick
		}
	}
	return nil
}

func (e *Engine) runMatch(o *orderbook.Order) (SubmitResult, error) {
	e.book.Match(o, func(maker *orderbook.Order, price, qty fixed.Value) {
		e.emitTrade(o, maker, price, qty)
	})

	rem := o.Remaining()
	res := SubmitResult{
		OrderID:   o.ID,
		FilledQty: o.Qty - rem,
		Remaining: rem,
	}

	if rem == 0 {
		o.MarkFilled()
		e.retire(o)
		return res, nil
	}

	if o.Type == orderbook.Market {
		// The executed fills stand; only the unmatched remainder is
		// rejected, and its reservation handed back.
		e.releaseFor(o, rem)
		o.Cancel()
		e.retire(o)
		return res, ErrUnfilledMarketOrder
	}

	if err := e.book.InsertResting(o); err != nil {
		e.releaseFor(o, rem)
		o.Cancel()
		e.retire(o)
		e.log.Warn("price level saturated, rejecting remainder",
			zap.Uint64("order", o.ID),
			zap.String("price", o.Price.String()))
		return res, ErrEngineBusy
	}

	res.Resting = true
	if e.onResting != nil {
		e.onResting(o.ID)
	}
	return res, nil
}

// emitTrade builds the trade for one fill, hands reserved exposure
// back on both sides, and publishes. Runs inside the matching loop,
// after the quantity mutations are already visible.
func (e *Engine) emitTrade(taker, maker *orderbook.Order, price, qty fixed.Value) {
	e.tradeSeq++

	notional, err := price.Mul(qty)
	if err != nil {
		e.log.Error("trade notional overflow", zap.Uint64("tradeSeq", e.tradeSeq))
	}

	tr := &orderbook.Trade{
		Symbol:   e.instrument.Symbol,
		Seq:      e.tradeSeq,
		Price:    price,
		Qty:      qty,
		Notional: notional,
		Time:     time.Now().UnixNano(),
	}
	if taker.Side == orderbook.Buy {
		tr.BuyOrder, tr.BuyAccount = taker.ID, taker.Account
		tr.SellOrder, tr.SellAccount = maker.ID, maker.Account
	} else {
		tr.BuyOrder, tr.BuyAccount = maker.ID, maker.Account
		tr.SellOrder, tr.SellAccount = taker.ID, taker.Account
	}

	e.releaseFor(maker, qty)
	e.releaseFor(taker, qty)

	if maker.Status() == orderbook.Filled {
		if e.onClosed != nil {
			e.onClosed(maker.ID)
		}
		e.retire(maker)
	}

	if e.onTrade != nil {
		e.onTrade(tr)
	}
}

func (e *Engine) releaseFor(o *orderbook.Order, qty fixed.Value) {
	rel, err := o.RiskPrice.Mul(qty)
	if err != nil {
		return
	}
	e.gate.Release(o.Account, rel)
}

// handleCancel removes a resting order. The cancel consumes a sequence
// id of its own and is journaled like a placement, so replay reproduces
// the exact interleaving of placements and cancels.
func (e *Engine) handleCancel(target uint64) error {
	o, ok := e.book.Lookup(target)
	if !ok {
		return ErrOrderNotFound
	}

	// Captured before removal: once evicted the order belongs to the
	// retire ring, not to us.
	rem := o.Remaining()
	account := o.Account
	riskPrice := o.RiskPrice

	if !e.replaying {
		rec := &wal.Record{
			Type:   wal.RecordCancel,
			Seq:    e.seq.Next(),
			Time:   time.Now().UnixNano(),
			Symbol: e.instrument.Symbol,
			Target: target,
		}
		if err := e.journal.Append(rec); err != nil {
			return errors.Wrap(err, "journal cancel")
		}
	}

	if _, ok := e.book.Remove(target); !ok {
		return ErrOrderNotFound
	}

	if rel, err := riskPrice.Mul(rem); err == nil {
		e.gate.Release(account, rel)
	}
	if e.onClosed != nil {
		e.onClosed(target)
	}
	return nil
}

func (e *Engine) handleDepth(limit int) depthResp {
	collect := func(walk func(func(*orderbook.PriceLevel) bool)) []rawLevel {
		var out []rawLevel
		walk(func(lvl *orderbook.PriceLevel) bool {
			if lvl.Open() == 0 {
				return true
			}
			rl := rawLevel{price: lvl.Price}
			lvl.ForEachActive(func(o *orderbook.Order) {
				rl.orders = append(rl.orders, o)
			})
			if len(rl.orders) > 0 {
				out = append(out, rl)
			}
			return limit <= 0 || len(out) < limit
		})
		return out
	}
	return depthResp{
		bids: collect(e.book.WalkBids),
		asks: collect(e.book.WalkAsks),
	}
}

// replay re-applies the engine's journal in write order and returns
// the highest sequence id seen. Runs before the worker starts.
func (e *Engine) replay() (uint64, error) {
	e.replaying = true
	defer func() { e.replaying = false }()

	return wal.Replay(e.journalDir, func(rec *wal.Record) error {
		e.applyRecord(rec)
		return nil
	})
}

func (e *Engine) applyRecord(rec *wal.Record) {
	switch rec.Type {
	case wal.RecordPlace:
		req := SubmitRequest{
			Account:    rec.Account,
			Side:       orderbook.Side(rec.Side),
			Type:       orderbook.OrderType(rec.OrderType),
			Price:      fixed.Value(rec.Price),
			Qty:        fixed.Value(rec.Qty),
			forcedID:   rec.Seq,
			forcedTime: rec.Time,
		}
		if _, err := e.handleSubmit(&req); err != nil && !errors.Is(err, ErrUnfilledMarketOrder) {
			e.log.Warn("replayed placement rejected",
				zap.Uint64("seq", rec.Seq), zap.Error(err))
		}
	case wal.RecordCancel:
		if err := e.handleCancel(rec.Target); err != nil {
			e.log.Warn("replayed cancel rejected",
				zap.Uint64("target", rec.Target), zap.Error(err))
		}
	}
}

// retire hands an order to the epoch reclaimer. A full ring lets the
// garbage collector take the object instead of blocking the match.
func (e *Engine) retire(o *orderbook.Order) {
	_ = memory.Retire(e.ring, o)
}

// reclaim advances the epoch and returns safely retired orders to the
// pool. Called periodically from the venue.
func (e *Engine) reclaim() {
	memory.AdvanceEpochAndReclaim(e.ring, e.pool, e.snapEpoch)
}
