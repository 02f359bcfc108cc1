// Package marketdata publishes the trade event stream. Consumers rely
// on the per-instrument sequence number for gap detection; delivery is
// best-effort and must never stall the matching path, so publication is
// decoupled through a bounded channel.
package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"lyra/domain/orderbook"
)

type tradeEvent struct {
	V      int    `json:"v"`
	Symbol string `json:"symbol"`
	Seq    uint64 `json:"seq"`
	Price  string `json:"price"`
	Qty    string `json:"qty"`
	Time   int64  `json:"time"`
}

type Feed struct {
	writer *kafka.Writer
	in     chan *orderbook.Trade
	log    *zap.Logger
}

func NewFeed(brokers []string, topic string, buffer int, log *zap.Logger) *Feed {
	return &Feed{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		in:  make(chan *orderbook.Trade, buffer),
		log: log,
	}
}

// Publish hands a trade to the feed without blocking. A full buffer
// drops the event; the journal and outbox still carry it, so a feed
// consumer recovers via the sequence gap.
func (f *Feed) Publish(t *orderbook.Trade) {
	select {
	case f.in <- t:
	default:
		f.log.Warn("market data buffer full, dropping event",
			zap.String("symbol", t.Symbol),
			zap.Uint64("seq", t.Seq))
	}
}

// Run drains the buffer into Kafka until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-f.in:
			f.write(ctx, t)
		}
	}
}

func (f *Feed) write(ctx context.Context, t *orderbook.Trade) {
	ev := tradeEvent{
		V:      1,
		Symbol: t.Symbol,
		Seq:    t.Seq,
		Price:  t.Price.String(),
		Qty:    t.Qty.String(),
		Time:   t.Time,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		f.log.Error("marshal trade event", zap.Error(err))
		return
	}
	err = f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.Symbol),
		Value: value,
	})
	if err != nil && ctx.Err() == nil {
		f.log.Warn("market data publish failed",
			zap.String("symbol", t.Symbol),
			zap.Uint64("seq", t.Seq),
			zap.Error(err))
	}
}

func (f *Feed) Close() error {
	return f.writer.Close()
}
