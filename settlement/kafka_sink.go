package settlement

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"lyra/domain/orderbook"
)

// ledgerEntry is the message the ledger consumes. Versioned so the
// schema can evolve without breaking consumers.
type ledgerEntry struct {
	V           int    `json:"v"`
	TradeID     string `json:"trade_id"`
	Symbol      string `json:"symbol"`
	Seq         uint64 `json:"seq"`
	BuyOrder    uint64 `json:"buy_order"`
	SellOrder   uint64 `json:"sell_order"`
	BuyAccount  string `json:"buy_account"`
	SellAccount string `json:"sell_account"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	Notional    string `json:"notional"`
	Time        int64  `json:"time"`
}

// KafkaSink publishes committed trades to the ledger topic. The trade
// key is the Kafka message key, so the ledger's consumer can dedup and
// partitioning stays stable per instrument.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &KafkaSink{producer: producer, topic: topic}, nil
}

func (s *KafkaSink) Submit(ctx context.Context, t *orderbook.Trade) Result {
	if err := ctx.Err(); err != nil {
		return Result{Status: Retryable, Reason: err.Error()}
	}

	entry := ledgerEntry{
		V:           1,
		TradeID:     t.Key(),
		Symbol:      t.Symbol,
		Seq:         t.Seq,
		BuyOrder:    t.BuyOrder,
		SellOrder:   t.SellOrder,
		BuyAccount:  t.BuyAccount,
		SellAccount: t.SellAccount,
		Price:       t.Price.String(),
		Qty:         t.Qty.String(),
		Notional:    t.Notional.String(),
		Time:        t.Time,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		// Marshal of a plain struct failing means the trade itself is
		// malformed; retrying will not help.
		return Result{Status: Fatal, Reason: err.Error()}
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(t.Key()),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return Result{Status: Retryable, Reason: err.Error()}
	}
	return Result{Status: Committed}
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
