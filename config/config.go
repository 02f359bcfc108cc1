// Package config reads the server's configuration from environment
// variables. Instrument and account definitions are parsed eagerly so
// a bad tick size fails startup, not the first order.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"lyra/domain/fixed"
)

type InstrumentSpec struct {
	Symbol   string
	TickSize fixed.Value
	LotSize  fixed.Value
}

type AccountSpec struct {
	ID          string
	MaxExposure fixed.Value
	MaxOrderQty fixed.Value
}

type Config struct {
	GRPCAddr    string
	MetricsAddr string

	KafkaBrokers []string
	TradeTopic   string
	LedgerTopic  string

	JournalDir string
	OutboxDir  string

	// QueueDepth bounds each instrument worker's inbound channel.
	QueueDepth int
	// LevelCap is the per-price-level ring capacity (power of two).
	LevelCap uint64

	Instruments []InstrumentSpec
	Accounts    []AccountSpec
}

func Load() (*Config, error) {
	cfg := &Config{
		GRPCAddr:     getEnv("LYRA_GRPC_ADDR", ":50051"),
		MetricsAddr:  getEnv("LYRA_METRICS_ADDR", ":9090"),
		KafkaBrokers: strings.Split(getEnv("LYRA_KAFKA_BROKERS", "localhost:9092"), ","),
		TradeTopic:   getEnv("LYRA_TRADE_TOPIC", "lyra.trades"),
		LedgerTopic:  getEnv("LYRA_LEDGER_TOPIC", "lyra.ledger"),
		JournalDir:   getEnv("LYRA_JOURNAL_DIR", "./journal"),
		OutboxDir:    getEnv("LYRA_OUTBOX_DIR", "./outbox"),
		QueueDepth:   getEnvInt("LYRA_QUEUE_DEPTH", 4096),
		LevelCap:     uint64(getEnvInt("LYRA_LEVEL_CAP", 1024)),
	}

	instruments, err := parseInstruments(getEnv("LYRA_INSTRUMENTS", "BTC-USD:0.01:0.0001"))
	if err != nil {
		return nil, err
	}
	cfg.Instruments = instruments

	accounts, err := parseAccounts(os.Getenv("LYRA_ACCOUNTS"))
	if err != nil {
		return nil, err
	}
	cfg.Accounts = accounts

	return cfg, nil
}

// parseInstruments reads "SYMBOL:tick:lot,SYMBOL:tick:lot".
func parseInstruments(s string) ([]InstrumentSpec, error) {
	var out []InstrumentSpec
	for _, part := range splitList(s) {
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, errors.Errorf("config: bad instrument %q", part)
		}
		tick, err := fixed.Parse(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "config: instrument %q tick", fields[0])
		}
		lot, err := fixed.Parse(fields[2])
		if err != nil {
			return nil, errors.Wrapf(err, "config: instrument %q lot", fields[0])
		}
		if !tick.IsPositive() || !lot.IsPositive() {
			return nil, errors.Errorf("config: instrument %q needs positive tick and lot", fields[0])
		}
		out = append(out, InstrumentSpec{Symbol: fields[0], TickSize: tick, LotSize: lot})
	}
	return out, nil
}

// parseAccounts reads "id:maxExposure:maxOrderQty,...".
func parseAccounts(s string) ([]AccountSpec, error) {
	var out []AccountSpec
	for _, part := range splitList(s) {
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, errors.Errorf("config: bad account %q", part)
		}
		maxExp, err := fixed.Parse(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "config: account %q max exposure", fields[0])
		}
		maxQty, err := fixed.Parse(fields[2])
		if err != nil {
			return nil, errors.Wrapf(err, "config: account %q max order qty", fields[0])
		}
		out = append(out, AccountSpec{ID: fields[0], MaxExposure: maxExp, MaxOrderQty: maxQty})
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
