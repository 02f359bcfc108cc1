package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"lyra/api/grpcserver"
	"lyra/api/wire"
	"lyra/config"
	"lyra/domain/risk"
	"lyra/infra/outbox"
	"lyra/jobs/settledispatch"
	"lyra/marketdata"
	"lyra/metrics"
	"lyra/service"
	"lyra/settlement"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	// ---------------- Risk ----------------

	gate := risk.NewGate()
	for _, a := range cfg.Accounts {
		gate.Activate(a.ID, risk.Limits{
			MaxExposure: a.MaxExposure,
			MaxOrderQty: a.MaxOrderQty,
		})
	}

	// ---------------- Outbox ----------------

	ob, err := outbox.Open(cfg.OutboxDir)
	if err != nil {
		log.Fatal("open outbox", zap.Error(err))
	}
	defer ob.Close()

	// ---------------- Market data ----------------

	feed := marketdata.NewFeed(cfg.KafkaBrokers, cfg.TradeTopic, cfg.QueueDepth, log)
	defer feed.Close()

	// ---------------- Venue ----------------

	instruments := make([]service.Instrument, 0, len(cfg.Instruments))
	for _, in := range cfg.Instruments {
		instruments = append(instruments, service.Instrument{
			Symbol:   in.Symbol,
			TickSize: in.TickSize,
			LotSize:  in.LotSize,
		})
	}

	venue, err := service.New(service.Config{
		Instruments: instruments,
		JournalDir:  cfg.JournalDir,
		QueueDepth:  cfg.QueueDepth,
		LevelCap:    cfg.LevelCap,
	}, gate, service.Deps{
		Log:    log,
		Feed:   feed,
		Outbox: ob,
	})
	if err != nil {
		log.Fatal("build venue", zap.Error(err))
	}
	defer venue.Close()

	// ---------------- Journal replay ----------------

	if err := venue.Replay(); err != nil {
		log.Fatal("journal replay", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	venue.Start(ctx)
	go feed.Run(ctx)

	// ---------------- Settlement dispatcher ----------------

	sink, err := settlement.NewKafkaSink(cfg.KafkaBrokers, cfg.LedgerTopic)
	if err != nil {
		log.Fatal("build settlement sink", zap.Error(err))
	}
	defer sink.Close()

	dispatcher := settledispatch.New(settledispatch.DefaultConfig(), ob, sink, log)
	go dispatcher.Run(ctx)

	go reportBacklog(ctx, ob)

	// ---------------- Metrics ----------------

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server", zap.Error(err))
		}
	}()

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	grpcSrv := grpc.NewServer()
	wire.RegisterOrderServiceServer(grpcSrv, grpcserver.New(venue, log))

	go func() {
		<-ctx.Done()
		grpcSrv.GracefulStop()
	}()

	log.Info("lyra engine running",
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.Int("instruments", len(instruments)))

	if err := grpcSrv.Serve(lis); err != nil {
		log.Fatal("grpc server exited", zap.Error(err))
	}
}

// reportBacklog keeps the settlement backlog gauge current.
func reportBacklog(ctx context.Context, ob *outbox.Outbox) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := ob.PendingCount(); err == nil {
				metrics.OutboxBacklog.Set(float64(n))
			}
		}
	}
}
