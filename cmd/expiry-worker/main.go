// The expiry worker sweeps checkout attempts whose buyers never came
// back from the gateway. Nothing was reserved for them, so the sweep is
// pure bookkeeping: SESSION_OPEN becomes ABANDONED after the TTL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MadGotten/Eventio/internal/adapters/pg"
	"github.com/MadGotten/Eventio/internal/config"
	"github.com/MadGotten/Eventio/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := pg.NewRepository(pool)

	worker := NewExpiryWorker(repo, cfg.CheckoutTTL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

type ExpiryWorker struct {
	repo   *pg.Repository
	ttl    time.Duration
	logger observability.Logger
}

func NewExpiryWorker(repo *pg.Repository, ttl time.Duration, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{repo: repo, ttl: ttl, logger: logger}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, err := w.repo.ExpireStaleAttempts(ctx, now.Add(-w.ttl))
			if err != nil {
				w.logger.Error("failed to expire stale checkout attempts", err)
				continue
			}
			if expired > 0 {
				w.logger.WithField("count", expired).Info("abandoned stale checkout attempts")
			}
		}
	}
}
