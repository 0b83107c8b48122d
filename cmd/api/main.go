package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/MadGotten/Eventio/internal/adapters/mongo"
	"github.com/MadGotten/Eventio/internal/adapters/pg"
	redisadapter "github.com/MadGotten/Eventio/internal/adapters/redis"
	"github.com/MadGotten/Eventio/internal/assets"
	"github.com/MadGotten/Eventio/internal/checkout"
	"github.com/MadGotten/Eventio/internal/config"
	"github.com/MadGotten/Eventio/internal/domain"
	"github.com/MadGotten/Eventio/internal/events"
	httphandler "github.com/MadGotten/Eventio/internal/http"
	"github.com/MadGotten/Eventio/internal/idempotency"
	"github.com/MadGotten/Eventio/internal/observability"
	"github.com/MadGotten/Eventio/internal/payment"
	"github.com/MadGotten/Eventio/internal/rateLimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := pg.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	recon := mongoadapter.NewReconciliationLog(mongoClient.Database("eventio"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour)
	rl := rateLimit.NewRateLimiter(cache)

	assetStore, err := assets.NewCloudinaryStore(cfg.CloudinaryURL)
	if err != nil {
		log.Fatalf("failed to init asset store: %v", err)
	}

	gateway := payment.NewStripeGateway(cfg.StripeKey, cfg.GatewayTimeout)

	checkoutSvc := checkout.NewService(repo, gateway, recon, logger,
		cfg.Currency, cfg.PublicBaseURL, cfg.GatewayTimeout)

	eventSvc := events.NewService(repo, cache, assetStore, logger)
	eventSvc.OnDelete(func(ctx context.Context, event domain.Event) error {
		return cache.InvalidateEvent(ctx, event.ID)
	})
	eventSvc.OnDelete(func(ctx context.Context, event domain.Event) error {
		if event.BannerPublicID == "" {
			return nil
		}
		return assetStore.Delete(ctx, event.BannerPublicID)
	})
	eventSvc.OnDelete(func(ctx context.Context, event domain.Event) error {
		payload, _ := json.Marshal(map[string]interface{}{"event_id": event.ID})
		return repo.InsertOutboxDirect(ctx, pg.OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "event",
			AggregateID:   event.ID,
			EventType:     "event.deleted",
			Payload:       payload,
			DedupeKey:     uuid.NewString(),
		})
	})

	handlers := httphandler.NewHandlers(checkoutSvc, eventSvc, repo, idemp, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
