package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/safar/order-engine/internal/address"
	"github.com/safar/order-engine/internal/auth"
	"github.com/safar/order-engine/internal/catalog"
	"github.com/safar/order-engine/internal/config"
	"github.com/safar/order-engine/internal/database"
	"github.com/safar/order-engine/internal/events"
	"github.com/safar/order-engine/internal/httpapi"
	"github.com/safar/order-engine/internal/logger"
	"github.com/safar/order-engine/internal/orders"
	"github.com/safar/order-engine/internal/redisx"
	"github.com/safar/order-engine/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal("Connect to database", zap.Error(err))
	}
	defer db.Close()
	log.Info("Connected to database")

	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, db, migrations.FS, "up")
		if err != nil {
			log.Fatal("Apply migrations", zap.Error(err))
		}
		log.Info("Migrations applied", zap.Strings("files", applied))
	}

	var (
		rdb    *redis.Client
		locker orders.Locker
		idem   httpapi.Idempotency
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redisx.New(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		locker = redisx.NewLocker(rdb)
		idem = redisx.NewIdempotencyStore(rdb)
		log.Info("Connected to redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		log.Warn("REDIS_ADDR not set, idempotency keys and sweep lock disabled")
	}

	var publisher events.Publisher = events.NopPublisher{}
	var kafkaPub *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, 1024, log.Named("events"))
		kafkaPub.Start()
		publisher = kafkaPub
		log.Info("Publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	orderSvc := orders.NewService(db, cfg.Order,
		orders.WithValidator(address.BasicValidator{}),
		orders.WithPricer(orders.ZeroPricer{}),
		orders.WithPublisher(publisher),
		orders.WithLogger(log.Named("orders")),
		orders.WithProducer(cfg.Log.ServiceName),
	)
	sweeper := orders.NewSweeper(orderSvc, cfg.Sweeper, locker, log.Named("sweeper"))

	limiter := httpapi.NewIPRateLimiter(rate.Limit(cfg.RateLimit.OrderRPS), cfg.RateLimit.OrderBurst)

	router := httpapi.NewRouter(httpapi.Deps{
		Orders:      orderSvc,
		Catalog:     catalog.NewService(db, log.Named("catalog")),
		Sweeper:     sweeper,
		Auth:        auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		Idempotency: idem,
		OrderLimit:  limiter,
		Logger:      log,
		Ready: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		limiter.RunJanitor(ctx, time.Minute, 10*time.Minute)
	}()

	if cfg.Sweeper.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(ctx)
		}()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown", zap.Error(err))
	}

	// Stop background loops before closing the publisher they write to.
	cancel()
	wg.Wait()

	if kafkaPub != nil {
		kafkaPub.Close()
	}
	log.Info("Shutdown complete")
}
