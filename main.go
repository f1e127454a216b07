package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sijan324/nepshop/internal/config"
	grpcdelivery "github.com/sijan324/nepshop/internal/delivery/grpc"
	httpdelivery "github.com/sijan324/nepshop/internal/delivery/http"
	"github.com/sijan324/nepshop/internal/entity"
	"github.com/sijan324/nepshop/internal/lock"
	"github.com/sijan324/nepshop/internal/logger"
	"github.com/sijan324/nepshop/internal/messaging"
	"github.com/sijan324/nepshop/internal/messaging/amqp"
	"github.com/sijan324/nepshop/internal/messaging/kafka"
	"github.com/sijan324/nepshop/internal/messaging/watermill"
	"github.com/sijan324/nepshop/internal/repository"
	"github.com/sijan324/nepshop/internal/repository/memory"
	"github.com/sijan324/nepshop/internal/repository/postgres"
	"github.com/sijan324/nepshop/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Service: "nepshop-cart", Env: cfg.AppEnv, Level: cfg.LogLevel})

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("Service stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

type stores struct {
	carts    repository.CartStore
	products repository.ProductRepository
	outbox   repository.OutboxStore
	health   repository.Pinger
	close    func()
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	if cfg.StoreDriver == "memory" {
		store := memory.NewStore()
		catalog := memory.NewCatalog()
		if cfg.SeedProducts {
			if err := catalog.Seed(ctx, entity.SeedProducts()); err != nil {
				return nil, err
			}
		}
		slog.Info("Using in-memory cart store")
		return &stores{carts: store, products: catalog, outbox: store, health: store, close: func() {}}, nil
	}

	db, err := postgres.InitDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	products := postgres.NewProductRepository(db)
	if cfg.SeedProducts {
		if err := products.Seed(ctx, entity.SeedProducts()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to seed products: %w", err)
		}
	}
	return &stores{
		carts:    postgres.NewCartStore(db),
		products: products,
		outbox:   postgres.NewOutboxStore(db),
		health:   postgres.NewPinger(db),
		close:    func() { db.Close() },
	}, nil
}

func openBroker(cfg config.Config, log *slog.Logger) (messaging.Broker, error) {
	switch cfg.BrokerDriver {
	case "kafka":
		return kafka.NewKafkaBroker(cfg.KafkaBrokers), nil
	case "watermill":
		return watermill.NewKafka(cfg.KafkaBrokers, log)
	case "amqp":
		return amqp.NewRabbit(cfg.AMQPURL, cfg.AMQPExchange)
	case "inmemory":
		return watermill.NewGoChannel(log), nil
	default:
		return nil, nil
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	// --- Storage ---
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open stores: %w", err)
	}
	defer st.close()

	// --- Identity locker ---
	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		if err != nil {
			return err
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, "nepshop:lock:", cfg.RedisLockTTL)
		slog.Info("Using redis identity locker", "addr", cfg.RedisAddr)
	}

	// --- Cart service ---
	policy, err := service.ParseStockPolicy(cfg.StockPolicy)
	if err != nil {
		return err
	}
	cartSvc := service.NewCartService(st.carts, st.products, service.Options{
		StockPolicy:       policy,
		RenderConcurrency: cfg.RenderConcurrency,
		Locker:            locker,
	})

	// --- Broker ---
	broker, err := openBroker(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect broker: %w", err)
	}
	if broker != nil {
		defer broker.Close()
	}

	// --- HTTP API ---
	handler := httpdelivery.NewHandler(cartSvc, st.health)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpdelivery.NewRouter(handler, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- gRPC health ---
	reporter := grpcdelivery.NewHealthReporter(st.health, 5*time.Second)
	grpcServer := grpcdelivery.NewServer(reporter)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	// --- Start everything ---
	g, gctx := errgroup.WithContext(ctx)

	if broker != nil {
		relay := messaging.NewRelay(st.outbox, broker, cfg.CartEventsTopic, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		g.Go(func() error { return relay.Run(gctx) })

		listener := messaging.NewLoginListener(broker, cartSvc, cfg.LoginEventsTopic, cfg.ConsumerGroup)
		g.Go(func() error { return listener.Run(gctx) })
	} else {
		slog.Warn("No broker configured; cart events stay in the outbox")
	}

	g.Go(func() error { return reporter.Run(gctx) })

	g.Go(func() error {
		slog.Info("gRPC health server starting", "addr", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
