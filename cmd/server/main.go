package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cartel-codes/theme-nv-sub002/internal/adapter/handler"
	"github.com/cartel-codes/theme-nv-sub002/internal/adapter/messaging"
	"github.com/cartel-codes/theme-nv-sub002/internal/adapter/storage"
	"github.com/cartel-codes/theme-nv-sub002/internal/adapter/telemetry"
	"github.com/cartel-codes/theme-nv-sub002/internal/config"
	"github.com/cartel-codes/theme-nv-sub002/internal/core/domain"
	"github.com/cartel-codes/theme-nv-sub002/internal/core/service"
	"github.com/cartel-codes/theme-nv-sub002/internal/logger"
	"github.com/cartel-codes/theme-nv-sub002/internal/port"
)

type stores struct {
	inventory port.InventoryRepository
	orders    port.OrderRepository
	memory    *storage.MemoryAdapter
	db        *sql.DB
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	// Rate limiting and request idempotency
	var (
		limiter     port.RateLimiter
		idempotency port.IdempotencyStore
	)
	if st.memory != nil {
		idempotency = st.memory
	}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

		redisAdapter := storage.NewRedisAdapter(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		idempotency = redisAdapter
		if cfg.RateLimit.Enabled {
			limiter = redisAdapter
		}
	} else if cfg.RateLimit.Enabled {
		memLimiter := storage.NewMemoryRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		defer memLimiter.Close()
		limiter = memLimiter
	}
	if idempotency == nil {
		// MySQL holds inventory but idempotency keys still need a home.
		idempotency = storage.NewMemoryAdapter()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	opts := []service.Option{service.WithMetrics(metrics), service.WithLogger(log)}

	var amqpConn *amqp.Connection
	if cfg.AMQP.Enabled {
		amqpConn, err = amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		defer amqpConn.Close()

		publisher, err := messaging.NewPublisher(amqpConn)
		if err != nil {
			return fmt.Errorf("create publisher: %w", err)
		}
		defer publisher.Close()
		opts = append(opts, service.WithPublisher(publisher))
		log.Info("connected to amqp")
	}

	inventoryService := service.NewInventoryService(st.inventory, opts...)
	orderService := service.NewOrderService(st.orders, idempotency, cfg.Worker.QueueSize, log)

	if amqpConn != nil {
		stopConsumer, err := messaging.StartPaymentConfirmedConsumer(ctx, amqpConn,
			messaging.PaymentConfirmedHandler(inventoryService, log), log)
		if err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		defer stopConsumer()
	}

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, orderService.GetDecrementQueue(), inventoryService, cfg.Worker.Timeout, log)
		}(i)
	}
	log.Info("started workers", zap.Int("count", cfg.Worker.Count))

	grpcServer := grpc.NewServer()
	handler.RegisterInventoryServiceServer(grpcServer, handler.NewGRPCHandler(inventoryService))

	lis, err := net.Listen("tcp", cfg.App.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.App.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	httpHandler := handler.NewHTTPHandler(inventoryService, orderService, log)
	httpServer := &http.Server{
		Addr: cfg.App.HTTPAddr,
		Handler: handler.NewRouter(httpHandler, handler.RouterConfig{
			Limiter: limiter,
			Metrics: metrics,
			Logger:  log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	// Close decrement queue and wait for workers
	orderService.Close()
	wg.Wait()
	log.Info("workers stopped")

	return nil
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (stores, error) {
	if cfg.Driver == "memory" {
		mem := storage.NewMemoryAdapter()
		log.Info("using in-memory inventory store")
		return stores{inventory: mem, orders: mem, memory: mem}, nil
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return stores{}, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return stores{}, fmt.Errorf("ping mysql: %w", err)
	}
	log.Info("connected to mysql")

	if cfg.RunMigrations {
		if err := storage.RunMigrations(db, log); err != nil {
			db.Close()
			return stores{}, err
		}
	}

	mysqlAdapter := storage.NewMySQLAdapter(db)
	return stores{inventory: mysqlAdapter, orders: mysqlAdapter, db: db}, nil
}

func workerLoop(id int, queue <-chan string, svc *service.InventoryService, timeout time.Duration, log *zap.Logger) {
	for orderID := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)

		err := svc.DecrementStockForOrder(ctx, orderID)
		var txErr *domain.TransactionError
		switch {
		case err == nil:
			log.Debug("order decremented", zap.Int("worker", id), zap.String("order_id", orderID))
		case errors.As(err, &txErr):
			// The whole order rolled back; it stays undecremented and can be retried.
			log.Error("decrement aborted", zap.Int("worker", id), zap.String("order_id", orderID), zap.Error(err))
		default:
			log.Warn("decrement rejected", zap.Int("worker", id), zap.String("order_id", orderID), zap.Error(err))
		}

		cancel()
	}
}
