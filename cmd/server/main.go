package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/messaging"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/platform/logger"
	"github.com/rl1809/storefront/internal/platform/observability"
	"github.com/rl1809/storefront/internal/port"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracingSDK(ctx, cfg.Otel)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}
	tracer := otel.Tracer(config.ServiceName)

	// Initialize store
	var (
		uow port.UnitOfWork
		db  *sql.DB
	)
	switch cfg.Store {
	case config.StoreMemory:
		uow = storage.NewMemoryStore()
		log.Info("using in-memory store")
	default:
		db, err = openMySQL(ctx, cfg.MySQL)
		if err != nil {
			log.Fatal("failed to connect mysql", zap.Error(err))
		}
		mysqlAdapter := storage.NewMySQLAdapter(db)
		if cfg.MySQL.AutoMigrate {
			if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
				log.Fatal("failed to apply schema", zap.Error(err))
			}
		}
		uow = mysqlAdapter
		log.Info("connected to mysql")
	}

	// Initialize Redis
	var (
		cache port.CacheRepository
		rdb   *redis.Client
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		cache = storage.NewRedisAdapter(rdb, cfg.Redis.ImageTTL)
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize Kafka
	var (
		publisher      port.EventPublisher
		kafkaPublisher *messaging.KafkaPublisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = messaging.NewKafkaPublisher(
			messaging.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			log,
		)
		publisher = kafkaPublisher
		log.Info("publishing order events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Initialize services
	factory := service.NewLineItemFactory(uow, cache, log, tracer)
	reversal := service.NewStockReversal(uow, log, tracer)
	orderService := service.NewOrderService(uow, factory, reversal, cache, publisher, log, tracer)
	catalogService := service.NewCatalogService(uow, cache, log)

	// Initialize gRPC server
	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryTimeout(cfg.RequestTimeout)))
		handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService, log))

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
		}

		go func() {
			log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("gRPC server error", zap.Error(err))
			}
		}()
	}

	// Initialize HTTP server
	var e *echo.Echo
	if cfg.HTTPAddr != "" {
		e = echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.Use(middleware.Recover())
		e.Use(middleware.RequestID())
		e.Use(handler.TraceContext())
		e.Use(handler.RequestTimeout(cfg.RequestTimeout))
		e.Use(handler.RequestLogger(log))
		handler.NewHTTPHandler(orderService, catalogService, log).Register(e)

		go func() {
			log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
			if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP server error", zap.Error(err))
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if e != nil {
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown", zap.Error(err))
		}
		log.Info("HTTP server stopped")
	}

	if grpcServer != nil {
		grpcServer.GracefulStop()
		log.Info("gRPC server stopped")
	}

	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Warn("kafka writer close", zap.Error(err))
		}
	}
	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
	log.Info("connections closed")
}

func openMySQL(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
