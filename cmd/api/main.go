package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ordercore/go-product-orders/internal/config"
	"github.com/ordercore/go-product-orders/internal/httpx"
	kafkax "github.com/ordercore/go-product-orders/internal/kafka"
	"github.com/ordercore/go-product-orders/internal/logger"
	"github.com/ordercore/go-product-orders/internal/orders"
	"github.com/ordercore/go-product-orders/internal/postgres"
	"github.com/ordercore/go-product-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	prod.Start()

	// Repos, service, handlers
	products := &postgres.ProductRepo{DB: db}
	orderRepo := &postgres.OrderRepo{DB: db}
	svc := orders.NewService(products, orderRepo, &postgres.TxManager{Pool: db}, log)

	router := httpx.NewRouter(log)
	(&httpx.OrdersHandler{
		Service:  svc,
		Producer: prod,
		Redis:    rdb,
		Name:     cfg.ServiceName,
		Log:      log,
	}).Register(router)
	(&httpx.ProductsHandler{
		Products: products,
		Redis:    rdb,
		Log:      log,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // closes the inbox -> flush & close writer
	prod.WaitClosed()
}
