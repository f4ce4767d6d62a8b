package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goimay/orders/internal/config"
	"github.com/goimay/orders/internal/logger"
	prod "github.com/goimay/orders/internal/product"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config(cfg.Log)); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.L().Named("product")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo prod.Repository
	if cfg.DBType == "memory" {
		mem, err := prod.LoadMemory(cfg.ProductSeedFile)
		if err != nil {
			log.Fatal("load product seed", zap.String("file", cfg.ProductSeedFile), zap.Error(err))
		}
		repo = mem
	} else {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("connect postgres", zap.Error(err))
		}
		defer pool.Close()
		repo = prod.NewPGRepo(pool)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.ProductSvcAddr,
		Handler:           newRouter(repo, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("product-service listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("product-service stopped", zap.Error(err))
	}
}
