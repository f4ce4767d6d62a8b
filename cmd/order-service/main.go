// @title           Goimay Order Service
// @version         1.0
// @description     Checkout and order lifecycle for the Goimay storefront.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	_ "github.com/goimay/orders/docs"
	"github.com/goimay/orders/internal/config"
	"github.com/goimay/orders/internal/logger"
	"github.com/goimay/orders/internal/metrics"
	ord "github.com/goimay/orders/internal/order"
	"github.com/goimay/orders/internal/retry"
)

const grpcServiceName = "goimay.orders.v1.OrderService"

func init() {
	// money goes out as JSON numbers, the way the storefront expects it
	decimal.MarshalJSONWithoutQuotes = true
}

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config(cfg.Log)); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("config loaded",
		zap.String("order_service_addr", cfg.OrderSvcAddr),
		zap.String("order_grpc_addr", cfg.OrderGRPCAddr),
		zap.String("db_type", cfg.DBType),
		zap.String("product_service_baseurl", cfg.ProductSvcBaseURL))

	if err := run(cfg, log); err != nil {
		log.Fatal("order-service stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return err
	}
	layout := ord.LegacyTimeLayout
	if strings.EqualFold(cfg.TimeFormat, "iso") {
		layout = ord.ISOTimeLayout
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	var publisher ord.EventPublisher = ord.NopPublisher{}
	if kp := ord.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaOrderTopic); kp != nil {
		defer kp.Close()
		publisher = kp
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewServerMetrics("orders", reg)

	retryCfg := retry.DefaultConfig
	retryCfg.MaxAttempts = cfg.RetryMaxAttempts
	retryCfg.InitialDelay = cfg.RetryInitialDelay
	retryCfg.MaxDelay = cfg.RetryMaxDelay

	svc := ord.NewService(st.repo, st.catalog, st.users,
		ord.WithLogger(log.Named("order")),
		ord.WithPublisher(publisher),
		ord.WithRecorder(m),
		ord.WithRetry(retryCfg),
		ord.WithTimeFormat(loc, layout),
	)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: cfg.OrderSvcAddr,
		Handler: newRouter(routerDeps{
			svc:       svc,
			log:       log,
			metrics:   m,
			jwtSecret: []byte(cfg.JWTSecret),
			rateRPS:   cfg.RateLimitRPS,
			rateBurst: cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("order-service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.OrderGRPCAddr)
		if err != nil {
			return err
		}
		log.Info("grpc health listening", zap.String("addr", cfg.OrderGRPCAddr))
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		gs.GracefulStop()
		return err
	})
	return g.Wait()
}
