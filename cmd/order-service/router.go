package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/goimay/orders/internal/httpx"
	"github.com/goimay/orders/internal/metrics"
	ord "github.com/goimay/orders/internal/order"
)

type routerDeps struct {
	svc       *ord.Service
	log       *zap.Logger
	metrics   *metrics.ServerMetrics
	jwtSecret []byte
	rateRPS   float64
	rateBurst int
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(httpx.RequestID(), httpx.Recovery(d.log), httpx.Logger(d.log))
	if d.metrics != nil {
		r.Use(httpx.Metrics(d.metrics))
		r.GET("/metrics", gin.WrapH(d.metrics.Handler()))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api", httpx.RateLimit(d.rateRPS, d.rateBurst), httpx.Auth(d.jwtSecret))

	orders := api.Group("/orders")
	orders.POST("", createOrderHandler(d.svc, d.log))
	orders.GET("/my", listMyOrdersHandler(d.svc, d.log))
	orders.GET("/my/:orderId", getMyOrderHandler(d.svc, d.log))
	orders.PUT("/my/:orderId/received", markReceivedHandler(d.svc, d.log))

	admin := api.Group("/admin/orders", httpx.RequireAdmin())
	admin.GET("", adminListOrdersHandler(d.svc, d.log))
	admin.PUT("/:orderId/confirm", adminConfirmHandler(d.svc, d.log))
	admin.PUT("/:orderId/cancel", adminCancelHandler(d.svc, d.log))

	return r
}
