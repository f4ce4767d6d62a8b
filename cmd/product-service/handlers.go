package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/goimay/orders/internal/httpx"
	prod "github.com/goimay/orders/internal/product"
)

// getProductHandler serves the fields order pricing reads.
func getProductHandler(repo prod.Repository, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, prod.ErrNotFound) {
				c.JSON(http.StatusNotFound, prod.HTTPError{Error: "not found"})
				return
			}
			log.Error("get product", zap.String("request_id", httpx.RID(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, prod.HTTPError{Error: "internal server error"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func newRouter(repo prod.Repository, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(httpx.RequestID(), httpx.Recovery(log), httpx.Logger(log))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/products/:id", getProductHandler(repo, log))
	return r
}
