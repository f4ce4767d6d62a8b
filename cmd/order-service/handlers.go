package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/goimay/orders/internal/httpx"
	ord "github.com/goimay/orders/internal/order"
)

// errorResponse is the body of every failed request.
// swagger:model ErrorResponse
type errorResponse struct {
	Error     string `json:"error" example:"order not found"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError maps business errors to status codes. Anything unclassified
// is logged and hidden behind a generic message.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ord.ErrValidation), errors.Is(err, ord.ErrInvalidTransition):
		status = http.StatusBadRequest
	case errors.Is(err, ord.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ord.ErrConflict):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", httpx.RID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		msg = "internal server error"
	}
	c.JSON(status, errorResponse{Error: msg, RequestID: httpx.RID(c)})
}

func caller(c *gin.Context) string {
	p, _ := httpx.PrincipalFrom(c)
	return p.Email
}

// createOrderHandler godoc
// @Summary      Place an order
// @Description  Prices are snapshotted from the catalog; the order starts as CHO_XAC_NHAN.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        body  body      ord.CreateOrderRequest  true  "checkout payload"
// @Success      200   {object}  ord.View
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Security     BearerAuth
// @Router       /api/orders [post]
func createOrderHandler(svc *ord.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json", RequestID: httpx.RID(c)})
			return
		}
		v, err := svc.CreateOrder(c.Request.Context(), caller(c), req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// listMyOrdersHandler godoc
// @Summary   List the caller's orders, newest first
// @Tags      orders
// @Produce   json
// @Success   200  {array}   ord.View
// @Security  BearerAuth
// @Router    /api/orders/my [get]
func listMyOrdersHandler(svc *ord.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svc.ListMyOrders(c.Request.Context(), caller(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// getMyOrderHandler godoc
// @Summary   Get one of the caller's orders
// @Tags      orders
// @Produce   json
// @Param     orderId  path      string  true  "order id"
// @Success   200      {object}  ord.View
// @Failure   404      {object}  errorResponse
// @Security  BearerAuth
// @Router    /api/orders/my/{orderId} [get]
func getMyOrderHandler(svc *ord.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.GetMyOrder(c.Request.Context(), caller(c), c.Param("orderId"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// markReceivedHandler godoc
// @Summary   Confirm delivery of the caller's order
// @Tags      orders
// @Produce   json
// @Param     orderId  path      string  true  "order id"
// @Success   200      {object}  ord.View
// @Failure   400      {object}  errorResponse
// @Failure   404      {object}  errorResponse
// @Security  BearerAuth
// @Router    /api/orders/my/{orderId}/received [put]
func markReceivedHandler(svc *ord.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.MarkReceived(c.Request.Context(), caller(c), c.Param("orderId"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// adminListOrdersHandler godoc
// @Summary   List all orders, newest first
// @Tags      admin
// @Produce   json
// @Param     status  query     string  false  "filter by status code"
// @Success   200     {array}   ord.View
// @Failure   400     {object}  errorResponse
// @Failure   403     {object}  errorResponse
// @Security  BearerAuth
// @Router    /api/admin/orders [get]
func adminListOrdersHandler(svc *ord.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svc.AdminListOrders(c.Request.Context(), c.Query("status"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// adminConfirmHandler godoc
// @Summary   Confirm an order
// @Tags      admin
// @Produce   json
// @Param     orderId  path      string  true  "order id"
// @Success   200      {object}  ord.View
// @Failure   400      {object}  errorResponse
// @Failure   404      {object}  errorResponse
// @Security  BearerAuth
// @Router    /api/admin/orders/{orderId}/confirm [put]
func adminConfirmHandler(svc *ord.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.AdminConfirm(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// adminCancelHandler godoc
// @Summary   Cancel an order
// @Tags      admin
// @Produce   json
// @Param     orderId  path      string  true  "order id"
// @Success   200      {object}  ord.View
// @Failure   400      {object}  errorResponse
// @Failure   404      {object}  errorResponse
// @Security  BearerAuth
// @Router    /api/admin/orders/{orderId}/cancel [put]
func adminCancelHandler(svc *ord.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.AdminCancel(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}
