package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mwhitfield/ledgerline/internal/handlers"
)

func registerPaymentRoutes(api *gin.RouterGroup, handler *handlers.PaymentHandler) {
	payments := api.Group("/payments")
	{
		payments.GET("", handler.List)
		payments.GET("/:id", handler.Get)
	}
}
