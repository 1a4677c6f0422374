package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mwhitfield/ledgerline/internal/handlers"
)

func registerBillRoutes(api *gin.RouterGroup, handler *handlers.BillHandler) {
	bills := api.Group("/bills")
	{
		bills.GET("", handler.List)
		bills.POST("", handler.Create)
		bills.GET("/:id", handler.Get)
		bills.PATCH("/:id", handler.Update)
		bills.DELETE("/:id", handler.Delete)
		bills.POST("/:id/pay", handler.Pay)
		bills.PUT("/:id/autopay", handler.SetAutoPay)
	}
}
