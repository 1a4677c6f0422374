package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mwhitfield/ledgerline/internal/handlers"
)

func registerIncomeRoutes(api *gin.RouterGroup, handler *handlers.IncomeHandler) {
	incomes := api.Group("/incomes")
	{
		incomes.GET("", handler.List)
		incomes.POST("", handler.Create)
		incomes.GET("/:id", handler.Get)
		incomes.PATCH("/:id", handler.Update)
		incomes.DELETE("/:id", handler.Delete)
		incomes.POST("/:id/receive", handler.Receive)
	}
}
