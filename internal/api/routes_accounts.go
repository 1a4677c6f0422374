package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mwhitfield/ledgerline/internal/handlers"
)

func registerAccountRoutes(api *gin.RouterGroup, handler *handlers.AccountHandler) {
	api.GET("/account-types", handler.Catalog)

	accounts := api.Group("/accounts")
	{
		accounts.GET("", handler.List)
		accounts.POST("", handler.Create)
		accounts.GET("/:id", handler.Get)
		accounts.GET("/:id/number", handler.RevealNumber)
		accounts.PATCH("/:id", handler.Update)
		accounts.DELETE("/:id", handler.Delete)
	}
}
