package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mwhitfield/ledgerline/internal/handlers"
)

func registerFeatureRoutes(admin *gin.RouterGroup, handler *handlers.FeatureHandler) {
	features := admin.Group("/features")
	{
		features.GET("", handler.List)
		features.POST("", handler.Create)
		features.POST("/invalidate", handler.Invalidate)
		features.GET("/:name", handler.Get)
		features.PUT("/:name", handler.Update)
		features.PUT("/:name/requirements", handler.UpdateRequirements)
	}
}
