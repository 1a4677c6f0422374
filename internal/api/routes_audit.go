package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mwhitfield/ledgerline/internal/handlers"
)

func registerAuditRoutes(admin *gin.RouterGroup, handler *handlers.AuditHandler) {
	admin.GET("/audit", handler.List)
	admin.GET("/audit/export", handler.Export)
}
