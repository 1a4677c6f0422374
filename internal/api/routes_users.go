package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mwhitfield/ledgerline/internal/handlers"
)

// Self-service profile routes live on the plain authenticated group; user
// administration requires the admin claim.
func registerUserRoutes(api *gin.RouterGroup, admin *gin.RouterGroup, handler *handlers.UserHandler) {
	api.PATCH("/users/me", handler.UpdateProfile)
	api.POST("/users/me/password", handler.ChangePassword)

	users := admin.Group("/users")
	{
		users.GET("", handler.List)
		users.POST("", handler.Create)
		users.GET("/:id", handler.Get)
		users.PUT("/:id/active", handler.SetActive)
	}
}
