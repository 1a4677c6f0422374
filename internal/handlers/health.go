package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/pkg/errors"
	"github.com/mwhitfield/ledgerline/pkg/response"
)

// Health reports liveness. With a database handle it also pings the
// underlying connection so load balancers drop instances that lost storage.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			sqlDB, err := db.DB()
			if err != nil || sqlDB.PingContext(ctx) != nil {
				response.Error(c, errors.New("SERVICE_UNAVAILABLE", "Database is unreachable", http.StatusServiceUnavailable))
				return
			}
		}

		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
