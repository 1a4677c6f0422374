package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mwhitfield/ledgerline/internal/features"
	apperrors "github.com/mwhitfield/ledgerline/pkg/errors"
	"github.com/mwhitfield/ledgerline/pkg/logger"
	"github.com/mwhitfield/ledgerline/pkg/metrics"
	"github.com/mwhitfield/ledgerline/pkg/response"
)

// FeatureGate rejects requests whose path is claimed by a disabled feature
// flag before any handler runs. Paths matching no requirement pass through
// untouched. Requirement or flag data being unavailable fails closed; it is
// never treated as an implicit allow.
func FeatureGate(gate *features.APIGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := gate.Check(c.Request.Context(), c.Request.URL.Path)
		if err == nil {
			c.Next()
			return
		}

		if disabled, ok := features.AsDisabled(err); ok {
			metrics.FeatureChecks.WithLabelValues(disabled.Feature, "api", "blocked").Inc()
			response.ErrorWithInfo(c, http.StatusForbidden, &response.ErrorInfo{
				Code:        apperrors.ErrFeatureDisabled.Code,
				Message:     disabled.Message(),
				FeatureFlag: disabled.Feature,
				EntityType:  disabled.EntityType,
				EntityID:    disabled.EntityID,
			})
			c.Abort()
			return
		}

		flag := "unknown"
		var cfgErr *features.ConfigurationError
		if errors.As(err, &cfgErr) && cfgErr.Flag != "" {
			flag = cfgErr.Flag
		}
		metrics.FeatureChecks.WithLabelValues(flag, "api", "error").Inc()
		logger.WithModule("http").Error("feature gate unavailable",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		response.Error(c, apperrors.ErrFeatureConfiguration)
		c.Abort()
	}
}
