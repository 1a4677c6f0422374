package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mwhitfield/ledgerline/internal/features"
	apperrors "github.com/mwhitfield/ledgerline/pkg/errors"
	"github.com/mwhitfield/ledgerline/pkg/response"
)

// respondServiceError renders a service-layer failure. Feature-gate denials
// carry flag and entity context into the error body; everything else falls
// through to the standard envelope.
func respondServiceError(c *gin.Context, err error) {
	if disabled, ok := features.AsDisabled(err); ok {
		response.ErrorWithInfo(c, http.StatusForbidden, &response.ErrorInfo{
			Code:        apperrors.ErrFeatureDisabled.Code,
			Message:     disabled.Message(),
			FeatureFlag: disabled.Feature,
			EntityType:  disabled.EntityType,
			EntityID:    disabled.EntityID,
		})
		return
	}

	if features.IsConfiguration(err) {
		response.Error(c, apperrors.ErrFeatureConfiguration)
		return
	}

	response.Error(c, err)
}
