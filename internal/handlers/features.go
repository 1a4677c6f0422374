package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/models"
	apperrors "github.com/mwhitfield/ledgerline/pkg/errors"
	"github.com/mwhitfield/ledgerline/pkg/metrics"
	"github.com/mwhitfield/ledgerline/pkg/response"
)

// CacheInvalidator busts one gate or guard decision cache.
type CacheInvalidator interface {
	InvalidateCache()
}

// FeatureHandler is the admin surface for feature flags. Every write fans
// out an invalidation so the flag snapshot, the requirement provider and all
// layered decision caches reload on their next check.
type FeatureHandler struct {
	flags    *features.FlagService
	store    features.Store
	provider features.Provider
	gate     *features.APIGate
	audit    features.AuditSink
	caches   []CacheInvalidator
}

func NewFeatureHandler(flags *features.FlagService, store features.Store, provider features.Provider, gate *features.APIGate, audit features.AuditSink, caches ...CacheInvalidator) *FeatureHandler {
	return &FeatureHandler{
		flags:    flags,
		store:    store,
		provider: provider,
		gate:     gate,
		audit:    audit,
		caches:   caches,
	}
}

func (h *FeatureHandler) invalidate(names ...string) {
	h.flags.InvalidateCache()
	if h.provider != nil {
		h.provider.Invalidate(names...)
	}
	if h.gate != nil {
		h.gate.Invalidate()
	}
	for _, cache := range h.caches {
		if cache != nil {
			cache.InvalidateCache()
		}
	}
}

type featureFlagDTO struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	Enabled      bool                   `json:"enabled"`
	Variant      string                 `json:"variant,omitempty"`
	AccountTypes []string               `json:"account_types,omitempty"`
	Requirements *features.Requirements `json:"requirements,omitempty"`
	UpdatedAt    string                 `json:"updated_at"`
}

func mapFeatureFlag(flag *models.FeatureFlag) featureFlagDTO {
	dto := featureFlagDTO{
		Name:        flag.Name,
		Description: flag.Description,
		Enabled:     flag.Enabled,
		Variant:     flag.Variant,
		UpdatedAt:   flag.UpdatedAt.Format(time.RFC3339),
	}
	if len(flag.AccountTypes) > 0 {
		var types []string
		if err := json.Unmarshal(flag.AccountTypes, &types); err == nil {
			dto.AccountTypes = types
		}
	}
	if len(flag.Requirements) > 0 {
		var req features.Requirements
		if err := json.Unmarshal(flag.Requirements, &req); err == nil {
			dto.Requirements = &req
		}
	}
	return dto
}

func respondFlagError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, features.ErrFlagNotFound),
		errors.Is(err, features.ErrRequirementsNotFound):
		response.Error(c, apperrors.ErrNotFound)
	default:
		respondServiceError(c, err)
	}
}

// List handles GET /api/features
func (h *FeatureHandler) List(c *gin.Context) {
	flags, err := h.flags.List(requestContext(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	dtos := make([]featureFlagDTO, 0, len(flags))
	for i := range flags {
		dtos = append(dtos, mapFeatureFlag(&flags[i]))
	}

	response.Success(c, http.StatusOK, dtos)
}

// Get handles GET /api/features/:name
func (h *FeatureHandler) Get(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		response.Error(c, apperrors.NewBadRequest("flag name is required"))
		return
	}

	flag, err := h.flags.Get(requestContext(c), name)
	if err != nil {
		respondFlagError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapFeatureFlag(flag))
}

type createFeatureRequest struct {
	Name         string   `json:"name" validate:"required,max=120"`
	Description  string   `json:"description" validate:"omitempty,max=500"`
	Enabled      bool     `json:"enabled"`
	Variant      string   `json:"variant" validate:"omitempty,max=120"`
	AccountTypes []string `json:"account_types"`
}

// Create handles POST /api/features
func (h *FeatureHandler) Create(c *gin.Context) {
	var body createFeatureRequest
	if !bindAndValidate(c, &body) {
		return
	}

	flag := &models.FeatureFlag{
		Name:        body.Name,
		Description: body.Description,
		Enabled:     body.Enabled,
		Variant:     body.Variant,
	}
	if len(body.AccountTypes) > 0 {
		payload, err := json.Marshal(body.AccountTypes)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("invalid account type list"))
			return
		}
		flag.AccountTypes = payload
	}

	if err := h.flags.Create(requestContext(c), flag); err != nil {
		respondServiceError(c, err)
		return
	}

	metrics.FlagUpdates.WithLabelValues(flag.Name).Inc()
	h.invalidate(flag.Name)

	response.Success(c, http.StatusCreated, mapFeatureFlag(flag))
}

type updateFeatureRequest struct {
	Enabled      *bool     `json:"enabled"`
	Variant      *string   `json:"variant" validate:"omitempty,max=120"`
	AccountTypes *[]string `json:"account_types"`
}

// Update handles PUT /api/features/:name
func (h *FeatureHandler) Update(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		response.Error(c, apperrors.NewBadRequest("flag name is required"))
		return
	}

	var body updateFeatureRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if body.Enabled == nil && body.Variant == nil && body.AccountTypes == nil {
		response.Error(c, apperrors.NewBadRequest("no flag changes supplied"))
		return
	}

	ctx := requestContext(c)
	if body.Enabled != nil {
		if err := h.flags.SetEnabled(ctx, name, *body.Enabled); err != nil {
			respondFlagError(c, err)
			return
		}
	}
	if body.Variant != nil {
		if err := h.flags.SetVariant(ctx, name, *body.Variant); err != nil {
			respondFlagError(c, err)
			return
		}
	}
	if body.AccountTypes != nil {
		if err := h.flags.SetWhitelist(ctx, name, *body.AccountTypes); err != nil {
			respondFlagError(c, err)
			return
		}
	}

	metrics.FlagUpdates.WithLabelValues(name).Inc()
	h.invalidate(name)

	flag, err := h.flags.Get(ctx, name)
	if err != nil {
		respondFlagError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapFeatureFlag(flag))
}

// UpdateRequirements handles PUT /api/features/:name/requirements
func (h *FeatureHandler) UpdateRequirements(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		response.Error(c, apperrors.NewBadRequest("flag name is required"))
		return
	}

	var req features.Requirements
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid requirements payload"))
		return
	}

	ctx := requestContext(c)
	if err := h.store.UpdateRequirements(ctx, name, req); err != nil {
		respondFlagError(c, err)
		return
	}

	metrics.FlagUpdates.WithLabelValues(name).Inc()
	h.invalidate(name)
	if h.audit != nil {
		h.audit.LogEvent(ctx, "feature.requirements", "feature:"+name, "success", map[string]any{
			"api_patterns":        len(req.API),
			"service_patterns":    len(req.Service),
			"repository_patterns": len(req.Repository),
		})
	}

	flag, err := h.flags.Get(ctx, name)
	if err != nil {
		respondFlagError(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapFeatureFlag(flag))
}

// Invalidate handles POST /api/features/invalidate
func (h *FeatureHandler) Invalidate(c *gin.Context) {
	h.invalidate()
	if h.audit != nil {
		h.audit.LogEvent(requestContext(c), "feature.invalidate", "feature:*", "success", nil)
	}
	response.Success(c, http.StatusOK, gin.H{"invalidated": true})
}
