// Package admin provides the REST surface for the membership core: the
// operational entry points the chat layer and operators call after
// parsing user intent. It maps typed business outcomes to HTTP statuses;
// all policy lives in the services.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/frekv/gatekeeper/internal/models"
	"github.com/frekv/gatekeeper/internal/repository"
	"github.com/frekv/gatekeeper/internal/service/decision"
	"github.com/frekv/gatekeeper/internal/service/reputation"
	"github.com/frekv/gatekeeper/internal/service/voting"
	"github.com/frekv/gatekeeper/pkg/logger"
)

// DecisionService interface for application operations.
type DecisionService interface {
	Submit(ctx context.Context, platformID, gameName, reason string) (*models.Application, error)
	Evaluate(ctx context.Context, applicationID uint) (*models.Application, bool, error)
	AdminOverride(ctx context.Context, applicationID uint, status string, actorID uint) (*models.Application, error)
}

// VotingService interface for vote ledger operations.
type VotingService interface {
	CastVote(ctx context.Context, applicationID, voterID uint, ballot string) error
	RetractVote(ctx context.Context, applicationID, voterID uint) (bool, error)
	Tally(ctx context.Context, applicationID uint) (positive, negative int, err error)
	HasVoted(ctx context.Context, applicationID, voterID uint) (bool, string, error)
}

// ReputationService interface for reputation operations.
type ReputationService interface {
	Rate(ctx context.Context, raterID, targetID uint, positive bool, reason string) (repository.RatingAction, error)
	Aggregate(targetID uint) (positive, negative float64, err error)
	ListRecords(targetID uint) ([]models.ReputationRecord, error)
}

// ApplicationStore interface for application listings.
type ApplicationStore interface {
	GetByID(id uint) (*models.Application, error)
	ListByStatus(status string) ([]models.Application, error)
}

// SettingsStore interface for policy settings access.
type SettingsStore interface {
	Get(defaults models.SystemSettings) (*models.SystemSettings, error)
	Update(defaults models.SystemSettings, update repository.SettingsUpdate) (*models.SystemSettings, error)
}

// HealthChecker reports storage health.
type HealthChecker interface {
	Health() error
}

// Handler handles admin API requests.
type Handler struct {
	decisionService   DecisionService
	votingService     VotingService
	reputationService ReputationService
	appStore          ApplicationStore
	settingsStore     SettingsStore
	health            HealthChecker
	defaults          models.SystemSettings
	log               *logger.Logger
}

// NewHandler creates a new admin handler.
func NewHandler(
	decisionService *decision.Service,
	votingService *voting.Service,
	reputationService *reputation.Service,
	appStore *repository.ApplicationRepository,
	settingsStore *repository.SettingsRepository,
	health HealthChecker,
	defaults models.SystemSettings,
	log *logger.Logger,
) *Handler {
	return &Handler{
		decisionService:   decisionService,
		votingService:     votingService,
		reputationService: reputationService,
		appStore:          appStore,
		settingsStore:     settingsStore,
		health:            health,
		defaults:          defaults,
		log:               log,
	}
}

// NewHandlerWithInterfaces creates a new admin handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	decisionService DecisionService,
	votingService VotingService,
	reputationService ReputationService,
	appStore ApplicationStore,
	settingsStore SettingsStore,
	health HealthChecker,
	defaults models.SystemSettings,
	log *logger.Logger,
) *Handler {
	return &Handler{
		decisionService:   decisionService,
		votingService:     votingService,
		reputationService: reputationService,
		appStore:          appStore,
		settingsStore:     settingsStore,
		health:            health,
		defaults:          defaults,
		log:               log,
	}
}

// RegisterRoutes registers all admin API routes.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.GetHealth)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/applications", h.SubmitApplication)
		v1.GET("/applications", h.ListApplications)
		v1.GET("/applications/:id", h.GetApplication)
		v1.POST("/applications/:id/votes", h.CastVote)
		v1.GET("/applications/:id/votes/:voterID", h.GetVote)
		v1.DELETE("/applications/:id/votes/:voterID", h.RetractVote)
		v1.POST("/applications/:id/override", h.OverrideApplication)
		v1.POST("/users/:id/ratings", h.RateUser)
		v1.GET("/users/:id/reputation", h.GetReputation)
		v1.GET("/settings", h.GetSettings)
		v1.PATCH("/settings", h.UpdateSettings)
	}
}

// GetHealth returns storage health.
func (h *Handler) GetHealth(c *gin.Context) {
	if err := h.health.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type submitApplicationRequest struct {
	PlatformID string `json:"platform_id" binding:"required"`
	GameName   string `json:"game_name" binding:"required"`
	Reason     string `json:"reason"`
}

// SubmitApplication opens a new membership application.
func (h *Handler) SubmitApplication(c *gin.Context) {
	var req submitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.decisionService.Submit(c.Request.Context(), req.PlatformID, req.GameName, req.Reason)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

// ListApplications lists applications, optionally filtered by status.
func (h *Handler) ListApplications(c *gin.Context) {
	apps, err := h.appStore.ListByStatus(c.Query("status"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps, "count": len(apps)})
}

// GetApplication returns an application with its live tally.
func (h *Handler) GetApplication(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	app, err := h.appStore.GetByID(id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	positive, negative, err := h.votingService.Tally(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"application": app,
		"tally":       gin.H{"positive": positive, "negative": negative},
	})
}

type castVoteRequest struct {
	VoterID uint   `json:"voter_id" binding:"required"`
	Ballot  string `json:"ballot" binding:"required,oneof=positive negative"`
}

// CastVote records a ballot on an application.
func (h *Handler) CastVote(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.votingService.CastVote(c.Request.Context(), id, req.VoterID, req.Ballot); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"accepted": true})
}

// GetVote reports whether a voter has a ballot on an application.
func (h *Handler) GetVote(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	voterID, ok := parseUintParam(c, "voterID")
	if !ok {
		return
	}

	voted, ballot, err := h.votingService.HasVoted(c.Request.Context(), id, voterID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voted": voted, "ballot": ballot})
}

// RetractVote removes a voter's ballot from an open application.
func (h *Handler) RetractVote(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	voterID, ok := parseUintParam(c, "voterID")
	if !ok {
		return
	}

	removed, err := h.votingService.RetractVote(c.Request.Context(), id, voterID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

type overrideRequest struct {
	Status  string `json:"status" binding:"required"`
	ActorID uint   `json:"actor_id" binding:"required"`
}

// OverrideApplication applies an administrative status override.
func (h *Handler) OverrideApplication(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.decisionService.AdminOverride(c.Request.Context(), id, req.Status, req.ActorID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

type rateRequest struct {
	RaterID  uint   `json:"rater_id" binding:"required"`
	Positive *bool  `json:"positive" binding:"required"`
	Reason   string `json:"reason"`
}

// RateUser records a reputation rating for a target user.
func (h *Handler) RateUser(c *gin.Context) {
	targetID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action, err := h.reputationService.Rate(c.Request.Context(), req.RaterID, targetID, *req.Positive, req.Reason)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": action})
}

// GetReputation returns a target's weighted sums and standing opinions.
func (h *Handler) GetReputation(c *gin.Context) {
	targetID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	positive, negative, err := h.reputationService.Aggregate(targetID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	records, err := h.reputationService.ListRecords(targetID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"positive": positive,
		"negative": negative,
		"records":  records,
	})
}

// GetSettings returns the current policy settings.
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.settingsStore.Get(h.defaults)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings applies a partial update to the policy settings.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var update repository.SettingsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := h.settingsStore.Update(h.defaults, update)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// parseUintParam parses a positive integer path parameter, rendering a
// 400 on failure.
func parseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	val, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || val == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(val), true
}

// renderError maps typed business outcomes to HTTP statuses. Anything
// unmatched is an infrastructure fault and renders as 500.
func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrApplicationNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrDuplicateVote):
		c.JSON(http.StatusConflict, gin.H{"error": "you already voted on this application"})
	case errors.Is(err, repository.ErrOpenApplicationExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrApplicationNotOpen),
		errors.Is(err, repository.ErrRatingCooldown),
		errors.Is(err, repository.ErrDailyRatingLimitReached),
		errors.Is(err, reputation.ErrSelfRating),
		errors.Is(err, reputation.ErrRaterIneligible),
		errors.Is(err, reputation.ErrTargetIneligible),
		errors.Is(err, reputation.ErrReasonRequired),
		errors.Is(err, repository.ErrVoterIneligible),
		errors.Is(err, decision.ErrInvalidStatus):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, decision.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
