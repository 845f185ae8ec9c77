//nolint:noctx // Test file uses http.NewRequest for simplicity
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frekv/gatekeeper/internal/models"
	"github.com/frekv/gatekeeper/internal/repository"
	"github.com/frekv/gatekeeper/internal/service/decision"
	"github.com/frekv/gatekeeper/internal/service/reputation"
	"github.com/frekv/gatekeeper/pkg/logger"
)

// Mock Decision Service
type mockDecisionService struct {
	applications map[uint]*models.Application
	submitErr    error
	overrideErr  error
}

func newMockDecisionService() *mockDecisionService {
	return &mockDecisionService{applications: make(map[uint]*models.Application)}
}

func (m *mockDecisionService) Submit(ctx context.Context, platformID, gameName, reason string) (*models.Application, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	app := &models.Application{
		ID:           uint(len(m.applications) + 1),
		GameName:     gameName,
		Reason:       reason,
		Status:       models.AppStatusVoting,
		VotingEndsAt: time.Now().Add(48 * time.Hour),
	}
	m.applications[app.ID] = app
	return app, nil
}

func (m *mockDecisionService) Evaluate(ctx context.Context, applicationID uint) (*models.Application, bool, error) {
	return m.applications[applicationID], false, nil
}

func (m *mockDecisionService) AdminOverride(ctx context.Context, applicationID uint, status string, actorID uint) (*models.Application, error) {
	if m.overrideErr != nil {
		return nil, m.overrideErr
	}
	app, exists := m.applications[applicationID]
	if !exists {
		return nil, repository.ErrApplicationNotFound
	}
	app.Status = status
	return app, nil
}

// Mock Voting Service
type mockVotingService struct {
	castErr  error
	tallyPos int
	tallyNeg int
	hasVoted bool
	ballot   string
}

func (m *mockVotingService) CastVote(ctx context.Context, applicationID, voterID uint, ballot string) error {
	return m.castErr
}

func (m *mockVotingService) RetractVote(ctx context.Context, applicationID, voterID uint) (bool, error) {
	return true, nil
}

func (m *mockVotingService) Tally(ctx context.Context, applicationID uint) (int, int, error) {
	return m.tallyPos, m.tallyNeg, nil
}

func (m *mockVotingService) HasVoted(ctx context.Context, applicationID, voterID uint) (bool, string, error) {
	return m.hasVoted, m.ballot, nil
}

// Mock Reputation Service
type mockReputationService struct {
	rateErr  error
	action   repository.RatingAction
	positive float64
	negative float64
}

func (m *mockReputationService) Rate(ctx context.Context, raterID, targetID uint, positive bool, reason string) (repository.RatingAction, error) {
	if m.rateErr != nil {
		return "", m.rateErr
	}
	return m.action, nil
}

func (m *mockReputationService) Aggregate(targetID uint) (float64, float64, error) {
	return m.positive, m.negative, nil
}

func (m *mockReputationService) ListRecords(targetID uint) ([]models.ReputationRecord, error) {
	return nil, nil
}

// Mock Application Store
type mockApplicationStore struct {
	applications map[uint]*models.Application
}

func (m *mockApplicationStore) GetByID(id uint) (*models.Application, error) {
	app, exists := m.applications[id]
	if !exists {
		return nil, repository.ErrApplicationNotFound
	}
	return app, nil
}

func (m *mockApplicationStore) ListByStatus(status string) ([]models.Application, error) {
	var apps []models.Application
	for _, app := range m.applications {
		if status == "" || app.Status == status {
			apps = append(apps, *app)
		}
	}
	return apps, nil
}

// Mock Settings Store
type mockSettingsStore struct {
	settings models.SystemSettings
}

func (m *mockSettingsStore) Get(defaults models.SystemSettings) (*models.SystemSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsStore) Update(defaults models.SystemSettings, update repository.SettingsUpdate) (*models.SystemSettings, error) {
	if update.MinVotes != nil {
		m.settings.MinVotes = *update.MinVotes
	}
	if update.ApprovalThresholdPercent != nil {
		m.settings.ApprovalThresholdPercent = *update.ApprovalThresholdPercent
	}
	s := m.settings
	return &s, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Health() error {
	return m.err
}

type testHarness struct {
	router      *gin.Engine
	decisions   *mockDecisionService
	votes       *mockVotingService
	reputations *mockReputationService
	apps        *mockApplicationStore
	health      *mockHealthChecker
}

func setupTestHandler(t *testing.T) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &testHarness{
		decisions:   newMockDecisionService(),
		votes:       &mockVotingService{},
		reputations: &mockReputationService{action: repository.RatingCreated},
		apps:        &mockApplicationStore{applications: make(map[uint]*models.Application)},
		health:      &mockHealthChecker{},
	}

	handler := NewHandlerWithInterfaces(
		h.decisions,
		h.votes,
		h.reputations,
		h.apps,
		&mockSettingsStore{settings: models.SystemSettings{ID: 1, MinVotes: 3, ApprovalThresholdPercent: 60}},
		h.health,
		models.SystemSettings{},
		logger.Nop(),
	)

	h.router = gin.New()
	handler.RegisterRoutes(h.router)
	return h
}

func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_GetHealth(t *testing.T) {
	h := setupTestHandler(t)

	w := performRequest(h.router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	h.health.err = assert.AnError
	w = performRequest(h.router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_SubmitApplication(t *testing.T) {
	h := setupTestHandler(t)

	w := performRequest(h.router, http.MethodPost, "/api/v1/applications", map[string]interface{}{
		"platform_id": "discord:42",
		"game_name":   "steve",
		"reason":      "friend of alex",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var app models.Application
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &app))
	assert.Equal(t, "steve", app.GameName)
	assert.Equal(t, models.AppStatusVoting, app.Status)

	// Missing required fields fail binding.
	w = performRequest(h.router, http.MethodPost, "/api/v1/applications", map[string]interface{}{
		"game_name": "steve",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.decisions.submitErr = repository.ErrOpenApplicationExists
	w = performRequest(h.router, http.MethodPost, "/api/v1/applications", map[string]interface{}{
		"platform_id": "discord:42",
		"game_name":   "steve",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_GetApplication(t *testing.T) {
	h := setupTestHandler(t)
	h.apps.applications[1] = &models.Application{ID: 1, GameName: "steve", Status: models.AppStatusVoting}
	h.votes.tallyPos = 3
	h.votes.tallyNeg = 1

	w := performRequest(h.router, http.MethodGet, "/api/v1/applications/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tally struct {
			Positive int `json:"positive"`
			Negative int `json:"negative"`
		} `json:"tally"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Tally.Positive)
	assert.Equal(t, 1, resp.Tally.Negative)

	w = performRequest(h.router, http.MethodGet, "/api/v1/applications/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(h.router, http.MethodGet, "/api/v1/applications/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CastVote(t *testing.T) {
	h := setupTestHandler(t)

	w := performRequest(h.router, http.MethodPost, "/api/v1/applications/1/votes", map[string]interface{}{
		"voter_id": 7,
		"ballot":   "positive",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Ballot values outside the enum fail binding.
	w = performRequest(h.router, http.MethodPost, "/api/v1/applications/1/votes", map[string]interface{}{
		"voter_id": 7,
		"ballot":   "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.votes.castErr = repository.ErrDuplicateVote
	w = performRequest(h.router, http.MethodPost, "/api/v1/applications/1/votes", map[string]interface{}{
		"voter_id": 7,
		"ballot":   "positive",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	h.votes.castErr = repository.ErrVoterIneligible
	w = performRequest(h.router, http.MethodPost, "/api/v1/applications/1/votes", map[string]interface{}{
		"voter_id": 7,
		"ballot":   "positive",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandler_GetVote(t *testing.T) {
	h := setupTestHandler(t)
	h.votes.hasVoted = true
	h.votes.ballot = "positive"

	w := performRequest(h.router, http.MethodGet, "/api/v1/applications/1/votes/7", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Voted  bool   `json:"voted"`
		Ballot string `json:"ballot"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Voted)
	assert.Equal(t, "positive", resp.Ballot)

	h.votes.hasVoted = false
	h.votes.ballot = ""
	w = performRequest(h.router, http.MethodGet, "/api/v1/applications/1/votes/8", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Voted)
}

func TestHandler_RetractVote(t *testing.T) {
	h := setupTestHandler(t)

	w := performRequest(h.router, http.MethodDelete, "/api/v1/applications/1/votes/7", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp["removed"])
}

func TestHandler_OverrideApplication(t *testing.T) {
	h := setupTestHandler(t)
	h.decisions.applications[1] = &models.Application{ID: 1, Status: models.AppStatusVoting}

	w := performRequest(h.router, http.MethodPost, "/api/v1/applications/1/override", map[string]interface{}{
		"status":   "banned",
		"actor_id": 9,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	h.decisions.overrideErr = decision.ErrNotAuthorized
	w = performRequest(h.router, http.MethodPost, "/api/v1/applications/1/override", map[string]interface{}{
		"status":   "banned",
		"actor_id": 9,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	h.decisions.overrideErr = decision.ErrInvalidStatus
	w = performRequest(h.router, http.MethodPost, "/api/v1/applications/1/override", map[string]interface{}{
		"status":   "reopened",
		"actor_id": 9,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandler_RateUser(t *testing.T) {
	h := setupTestHandler(t)

	w := performRequest(h.router, http.MethodPost, "/api/v1/users/2/ratings", map[string]interface{}{
		"rater_id": 1,
		"positive": true,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "created", resp["action"])

	// The positive field is required so that false is distinguishable from
	// absent.
	w = performRequest(h.router, http.MethodPost, "/api/v1/users/2/ratings", map[string]interface{}{
		"rater_id": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.reputations.rateErr = reputation.ErrSelfRating
	w = performRequest(h.router, http.MethodPost, "/api/v1/users/2/ratings", map[string]interface{}{
		"rater_id": 2,
		"positive": false,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandler_GetReputation(t *testing.T) {
	h := setupTestHandler(t)
	h.reputations.positive = 4.5
	h.reputations.negative = 1.2

	w := performRequest(h.router, http.MethodGet, "/api/v1/users/2/reputation", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Positive float64 `json:"positive"`
		Negative float64 `json:"negative"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 4.5, resp.Positive, 1e-9)
	assert.InDelta(t, 1.2, resp.Negative, 1e-9)
}

func TestHandler_Settings(t *testing.T) {
	h := setupTestHandler(t)

	w := performRequest(h.router, http.MethodGet, "/api/v1/settings", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var settings models.SystemSettings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, 3, settings.MinVotes)

	w = performRequest(h.router, http.MethodPatch, "/api/v1/settings", map[string]interface{}{
		"min_votes": 5,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, 5, settings.MinVotes)
}
