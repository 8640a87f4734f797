package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/automakerhq/automaker/internal/detect"
	"github.com/automakerhq/automaker/internal/models"
	"github.com/automakerhq/automaker/internal/pipeline"
)

// DeploymentHandler handles deployment-related HTTP requests.
type DeploymentHandler struct {
	orchestrator *pipeline.Orchestrator
	configs      *pipeline.ConfigStore
	detector     *detect.Detector
	logger       *slog.Logger
}

// NewDeploymentHandler creates a new deployment handler.
func NewDeploymentHandler(orch *pipeline.Orchestrator, configs *pipeline.ConfigStore, detector *detect.Detector, logger *slog.Logger) *DeploymentHandler {
	return &DeploymentHandler{
		orchestrator: orch,
		configs:      configs,
		detector:     detector,
		logger:       logger,
	}
}

// ConfigResponse is the body returned by GetConfig.
type ConfigResponse struct {
	Exists bool                     `json:"exists"`
	Config *models.DeploymentConfig `json:"config"`
}

// GetConfig handles GET /v1/deployment/config?project= - returns the
// project configuration plus an existence flag. Absence of a saved document
// is a normal state, not an error.
func (h *DeploymentHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	if project == "" {
		WriteBadRequest(w, "Project path is required")
		return
	}

	WriteJSON(w, http.StatusOK, &ConfigResponse{
		Exists: h.configs.Has(project),
		Config: h.configs.Get(project),
	})
}

// SaveConfigRequest is the body accepted by SaveConfig.
type SaveConfigRequest struct {
	ProjectPath string                   `json:"projectPath"`
	Config      *models.DeploymentConfig `json:"config"`
}

// SaveConfig handles PUT /v1/deployment/config - persists the project
// configuration atomically.
func (h *DeploymentHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var req SaveConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.ProjectPath == "" {
		WriteBadRequest(w, "Project path is required")
		return
	}
	if req.Config == nil {
		WriteBadRequest(w, "Config is required")
		return
	}
	if req.Config.Version == 0 {
		req.Config.Version = models.ConfigVersion
	}

	if err := h.configs.Save(req.ProjectPath, req.Config); err != nil {
		h.logger.Error("failed to save deployment config",
			"project", req.ProjectPath,
			"error", err,
		)
		WriteInternalError(w, "Failed to save deployment configuration")
		return
	}

	WriteJSON(w, http.StatusOK, h.configs.Get(req.ProjectPath))
}

// ProposeRequest is the body accepted by Propose.
type ProposeRequest struct {
	ProjectPath string `json:"projectPath"`
}

// Propose handles POST /v1/deployment/propose - inspects the project's
// build files and returns a suggested configuration without saving it.
func (h *DeploymentHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var req ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.ProjectPath == "" {
		WriteBadRequest(w, "Project path is required")
		return
	}

	WriteJSON(w, http.StatusOK, h.detector.Propose(req.ProjectPath))
}

// DeployRequest is the body accepted by Deploy.
type DeployRequest struct {
	ProjectPath string                   `json:"projectPath"`
	Trigger     models.DeploymentTrigger `json:"trigger,omitempty"`
	FeatureIDs  []string                 `json:"featureIds,omitempty"`
}

// Deploy handles POST /v1/deployment/deploy - starts a deployment. The
// request fails synchronously when a run is already in flight or the
// project has no configuration; otherwise the pipeline runs in the
// background and the initial result snapshot is returned.
func (h *DeploymentHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.ProjectPath == "" {
		WriteBadRequest(w, "Project path is required")
		return
	}

	result, err := h.orchestrator.DeployAsync(r.Context(), req.ProjectPath, req.Trigger, req.FeatureIDs)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrDeploymentInProgress):
			WriteConflict(w, "A deployment is already in progress")
		case errors.Is(err, pipeline.ErrConfigNotFound):
			WriteBadRequest(w, "No deployment configuration saved for this project")
		default:
			h.logger.Error("failed to start deployment", "error", err)
			WriteInternalError(w, "Failed to start deployment")
		}
		return
	}

	h.logger.Info("deployment triggered",
		"deployment_id", result.ID,
		"project", req.ProjectPath,
		"trigger", result.Trigger,
	)
	WriteJSON(w, http.StatusAccepted, result)
}

// StatusResponse is the body returned by Status.
type StatusResponse struct {
	IsRunning  bool                     `json:"isRunning"`
	Deployment *models.DeploymentResult `json:"deployment"`
}

// Status handles GET /v1/deployment/status - returns the running flag and
// the current (or most recently finished) deployment.
func (h *DeploymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, &StatusResponse{
		IsRunning:  h.orchestrator.IsRunning(),
		Deployment: h.orchestrator.Current(),
	})
}

// CancelResponse is the body returned by Cancel.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// Cancel handles POST /v1/deployment/cancel - aborts the in-flight
// deployment, if any.
func (h *DeploymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, &CancelResponse{
		Cancelled: h.orchestrator.Cancel(),
	})
}

// History handles GET /v1/deployment/history?limit= - returns recent
// deployment results, newest first.
func (h *DeploymentHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteBadRequest(w, "Invalid limit")
			return
		}
		limit = n
	}

	results, err := h.orchestrator.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list deployment history", "error", err)
		WriteInternalError(w, "Failed to list deployment history")
		return
	}
	if results == nil {
		results = []*models.DeploymentResult{}
	}
	WriteJSON(w, http.StatusOK, results)
}
