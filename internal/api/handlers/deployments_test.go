package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/automakerhq/automaker/internal/detect"
	"github.com/automakerhq/automaker/internal/models"
	"github.com/automakerhq/automaker/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T) (*DeploymentHandler, *pipeline.ConfigStore, string) {
	t.Helper()

	configs := pipeline.NewConfigStore(nil)
	orch := pipeline.NewOrchestrator(configs, nil,
		pipeline.WithProbe(pipeline.NewHealthProbeWithInterval(10*time.Millisecond, nil)),
	)
	h := NewDeploymentHandler(orch, configs, detect.NewDetector(nil), testLogger())
	return h, configs, t.TempDir()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestGetConfigRequiresProject(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.GetConfig(rec, httptest.NewRequest(http.MethodGet, "/v1/deployment/config", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var apiErr APIError
	decodeBody(t, rec, &apiErr)
	if apiErr.Code != ErrCodeInvalidRequest {
		t.Errorf("expected %s, got %s", ErrCodeInvalidRequest, apiErr.Code)
	}
}

func TestGetConfigMissingReturnsDefaults(t *testing.T) {
	h, _, project := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.GetConfig(rec, httptest.NewRequest(http.MethodGet, "/v1/deployment/config?project="+project, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ConfigResponse
	decodeBody(t, rec, &resp)
	if resp.Exists {
		t.Error("expected exists false for unconfigured project")
	}
	if resp.Config == nil || resp.Config.Version != models.ConfigVersion {
		t.Errorf("expected default config, got %+v", resp.Config)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	h, _, project := newTestHandler(t)

	body := `{"projectPath": ` + jsonString(project) + `, "config": {"buildSteps": [{"name": "build", "command": "make"}]}}`
	rec := httptest.NewRecorder()
	h.SaveConfig(rec, httptest.NewRequest(http.MethodPut, "/v1/deployment/config", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var saved models.DeploymentConfig
	decodeBody(t, rec, &saved)
	if saved.Version != models.ConfigVersion {
		t.Errorf("expected version defaulted to %d, got %d", models.ConfigVersion, saved.Version)
	}
	if len(saved.BuildSteps) != 1 || saved.BuildSteps[0].Command != "make" {
		t.Errorf("expected saved build step, got %+v", saved.BuildSteps)
	}

	rec = httptest.NewRecorder()
	h.GetConfig(rec, httptest.NewRequest(http.MethodGet, "/v1/deployment/config?project="+project, nil))
	var resp ConfigResponse
	decodeBody(t, rec, &resp)
	if !resp.Exists {
		t.Error("expected exists true after save")
	}
}

func TestSaveConfigValidation(t *testing.T) {
	h, _, project := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{nope`},
		{"missing project", `{"config": {}}`},
		{"missing config", `{"projectPath": ` + jsonString(project) + `}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.SaveConfig(rec, httptest.NewRequest(http.MethodPut, "/v1/deployment/config", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestProposeReturnsDetectedConfig(t *testing.T) {
	h, _, project := newTestHandler(t)
	if err := os.WriteFile(filepath.Join(project, "go.mod"), []byte("module example.com/app\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	body := `{"projectPath": ` + jsonString(project) + `}`
	rec := httptest.NewRecorder()
	h.Propose(rec, httptest.NewRequest(http.MethodPost, "/v1/deployment/propose", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var cfg models.DeploymentConfig
	decodeBody(t, rec, &cfg)
	if len(cfg.BuildSteps) != 1 || cfg.BuildSteps[0].Command != "go build ./..." {
		t.Errorf("expected go build proposal, got %+v", cfg.BuildSteps)
	}
}

func TestDeployWithoutConfig(t *testing.T) {
	h, _, project := newTestHandler(t)

	body := `{"projectPath": ` + jsonString(project) + `}`
	rec := httptest.NewRecorder()
	h.Deploy(rec, httptest.NewRequest(http.MethodPost, "/v1/deployment/deploy", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unconfigured project, got %d", rec.Code)
	}
}

func TestDeployAcceptedThenConflict(t *testing.T) {
	h, configs, project := newTestHandler(t)

	cfg := pipeline.DefaultConfig()
	cfg.BuildSteps = []models.DeploymentStep{{Name: "slow", Command: "sleep 5"}}
	if err := configs.Save(project, cfg); err != nil {
		t.Fatal(err)
	}

	body := `{"projectPath": ` + jsonString(project) + `, "trigger": "manual"}`
	rec := httptest.NewRecorder()
	h.Deploy(rec, httptest.NewRequest(http.MethodPost, "/v1/deployment/deploy", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var result models.DeploymentResult
	decodeBody(t, rec, &result)
	if result.ID == "" || result.Status != models.DeploymentStatusBuilding {
		t.Errorf("expected a building run snapshot, got %+v", result)
	}

	rec = httptest.NewRecorder()
	h.Deploy(rec, httptest.NewRequest(http.MethodPost, "/v1/deployment/deploy", strings.NewReader(body)))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 while a run is in flight, got %d", rec.Code)
	}
	var apiErr APIError
	decodeBody(t, rec, &apiErr)
	if apiErr.Code != ErrCodeConflict {
		t.Errorf("expected %s, got %s", ErrCodeConflict, apiErr.Code)
	}

	// Clean up the background run.
	rec = httptest.NewRecorder()
	h.Cancel(rec, httptest.NewRequest(http.MethodPost, "/v1/deployment/cancel", nil))
	var cancelResp CancelResponse
	decodeBody(t, rec, &cancelResp)
	if !cancelResp.Cancelled {
		t.Error("expected cancel to abort the run")
	}
}

func TestStatusIdle(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/v1/deployment/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp StatusResponse
	decodeBody(t, rec, &resp)
	if resp.IsRunning {
		t.Error("expected isRunning false before any deploy")
	}
	if resp.Deployment != nil {
		t.Errorf("expected null deployment, got %+v", resp.Deployment)
	}
}

func TestCancelIdle(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Cancel(rec, httptest.NewRequest(http.MethodPost, "/v1/deployment/cancel", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp CancelResponse
	decodeBody(t, rec, &resp)
	if resp.Cancelled {
		t.Error("expected cancelled false with nothing running")
	}
}

func TestHistoryEmptyAndInvalidLimit(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/v1/deployment/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty JSON array, got %q", body)
	}

	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/v1/deployment/history?limit=nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid limit, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/v1/deployment/history?limit=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative limit, got %d", rec.Code)
	}
}

func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
