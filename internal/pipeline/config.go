// Package pipeline implements the deployment pipeline engine: per-project
// configuration, step execution, health probing and the orchestrator state
// machine that sequences them.
package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/automakerhq/automaker/internal/models"
)

// ConfigDir is the per-project directory that holds the deployment document.
const ConfigDir = ".automaker"

// ConfigFileName is the name of the persisted deployment configuration.
const ConfigFileName = "deployment.json"

// ConfigStore loads and saves the per-project deployment configuration.
// Reads never fail: a missing or unreadable document yields the defaults.
type ConfigStore struct {
	dir    string // relative directory under the project root
	logger *slog.Logger
}

// NewConfigStore creates a config store using the default project layout.
func NewConfigStore(logger *slog.Logger) *ConfigStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigStore{
		dir:    ConfigDir,
		logger: logger,
	}
}

// DefaultConfig returns the configuration used when none has been saved:
// no steps, auto-deploy off.
func DefaultConfig() *models.DeploymentConfig {
	return &models.DeploymentConfig{
		Version:              models.ConfigVersion,
		AutoDeployOnComplete: false,
		BuildSteps:           []models.DeploymentStep{},
		DeploySteps:          []models.DeploymentStep{},
	}
}

// Path returns the location of the configuration document for a project.
func (s *ConfigStore) Path(projectPath string) string {
	return filepath.Join(projectPath, s.dir, ConfigFileName)
}

// Has reports whether a configuration document exists for the project.
func (s *ConfigStore) Has(projectPath string) bool {
	_, err := os.Stat(s.Path(projectPath))
	return err == nil
}

// Get reads the project configuration. Stored fields are merged over the
// defaults so documents written by older versions degrade gracefully. A
// missing document is a normal state and returns the defaults; any other
// read or parse error is logged and also returns the defaults.
func (s *ConfigStore) Get(projectPath string) *models.DeploymentConfig {
	cfg := DefaultConfig()

	data, err := os.ReadFile(s.Path(projectPath))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read deployment config, using defaults",
				"project", projectPath,
				"error", err,
			)
		}
		return cfg
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		s.logger.Warn("failed to parse deployment config, using defaults",
			"project", projectPath,
			"error", err,
		)
		return DefaultConfig()
	}

	if cfg.BuildSteps == nil {
		cfg.BuildSteps = []models.DeploymentStep{}
	}
	if cfg.DeploySteps == nil {
		cfg.DeploySteps = []models.DeploymentStep{}
	}
	return cfg
}

// Save writes the configuration atomically: the document is written to a
// temporary sibling file and renamed over the target, so a crash mid-write
// never corrupts the previous valid document. The temp file is removed on
// failure.
func (s *ConfigStore) Save(projectPath string, cfg *models.DeploymentConfig) error {
	path := s.Path(projectPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling deployment config: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp-" + uuid.New().String()[:8]
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing deployment config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing deployment config: %w", err)
	}

	s.logger.Debug("deployment config saved", "path", path)
	return nil
}
