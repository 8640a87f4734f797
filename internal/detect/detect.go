// Package detect proposes a deployment configuration from a project's build
// files. It is a convenience layer: the proposals are starting points for
// the user to edit, never something the pipeline core depends on.
package detect

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/automakerhq/automaker/internal/models"
	"github.com/automakerhq/automaker/internal/pipeline"
)

// Detector inspects a project directory and proposes a DeploymentConfig.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger}
}

// Propose returns a valid DeploymentConfig for the project. Detection is
// priority ordered: docker-compose > Dockerfile > package.json > go.mod.
// When nothing is recognized the result is the default empty configuration.
func (d *Detector) Propose(projectPath string) *models.DeploymentConfig {
	cfg := pipeline.DefaultConfig()

	switch {
	case d.hasFile(projectPath, "docker-compose.yml"), d.hasFile(projectPath, "docker-compose.yaml"):
		d.proposeCompose(projectPath, cfg)
	case d.hasFile(projectPath, "Dockerfile"):
		d.proposeDockerfile(projectPath, cfg)
	case d.hasFile(projectPath, "package.json"):
		d.proposeNode(projectPath, cfg)
	case d.hasFile(projectPath, "go.mod"):
		d.proposeGo(cfg)
	default:
		d.logger.Debug("no known build files found", "project", projectPath)
	}
	return cfg
}

func (d *Detector) hasFile(projectPath, name string) bool {
	_, err := os.Stat(filepath.Join(projectPath, name))
	return err == nil
}

// composeFile is the subset of a docker-compose document we care about.
type composeFile struct {
	Services map[string]struct {
		Ports []string `yaml:"ports"`
	} `yaml:"services"`
}

func (d *Detector) proposeCompose(projectPath string, cfg *models.DeploymentConfig) {
	cfg.BuildSteps = []models.DeploymentStep{
		{Name: "Build images", Command: "docker compose build"},
	}
	cfg.DeploySteps = []models.DeploymentStep{
		{Name: "Start services", Command: "docker compose up -d"},
	}

	name := "docker-compose.yml"
	if !d.hasFile(projectPath, name) {
		name = "docker-compose.yaml"
	}
	data, err := os.ReadFile(filepath.Join(projectPath, name))
	if err != nil {
		return
	}

	var compose composeFile
	if err := yaml.Unmarshal(data, &compose); err != nil {
		d.logger.Debug("failed to parse compose file", "project", projectPath, "error", err)
		return
	}

	// Point the health check at the first published port we can find.
	for _, svc := range compose.Services {
		for _, port := range svc.Ports {
			if host := hostPort(port); host != "" {
				cfg.HealthCheckURL = fmt.Sprintf("http://localhost:%s", host)
				return
			}
		}
	}
}

// hostPort extracts the host port from a compose port mapping such as
// "8080:80", "127.0.0.1:8080:80" or "8080".
func hostPort(mapping string) string {
	parts := splitPorts(mapping)
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0]
	case 3:
		return parts[1]
	}
	return ""
}

func splitPorts(mapping string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(mapping); i++ {
		if mapping[i] == ':' {
			parts = append(parts, mapping[start:i])
			start = i + 1
		}
	}
	return append(parts, mapping[start:])
}

func (d *Detector) proposeDockerfile(projectPath string, cfg *models.DeploymentConfig) {
	image := filepath.Base(projectPath)
	cfg.BuildSteps = []models.DeploymentStep{
		{Name: "Build image", Command: fmt.Sprintf("docker build -t %s .", image)},
	}
	cfg.DeploySteps = []models.DeploymentStep{
		{Name: "Run container", Command: fmt.Sprintf("docker run -d --rm --name %s %s", image, image)},
	}
}

// packageJSON is the subset of package.json we care about.
type packageJSON struct {
	Scripts map[string]string `json:"scripts"`
}

func (d *Detector) proposeNode(projectPath string, cfg *models.DeploymentConfig) {
	data, err := os.ReadFile(filepath.Join(projectPath, "package.json"))
	if err != nil {
		return
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		d.logger.Debug("failed to parse package.json", "project", projectPath, "error", err)
		return
	}

	cfg.BuildSteps = []models.DeploymentStep{
		{Name: "Install dependencies", Command: "npm ci"},
	}
	if _, ok := pkg.Scripts["build"]; ok {
		cfg.BuildSteps = append(cfg.BuildSteps, models.DeploymentStep{
			Name: "Build", Command: "npm run build",
		})
	}
	if _, ok := pkg.Scripts["start"]; ok {
		cfg.DeploySteps = []models.DeploymentStep{
			{Name: "Start", Command: "npm run start"},
		}
	}
	for _, script := range []string{"test:e2e", "e2e"} {
		if _, ok := pkg.Scripts[script]; ok {
			cfg.E2ETests = &models.E2ETestConfig{Command: "npm run " + script}
			break
		}
	}
}

func (d *Detector) proposeGo(cfg *models.DeploymentConfig) {
	cfg.BuildSteps = []models.DeploymentStep{
		{Name: "Build", Command: "go build ./..."},
	}
}
