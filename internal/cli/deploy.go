package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/automakerhq/automaker/internal/models"
)

func newDeployCmd() *cobra.Command {
	var (
		project string
		auto    bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Start a deployment for a project",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := resolveProject(project)
			if err != nil {
				return err
			}

			trigger := models.TriggerManual
			if auto {
				trigger = models.TriggerAutoModeComplete
			}

			var result models.DeploymentResult
			err = newClient().do("POST", "/v1/deployment/deploy", map[string]any{
				"projectPath": path,
				"trigger":     trigger,
			}, &result)
			if err != nil {
				return err
			}

			fmt.Printf("Deployment %s started (%s)\n", result.ID, result.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", ".", "Project directory")
	cmd.Flags().BoolVar(&auto, "auto", false, "Mark the deployment as auto-triggered")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current deployment status",
		RunE: func(_ *cobra.Command, _ []string) error {
			var status struct {
				IsRunning  bool                     `json:"isRunning"`
				Deployment *models.DeploymentResult `json:"deployment"`
			}
			if err := newClient().do("GET", "/v1/deployment/status", nil, &status); err != nil {
				return err
			}
			return printJSON(status)
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the in-flight deployment",
		RunE: func(_ *cobra.Command, _ []string) error {
			var resp struct {
				Cancelled bool `json:"cancelled"`
			}
			if err := newClient().do("POST", "/v1/deployment/cancel", nil, &resp); err != nil {
				return err
			}
			if resp.Cancelled {
				fmt.Println("Deployment cancelled")
			} else {
				fmt.Println("No deployment running")
			}
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent deployments",
		RunE: func(_ *cobra.Command, _ []string) error {
			var results []*models.DeploymentResult
			path := fmt.Sprintf("/v1/deployment/history?limit=%d", limit)
			if err := newClient().do("GET", path, nil, &results); err != nil {
				return err
			}
			return printJSON(results)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	return cmd
}

// resolveProject turns a project flag into an absolute path the server can
// use.
func resolveProject(project string) (string, error) {
	abs, err := filepath.Abs(project)
	if err != nil {
		return "", fmt.Errorf("resolving project path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("project directory not found: %s", abs)
	}
	return abs, nil
}
