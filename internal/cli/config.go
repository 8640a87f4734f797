package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/automakerhq/automaker/internal/models"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage a project's deployment configuration",
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSaveCmd())
	cmd.AddCommand(newConfigProposeCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the saved deployment configuration",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := resolveProject(project)
			if err != nil {
				return err
			}

			var resp struct {
				Exists bool                     `json:"exists"`
				Config *models.DeploymentConfig `json:"config"`
			}
			query := "/v1/deployment/config?project=" + url.QueryEscape(path)
			if err := newClient().do("GET", query, nil, &resp); err != nil {
				return err
			}
			if !resp.Exists {
				fmt.Fprintln(os.Stderr, "No configuration saved yet; showing defaults")
			}
			return printJSON(resp.Config)
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", ".", "Project directory")
	return cmd
}

func newConfigSaveCmd() *cobra.Command {
	var (
		project string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a deployment configuration from a JSON file",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := resolveProject(project)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading config file: %w", err)
			}
			var cfg models.DeploymentConfig
			if err := json.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("parsing config file: %w", err)
			}

			var saved models.DeploymentConfig
			err = newClient().do("PUT", "/v1/deployment/config", map[string]any{
				"projectPath": path,
				"config":      &cfg,
			}, &saved)
			if err != nil {
				return err
			}

			fmt.Println("Configuration saved")
			return nil
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", ".", "Project directory")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the configuration")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newConfigProposeCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a configuration from the project's build files",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := resolveProject(project)
			if err != nil {
				return err
			}

			var cfg models.DeploymentConfig
			err = newClient().do("POST", "/v1/deployment/propose", map[string]any{
				"projectPath": path,
			}, &cfg)
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", ".", "Project directory")
	return cmd
}
