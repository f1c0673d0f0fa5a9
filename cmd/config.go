package main

import (
	"context"
	"os"

	"github.com/desertthunder/taskdiff/internal/shared"
	"github.com/urfave/cli/v3"
)

// ConfigInit writes the example configuration to disk.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")

	r.logger.Info("creating config file", "path", path)

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.writePlainln("✓ Config written to %s", path)
	r.writePlain("Fill in the forge token, or export %s instead.\n", shared.EnvToken)
	return nil
}

// ConfigShow prints the effective configuration with the token redacted.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	config := r.config
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := shared.LoadConfig(configPath)
		if err != nil {
			return err
		}
		config = loaded
	}

	token := "unset"
	if config.Forge.Token != "" {
		token = "[set]"
	}

	r.writePlainHeader("Configuration")
	r.writePlain("Forge\n")
	r.writePlain("  base_url: %s\n", config.Forge.BaseURL)
	r.writePlain("  token: %s\n", token)
	r.writePlain("  timeout: %s\n\n", config.Forge.Timeout())

	r.writePlain("Fetch\n")
	r.writePlain("  workers: %d\n", config.Fetch.Workers)
	r.writePlain("  page_size: %d\n", config.Fetch.PageSize)
	r.writePlain("  max_probe_page: %d\n", config.Fetch.MaxProbePage)
	r.writePlain("  rate_per_second: %.1f\n\n", config.Fetch.RatePerSecond)

	r.writePlain("Retry\n")
	r.writePlain("  max_attempts: %d\n", config.Retry.MaxAttempts)
	r.writePlain("  base_delay_ms: %d\n", config.Retry.BaseDelayMS)
	r.writePlain("  jitter: %t\n\n", config.Retry.Jitter)

	r.writePlain("Diff\n")
	r.writePlain("  compare_threshold: %d\n\n", config.Diff.CompareThreshold)

	r.writePlain("Server\n")
	r.writePlain("  host: %s\n", config.Server.Host)
	r.writePlain("  port: %d\n\n", config.Server.Port)

	r.writePlain("Summary\n")
	r.writePlain("  enabled: %t\n", config.Summary.Enabled)
	r.writePlain("  endpoint: %s\n\n", config.Summary.Endpoint)

	r.writePlain("Projects: %d configured (run 'taskdiff projects' for details)\n", len(config.Projects))
	return nil
}

// Projects lists the configured project registry.
func (r *Runner) Projects(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("json") {
		return r.writeJSON(r.config.Projects, cmd.Bool("pretty"))
	}

	if len(r.config.Projects) == 0 {
		return r.writePlain("No projects configured.\n")
	}

	r.writePlain("Configured projects:\n\n")
	for i, p := range r.config.Projects {
		marker := ""
		if p.Default {
			marker = " (default)"
		}
		r.writePlain("%d. %s%s\n", i+1, p.Name, marker)
		r.writePlain("   Key: %s\n", p.Key)
		r.writePlain("   Forge ID: %d\n", p.ForgeID)
		r.writePlain("   Pattern: %s\n", p.TaskPattern)
		r.writePlain("\n")
	}

	return nil
}

// configCommand handles configuration management
func configCommand(r *Runner) *cli.Command {
	pathFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}

	return &cli.Command{
		Name:  "config",
		Usage: "Manage taskdiff configuration",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write an example config.toml",
				Flags:  []cli.Flag{pathFlag},
				Action: r.ConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Flags:  []cli.Flag{pathFlag},
				Action: r.ConfigShow,
			},
		},
	}
}

// projectsCommand lists the project registry
func projectsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "List configured projects",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
				Value: true,
			},
		},
		Action: r.Projects,
	}
}
