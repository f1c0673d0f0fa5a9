package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/taskdiff/internal/shared"
	"github.com/desertthunder/taskdiff/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for version comparison.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if len(r.config.Projects) == 0 {
		return fmt.Errorf("%w: no projects configured", shared.ErrMissingConfig)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/taskdiff-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model := ui.NewModel(ctx, r.comparisons, r.config)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// tuiCommand launches the interactive terminal UI
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Interactive terminal UI for comparing versions",
		Action: r.TUI,
	}
}
