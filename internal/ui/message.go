package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/tasks"
)

// tagsFetchedMsg carries a project's tag listing, or the fetch failure.
type tagsFetchedMsg struct {
	tags []models.Tag
	err  error
}

// progressUpdateMsg wraps one engine progress update.
type progressUpdateMsg tasks.ProgressUpdate

// comparisonOutcome pairs a finished comparison with its error.
type comparisonOutcome struct {
	result *models.ComparisonResult
	err    error
}

// comparisonCompleteMsg signals that the comparison goroutine finished.
type comparisonCompleteMsg comparisonOutcome

var (
	_ tea.Msg = tagsFetchedMsg{}
	_ tea.Msg = progressUpdateMsg{}
	_ tea.Msg = comparisonCompleteMsg{}
)
