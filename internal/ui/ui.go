package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/taskdiff/internal/formatter"
	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/shared"
	"github.com/desertthunder/taskdiff/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ProjectListView ViewState = iota
	OldTagView
	NewTagView
	CompareView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	comparisons  *tasks.ComparisonService
	projects     []shared.ProjectConfig
	width        int
	height       int
	projectList  list.Model
	tagList      list.Model
	tags         []models.Tag
	project      string
	oldVersion   string
	newVersion   string
	spinner      spinner.Model
	progressChan chan tasks.ProgressUpdate
	resultChan   chan comparisonOutcome
	progress     tasks.ProgressUpdate
	result       *models.ComparisonResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, comparisons *tasks.ComparisonService, config *shared.Config) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.warn

	m := &Model{
		ctx:         ctx,
		view:        ProjectListView,
		comparisons: comparisons,
		projects:    config.Projects,
		spinner:     sp,
		help:        help.New(),
		keys:        newKeyMap(),
	}

	m.projectList = list.New(projectItems(m.projects), list.NewDefaultDelegate(), 0, 0)
	m.projectList.Title = "Projects"
	return m
}

// Init performs no startup work; projects come from the loaded config.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.projectList.SetSize(msg.Width-4, msg.Height-8)
		if m.tagList.Width() == 0 {
			m.tagList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ProjectListView:
			return m.handleProjectListKeys(msg)
		case OldTagView, NewTagView:
			return m.handleTagListKeys(msg)
		case CompareView:
			return m.handleCompareKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case tagsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = ProjectListView
			return m, nil
		}
		m.tags = msg.tags
		m.tagList = list.New(tagItems(msg.tags), list.NewDefaultDelegate(), 0, 0)
		m.tagList.Title = fmt.Sprintf("Select old version • %s", m.project)
		m.tagList.SetSize(m.width-4, m.height-8)
		m.view = OldTagView
		return m, nil

	case spinner.TickMsg:
		if m.view != CompareView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case comparisonCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.view = ResultView
		m.progressChan = nil
		m.resultChan = nil
		return m, nil
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case ProjectListView:
		return m.renderProjectList()
	case OldTagView, NewTagView:
		return m.renderTagList()
	case CompareView:
		return m.renderCompare()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleProjectListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		selected := m.projectList.SelectedItem()
		if selected != nil {
			if item, ok := selected.(projectItem); ok {
				m.project = item.project.Key
				return m, m.fetchTags()
			}
		}
	}

	var cmd tea.Cmd
	m.projectList, cmd = m.projectList.Update(msg)
	return m, cmd
}

func (m *Model) handleTagListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.view == NewTagView {
			m.oldVersion = ""
			m.tagList.Title = fmt.Sprintf("Select old version • %s", m.project)
			m.view = OldTagView
		} else {
			m.view = ProjectListView
		}
		return m, nil
	case "enter":
		selected := m.tagList.SelectedItem()
		item, ok := selected.(tagItem)
		if !ok {
			return m, nil
		}
		if m.view == OldTagView {
			m.oldVersion = item.tag.Name
			m.tagList.Title = fmt.Sprintf("Select new version • %s", m.project)
			m.view = NewTagView
			return m, nil
		}
		m.newVersion = item.tag.Name
		m.view = CompareView
		return m, m.startComparison()
	}

	var cmd tea.Cmd
	m.tagList, cmd = m.tagList.Update(msg)
	return m, cmd
}

func (m *Model) handleCompareKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.view = ProjectListView
		m.project = ""
		m.oldVersion = ""
		m.newVersion = ""
		m.tags = nil
		m.progress = tasks.ProgressUpdate{}
		m.result = nil
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case ProjectListView:
		m.projectList, cmd = m.projectList.Update(msg)
	case OldTagView, NewTagView:
		m.tagList, cmd = m.tagList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchTags() tea.Cmd {
	return func() tea.Msg {
		tags, err := m.comparisons.Tags(m.ctx, m.project)
		return tagsFetchedMsg{tags: tags, err: err}
	}
}

// startComparison runs the comparison on its own goroutine. The outcome
// travels through resultChan so the Update loop never races the worker.
func (m *Model) startComparison() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.resultChan = make(chan comparisonOutcome, 1)

	progress := m.progressChan
	results := m.resultChan
	go func() {
		result, err := m.comparisons.CompareVersions(m.ctx, m.oldVersion, m.newVersion, m.project, progress)
		results <- comparisonOutcome{result: result, err: err}
		close(progress)
	}()

	return tea.Batch(m.spinner.Tick, m.waitForProgress())
}

func (m *Model) waitForProgress() tea.Cmd {
	progress := m.progressChan
	results := m.resultChan
	return func() tea.Msg {
		if progress == nil {
			return comparisonCompleteMsg{}
		}

		update, ok := <-progress
		if !ok {
			return comparisonCompleteMsg(<-results)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderProjectList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.projectList.View(), helpView)
}

func (m *Model) renderTagList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.tagList.View(), helpView)
}

func (m *Model) renderCompare() string {
	title := styles.title.Render(fmt.Sprintf("Comparing %s..%s", m.oldVersion, m.newVersion))

	var phase string
	switch m.progress.Phase {
	case tasks.ResolveTags:
		phase = "Resolving tags..."
	case tasks.ProbePages:
		phase = fmt.Sprintf("Probing commit pages (page %d)", m.progress.Step)
	case tasks.FetchCommits:
		phase = fmt.Sprintf("Fetching commits (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.CompareDelta:
		phase = "Comparing refs..."
	case tasks.BuildIndex:
		phase = "Indexing task mentions..."
	case tasks.Classify:
		phase = "Classifying tasks..."
	default:
		phase = "Working..."
	}

	return fmt.Sprintf("%s\n\n%s %s\n%s", title, m.spinner.View(), phase, m.progress.Message)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Comparison failed: %v\n\nPress r to restart, q to quit", m.err))
	}

	if m.result == nil {
		return styles.err.Render("No result available\n\nPress r to restart, q to quit")
	}

	title := styles.ok.Render("✓ Comparison Complete")
	report, err := formatter.ReportToText(m.result)
	if err != nil {
		return styles.err.Render(fmt.Sprintf("Failed to render report: %v\n\nPress r to restart, q to quit", err))
	}

	var caution string
	if missing := len(m.result.MissingTasks) + len(m.result.PartiallyMissing); missing > 0 {
		caution = fmt.Sprintf("%s\n\n", styles.warn.Render(fmt.Sprintf("%d task(s) need attention", missing)))
	}

	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s%s\n%s", title, caution, string(report), helpView)
}
