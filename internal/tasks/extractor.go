package tasks

import (
	"fmt"
	"regexp"

	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/shared"
)

// DefaultTaskPattern matches tracker identifiers like GALAXY-1234 when a
// project does not configure its own pattern.
const DefaultTaskPattern = `[A-Z][A-Z0-9]+-\d+`

// TaskExtractor pulls tracker task identifiers out of commit messages with
// a project-specific pattern. It holds no other state, so one extractor can
// serve any number of goroutines.
type TaskExtractor struct {
	pattern *regexp.Regexp
}

// NewTaskExtractor compiles the given pattern, falling back to
// [DefaultTaskPattern] when pattern is empty.
func NewTaskExtractor(pattern string) (*TaskExtractor, error) {
	if pattern == "" {
		pattern = DefaultTaskPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: task pattern %q: %v", shared.ErrInvalidConfig, pattern, err)
	}
	return &TaskExtractor{pattern: re}, nil
}

// Extract returns the unique task identifiers mentioned in message, in
// order of first appearance. A message without matches yields nil.
func (e *TaskExtractor) Extract(message string) []string {
	matches := e.pattern.FindAllString(message, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		ids = append(ids, m)
	}
	return ids
}

// Index builds a [models.TaskIndex] over commits: every task mentioned in a
// commit's message maps to the commits mentioning it, in the order given.
func (e *TaskExtractor) Index(commits []models.Commit) models.TaskIndex {
	index := models.TaskIndex{}
	for _, commit := range commits {
		for _, taskID := range e.Extract(commit.Message) {
			index.Add(taskID, commit)
		}
	}
	return index
}
