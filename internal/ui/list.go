package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/shared"
)

var (
	_ list.Item = projectItem{}
	_ list.Item = tagItem{}
)

// projectItem wraps [shared.ProjectConfig] to implement [list.Item].
type projectItem struct {
	project shared.ProjectConfig
}

func (i projectItem) FilterValue() string { return i.project.Name }
func (i projectItem) Title() string       { return i.project.Name }
func (i projectItem) Description() string {
	desc := i.project.Key
	if i.project.TaskPattern != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.project.TaskPattern)
	}
	if i.project.Default {
		desc = fmt.Sprintf("%s • default", desc)
	}
	return desc
}

// tagItem wraps [models.Tag] to implement [list.Item].
type tagItem struct {
	tag models.Tag
}

func (i tagItem) FilterValue() string { return i.tag.Name }
func (i tagItem) Title() string       { return i.tag.Name }
func (i tagItem) Description() string {
	target := i.tag.Target
	if target == "" && i.tag.Commit != nil {
		target = i.tag.Commit.ID
	}
	if len(target) > 8 {
		target = target[:8]
	}
	message := i.tag.Message
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		message = message[:idx]
	}
	if message == "" {
		return target
	}
	return fmt.Sprintf("%s • %s", target, message)
}

func projectItems(projects []shared.ProjectConfig) []list.Item {
	items := make([]list.Item, 0, len(projects))
	for _, p := range projects {
		items = append(items, projectItem{project: p})
	}
	return items
}

func tagItems(tags []models.Tag) []list.Item {
	items := make([]list.Item, 0, len(tags))
	for _, t := range tags {
		items = append(items, tagItem{tag: t})
	}
	return items
}
