// package formatter renders comparison reports to various output formats (plain text, Markdown, CSV, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/shared"
)

// ReportToText converts a ComparisonResult to plain text for terminal output
func ReportToText(result *models.ComparisonResult) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Comparison: %s -> %s\n", result.OldVersion, result.NewVersion)
	if result.Project != "" {
		fmt.Fprintf(&buf, "Project: %s\n", result.Project)
	}
	fmt.Fprintf(&buf, "Strategy: %s", result.Strategy)
	if result.FallbackReason != "" {
		fmt.Fprintf(&buf, " (%s)", result.FallbackReason)
	}
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "Tasks: %d old, %d new, %d common\n\n",
		result.OldTaskCount, result.NewTaskCount, len(result.CommonTasks))

	empty := len(result.MissingTasks) == 0 && len(result.PartiallyMissing) == 0 &&
		len(result.NewTasks) == 0 && len(result.PartiallyNew) == 0
	if empty {
		buf.WriteString("No differences found; every task is present on both sides.\n\n")
	}

	writeTextSection(&buf, "Missing tasks", result.MissingTasks)
	writeTextPartial(&buf, "Partially missing tasks", result.PartiallyMissing)
	writeTextSection(&buf, "New tasks", result.NewTasks)
	writeTextPartial(&buf, "Partially new tasks", result.PartiallyNew)

	fmt.Fprintf(&buf, "Completed in %.2fs\n", result.TotalTime)
	return buf.Bytes(), nil
}

func writeTextSection(buf *bytes.Buffer, title string, tasks []string) {
	if len(tasks) == 0 {
		return
	}

	fmt.Fprintf(buf, "%s (%d):\n", title, len(tasks))
	for _, id := range tasks {
		fmt.Fprintf(buf, "  %s\n", id)
	}
	buf.WriteString("\n")
}

func writeTextPartial(buf *bytes.Buffer, title string, partial map[string][]models.Commit) {
	if len(partial) == 0 {
		return
	}

	fmt.Fprintf(buf, "%s (%d):\n", title, len(partial))
	for _, taskID := range sortedKeys(partial) {
		commits := partial[taskID]
		fmt.Fprintf(buf, "  %s: %d commit(s) not carried over\n", taskID, len(commits))
		for _, c := range commits {
			fmt.Fprintf(buf, "    %s\n", c.Snippet())
		}
	}
	buf.WriteString("\n")
}

// ReportToMarkdown converts a ComparisonResult to Markdown format with an optional summary paragraph
func ReportToMarkdown(result *models.ComparisonResult, summary string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Comparison %s..%s\n\n", result.OldVersion, result.NewVersion)

	if summary != "" {
		fmt.Fprintf(&buf, "%s\n\n", summary)
	}

	if result.Project != "" {
		fmt.Fprintf(&buf, "**Project**: %s\n", result.Project)
	}
	fmt.Fprintf(&buf, "**Strategy**: %s\n", result.Strategy)
	fmt.Fprintf(&buf, "**Old tasks**: %d\n", result.OldTaskCount)
	fmt.Fprintf(&buf, "**New tasks**: %d\n", result.NewTaskCount)
	fmt.Fprintf(&buf, "**Common tasks**: %d\n\n", len(result.CommonTasks))

	writeMarkdownList(&buf, "Missing Tasks", result.MissingTasks)
	writeMarkdownPartial(&buf, "Partially Missing Tasks", result.PartiallyMissing)
	writeMarkdownList(&buf, "New Tasks", result.NewTasks)
	writeMarkdownPartial(&buf, "Partially New Tasks", result.PartiallyNew)

	return buf.Bytes(), nil
}

func writeMarkdownList(buf *bytes.Buffer, title string, tasks []string) {
	fmt.Fprintf(buf, "## %s (%d)\n\n", title, len(tasks))
	if len(tasks) == 0 {
		buf.WriteString("None.\n\n")
		return
	}

	for i, id := range tasks {
		fmt.Fprintf(buf, "%d. %s\n", i+1, id)
	}
	buf.WriteString("\n")
}

func writeMarkdownPartial(buf *bytes.Buffer, title string, partial map[string][]models.Commit) {
	if len(partial) == 0 {
		return
	}

	fmt.Fprintf(buf, "## %s (%d)\n\n", title, len(partial))
	for _, taskID := range sortedKeys(partial) {
		fmt.Fprintf(buf, "### %s\n\n", taskID)
		for _, c := range partial[taskID] {
			fmt.Fprintf(buf, "- %s\n", c.Snippet())
		}
		buf.WriteString("\n")
	}
}

// ReportToCSV converts a ComparisonResult to CSV format with columns: Task ID, Status, Commits
func ReportToCSV(result *models.ComparisonResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Task ID", "Status", "Commits"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	type row struct {
		taskID, status, commits string
	}
	rows := make([]row, 0, len(result.MissingTasks)+len(result.PartiallyMissing)+
		len(result.NewTasks)+len(result.PartiallyNew))

	for _, id := range result.MissingTasks {
		rows = append(rows, row{id, "missing", ""})
	}
	for _, taskID := range sortedKeys(result.PartiallyMissing) {
		ids := commitIDs(result.PartiallyMissing[taskID])
		rows = append(rows, row{taskID, "partially_missing", strings.Join(ids, ";")})
	}
	for _, id := range result.NewTasks {
		rows = append(rows, row{id, "new", ""})
	}
	for _, taskID := range sortedKeys(result.PartiallyNew) {
		ids := commitIDs(result.PartiallyNew[taskID])
		rows = append(rows, row{taskID, "partially_new", strings.Join(ids, ";")})
	}

	for _, r := range rows {
		if err := writer.Write([]string{r.taskID, r.status, r.commits}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ReportToJSON generates an indented JSON representation of the full result
func ReportToJSON(result *models.ComparisonResult) ([]byte, error) {
	return shared.MarshalJSON(result, true)
}

// StatisticsToText converts VersionStatistics to aligned plain text
func StatisticsToText(stats *models.VersionStatistics) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Statistics: %s -> %s\n\n", stats.From.Ref, stats.To.Ref)
	fmt.Fprintf(&buf, "%-20s %8s %8s %10s\n", "Ref", "Commits", "Tasks", "Density")
	for _, ref := range []models.RefStatistics{stats.From, stats.To} {
		fmt.Fprintf(&buf, "%-20s %8d %8d %10.1f\n",
			ref.Ref, ref.CommitCount, ref.TaskCount, ref.TaskDensity)
	}
	buf.WriteString("\n")

	if stats.DeltaSize > 0 {
		fmt.Fprintf(&buf, "Delta: %d commit(s)\n", stats.DeltaSize)
	}
	fmt.Fprintf(&buf, "Completed in %.2fs\n", stats.TotalTime)
	return buf.Bytes(), nil
}

// SearchToText converts a TaskSearchResult to plain text, one task per line
func SearchToText(result *models.TaskSearchResult) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Task search: %s -> %s\n\n", result.From, result.To)
	for _, p := range result.Results {
		fmt.Fprintf(&buf, "%s: %s\n", p.TaskID, presenceLabel(p, result.From, result.To))
	}
	fmt.Fprintf(&buf, "\nCompleted in %.2fs\n", result.TotalTime)
	return buf.Bytes(), nil
}

func presenceLabel(p models.TaskPresence, from, to string) string {
	switch {
	case p.InFrom && p.InTo:
		return fmt.Sprintf("in both (%d commit(s) in %s, %d in %s)",
			p.FromCommits, from, p.ToCommits, to)
	case p.InFrom:
		return fmt.Sprintf("only in %s (%d commit(s))", from, p.FromCommits)
	case p.InTo:
		return fmt.Sprintf("only in %s (%d commit(s))", to, p.ToCommits)
	default:
		return "not found in either ref"
	}
}

// TagsToText renders a tag listing, one tag per line with its short target
// and the first line of its message.
func TagsToText(tags []models.Tag) ([]byte, error) {
	var buf bytes.Buffer

	for _, tag := range tags {
		line := tag.Name
		if target := shortTarget(tag); target != "" {
			line += "  " + target
		}
		if msg := firstLine(tag.Message); msg != "" {
			line += "  " + msg
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

func shortTarget(tag models.Tag) string {
	target := tag.Target
	if target == "" && tag.Commit != nil {
		target = tag.Commit.ID
	}
	if len(target) > 8 {
		target = target[:8]
	}
	return target
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func sortedKeys(m map[string][]models.Commit) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func commitIDs(commits []models.Commit) []string {
	ids := make([]string, 0, len(commits))
	for _, c := range commits {
		id := c.ShortID
		if id == "" {
			id = c.ID
		}
		ids = append(ids, id)
	}
	return ids
}

// refSlug makes a ref name safe for default filenames.
func refSlug(ref string) string {
	return strings.NewReplacer("/", "-", ":", "-", " ", "-").Replace(ref)
}

func defaultBase(result *models.ComparisonResult) string {
	return fmt.Sprintf("%s_to_%s", refSlug(result.OldVersion), refSlug(result.NewVersion))
}

// WriteMarkdownReport writes the Markdown report to path.
//
// Defaults to {old}_to_{new}_report.md when path is empty.
func WriteMarkdownReport(result *models.ComparisonResult, summary, path string) (string, error) {
	if path == "" {
		path = defaultBase(result) + "_report.md"
	}

	data, err := ReportToMarkdown(result, summary)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}

	return path, nil
}

// CSVReportResult contains the paths of files created by WriteCSVReport
type CSVReportResult struct {
	TasksFile  string
	ReportFile string
}

// WriteCSVReport exports the task table to CSV with the full report JSON alongside it.
//
// Defaults to {old}_to_{new} as the base filename & creates {base}_tasks.csv and {base}_report.json
func WriteCSVReport(result *models.ComparisonResult, basePath string) (*CSVReportResult, error) {
	if basePath == "" {
		basePath = defaultBase(result)
	}

	csvData, err := ReportToCSV(result)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tasksFile := basePath + "_tasks.csv"
	if err := os.WriteFile(tasksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	reportJSON, err := ReportToJSON(result)
	if err != nil {
		return nil, fmt.Errorf("failed to generate report JSON: %w", err)
	}

	reportFile := basePath + "_report.json"
	if err := os.WriteFile(reportFile, reportJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write report file: %w", err)
	}

	return &CSVReportResult{
		TasksFile:  tasksFile,
		ReportFile: reportFile,
	}, nil
}

// WriteTextReport writes the plain text report to path.
//
// Defaults to {old}_to_{new}_report.txt when path is empty.
func WriteTextReport(result *models.ComparisonResult, path string) (string, error) {
	if path == "" {
		path = defaultBase(result) + "_report.txt"
	}

	data, err := ReportToText(result)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}
