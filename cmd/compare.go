package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/desertthunder/taskdiff/internal/formatter"
	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/shared"
	"github.com/desertthunder/taskdiff/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Detect reports tasks present in the old version but missing from the new one.
func (r *Runner) Detect(ctx context.Context, cmd *cli.Command) error {
	oldVersion := cmd.String("old")
	newVersion := cmd.String("new")
	project := cmd.String("project")
	useJSON := cmd.Bool("json")

	r.logger.Info("detecting missing tasks", "old", oldVersion, "new", newVersion, "project", project)

	result, err := r.compareWithProgress(ctx, oldVersion, newVersion, project, useJSON)
	if err != nil {
		return err
	}

	if useJSON {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlain("\n")
	r.writePlainHeader("Missing Task Detection")
	r.writePlain("Project: %s\n", result.Project)
	r.writePlain("Versions: %s → %s\n", result.OldVersion, result.NewVersion)
	r.writePlain("Strategy: %s\n", result.Strategy)
	r.writePlain("Tasks: %d old, %d new\n\n", result.OldTaskCount, result.NewTaskCount)

	if len(result.MissingTasks) == 0 && len(result.PartiallyMissing) == 0 {
		r.writePlain("✓ Every task in %s made it into %s.\n", result.OldVersion, result.NewVersion)
		return nil
	}

	if len(result.MissingTasks) > 0 {
		r.writePlain("Completely missing (%d):\n", len(result.MissingTasks))
		for i, id := range result.MissingTasks {
			r.writePlain("  %d. %s\n", i+1, id)
		}
		r.writePlain("\n")
	}

	r.writePartial("Partially missing", result.PartiallyMissing)
	r.writePlain("Completed in %.2fs\n", result.TotalTime)
	return nil
}

// Analyze reports tasks that exist only in the new version.
func (r *Runner) Analyze(ctx context.Context, cmd *cli.Command) error {
	oldVersion := cmd.String("old")
	newVersion := cmd.String("new")
	project := cmd.String("project")
	useJSON := cmd.Bool("json")

	r.logger.Info("analyzing new features", "old", oldVersion, "new", newVersion, "project", project)

	result, err := r.compareWithProgress(ctx, oldVersion, newVersion, project, useJSON)
	if err != nil {
		return err
	}

	if useJSON {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlain("\n")
	r.writePlainHeader("New Feature Analysis")
	r.writePlain("Project: %s\n", result.Project)
	r.writePlain("Versions: %s → %s\n", result.OldVersion, result.NewVersion)
	r.writePlain("Strategy: %s\n", result.Strategy)
	r.writePlain("Tasks: %d old, %d new\n\n", result.OldTaskCount, result.NewTaskCount)

	if len(result.NewTasks) == 0 && len(result.PartiallyNew) == 0 {
		r.writePlain("✓ %s introduces no tasks that %s lacks.\n", result.NewVersion, result.OldVersion)
		return nil
	}

	if len(result.NewTasks) > 0 {
		r.writePlain("New tasks (%d):\n", len(result.NewTasks))
		for i, id := range result.NewTasks {
			r.writePlain("  %d. %s\n", i+1, id)
		}
		r.writePlain("\n")
	}

	r.writePartial("Partially new", result.PartiallyNew)
	r.writePlain("Completed in %.2fs\n", result.TotalTime)
	return nil
}

// Report runs a combined bidirectional comparison with a risk summary, and
// optionally writes the report to disk in one or more formats.
func (r *Runner) Report(ctx context.Context, cmd *cli.Command) error {
	oldVersion := cmd.String("old")
	newVersion := cmd.String("new")
	project := cmd.String("project")
	useJSON := cmd.Bool("json")

	r.logger.Info("building comparison report", "old", oldVersion, "new", newVersion, "project", project)

	result, err := r.compareWithProgress(ctx, oldVersion, newVersion, project, useJSON)
	if err != nil {
		return err
	}

	summary := tasks.SummarizeWithFallback(ctx, r.summarizer, result, r.logger)
	risk := tasks.RiskFor(result)

	if cmd.Bool("markdown") {
		path, err := formatter.WriteMarkdownReport(result, summary, cmd.String("output"))
		if err != nil {
			return err
		}
		r.writePlain("✓ Markdown report written to %s\n", path)
	}

	if cmd.Bool("csv") {
		files, err := formatter.WriteCSVReport(result, cmd.String("output"))
		if err != nil {
			return err
		}
		r.writePlain("✓ CSV report written to %s and %s\n", files.TasksFile, files.ReportFile)
	}

	if cmd.Bool("text") {
		path, err := formatter.WriteTextReport(result, cmd.String("output"))
		if err != nil {
			return err
		}
		r.writePlain("✓ Text report written to %s\n", path)
	}

	if useJSON {
		payload := struct {
			*models.ComparisonResult
			Summary   string `json:"summary,omitempty"`
			RiskLevel string `json:"risk_level"`
		}{result, summary, string(risk)}
		return r.writeJSON(payload, cmd.Bool("pretty"))
	}

	report, err := formatter.ReportToText(result)
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Comparison Report")
	r.writePlain("%s\n", report)
	r.writePlain("Risk: %s\n", risk)
	r.writePlain("Summary: %s\n", summary)
	return nil
}

// Search checks explicit task IDs against two refs.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	from := cmd.String("from")
	to := cmd.String("to")
	project := cmd.String("project")
	taskIDs := cmd.Args().Slice()

	if len(taskIDs) == 0 {
		return fmt.Errorf("%w: at least one task ID", shared.ErrMissingArgument)
	}

	r.logger.Info("searching tasks", "from", from, "to", to, "tasks", len(taskIDs))

	result, err := r.comparisons.SearchTasks(ctx, from, to, project, taskIDs, nil)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	text, err := formatter.SearchToText(result)
	if err != nil {
		return err
	}
	return r.writePlain("%s", text)
}

// Stats prints commit and task statistics for two refs.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	from := cmd.String("from")
	to := cmd.String("to")
	project := cmd.String("project")

	r.logger.Info("gathering statistics", "from", from, "to", to, "project", project)

	stats, err := r.comparisons.Statistics(ctx, from, to, project, nil)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, cmd.Bool("pretty"))
	}

	text, err := formatter.StatisticsToText(stats)
	if err != nil {
		return err
	}
	return r.writePlain("%s", text)
}

// compareWithProgress runs a comparison, streaming progress updates to the
// output unless quiet is set.
func (r *Runner) compareWithProgress(ctx context.Context, oldVersion, newVersion, project string, quiet bool) (*models.ComparisonResult, error) {
	if quiet {
		return r.comparisons.CompareVersions(ctx, oldVersion, newVersion, project, nil)
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.ResolveTags:
				r.writePlain("🏷  %s\n", update.Message)
			case tasks.ProbePages:
				r.writePlain("   %s\n", update.Message)
			case tasks.FetchCommits:
				if update.Step <= 1 {
					r.writePlain("📥 %s\n", update.Message)
				} else {
					r.writePlain("   %s\n", update.Message)
				}
			case tasks.CompareDelta:
				r.writePlain("🔍 %s\n", update.Message)
			case tasks.BuildIndex, tasks.Classify:
				r.writePlain("📊 %s\n", update.Message)
			}
		}
	}()

	result, err := r.comparisons.CompareVersions(ctx, oldVersion, newVersion, project, progressCh)
	close(progressCh)
	<-done

	return result, err
}

func (r *Runner) writePartial(title string, partial map[string][]models.Commit) {
	if len(partial) == 0 {
		return
	}

	ids := make([]string, 0, len(partial))
	for id := range partial {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	r.writePlain("%s (%d):\n", title, len(partial))
	for _, id := range ids {
		r.writePlain("  %s: %d commit(s)\n", id, len(partial[id]))
		for _, c := range partial[id] {
			r.writePlain("     %s\n", c.Snippet())
		}
	}
	r.writePlain("\n")
}

func compareFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "old",
			Usage:    "Older version tag",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "new",
			Usage:    "Newer version tag",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "project",
			Aliases: []string{"p"},
			Usage:   "Project key (defaults to the configured default project)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output the full result as JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "from",
			Usage:    "First version tag",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "to",
			Usage:    "Second version tag",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "project",
			Aliases: []string{"p"},
			Usage:   "Project key (defaults to the configured default project)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output the full result as JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

// detectCommand finds tasks that fell out between two versions
func detectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "detect",
		Usage:  "Detect tasks present in the old version but missing from the new one",
		Flags:  compareFlags(),
		Action: r.Detect,
	}
}

// analyzeCommand finds tasks introduced by the newer version
func analyzeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "analyze",
		Usage:  "Analyze features introduced by the new version",
		Flags:  compareFlags(),
		Action: r.Analyze,
	}
}

// reportCommand produces the combined bidirectional report
func reportCommand(r *Runner) *cli.Command {
	flags := append(compareFlags(),
		&cli.BoolFlag{
			Name:  "markdown",
			Usage: "Write a Markdown report file",
		},
		&cli.BoolFlag{
			Name:  "csv",
			Usage: "Write CSV task and JSON report files",
		},
		&cli.BoolFlag{
			Name:  "text",
			Usage: "Write a plain text report file",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output path for report files (defaults to {old}_to_{new}_report.*)",
		},
	)

	return &cli.Command{
		Name:   "report",
		Usage:  "Produce a combined report with a risk summary",
		Flags:  flags,
		Action: r.Report,
	}
}

// searchCommand locates explicit task IDs in two refs
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search for task IDs across two versions",
		ArgsUsage: "TASK-1 [TASK-2 ...]",
		Flags:     rangeFlags(),
		Action:    r.Search,
	}
}

// statsCommand summarizes commit and task counts per ref
func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show commit and task statistics for two versions",
		Flags:  rangeFlags(),
		Action: r.Stats,
	}
}
