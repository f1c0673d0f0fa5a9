package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/taskdiff/internal/formatter"
	"github.com/desertthunder/taskdiff/internal/shared"
	"github.com/urfave/cli/v3"
)

// TagsList prints a project's tags, newest first as the forge returns them.
func (r *Runner) TagsList(ctx context.Context, cmd *cli.Command) error {
	project := cmd.String("project")
	limit := cmd.Int("limit")

	r.logger.Info("listing tags", "project", project, "limit", limit)

	tags, err := r.comparisons.Tags(ctx, project)
	if err != nil {
		return err
	}

	if limit > 0 && limit < len(tags) {
		tags = tags[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(tags, cmd.Bool("pretty"))
	}

	if len(tags) == 0 {
		return r.writePlain("No tags found.\n")
	}

	r.writePlain("Found %d tags:\n\n", len(tags))
	text, err := formatter.TagsToText(tags)
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", text)
}

// TagsValidate checks version labels against the project's tag list.
func (r *Runner) TagsValidate(ctx context.Context, cmd *cli.Command) error {
	project := cmd.String("project")
	versions := cmd.Args().Slice()

	if len(versions) == 0 {
		return fmt.Errorf("%w: at least one version label", shared.ErrMissingArgument)
	}

	r.logger.Info("validating versions", "project", project, "count", len(versions))

	checks, err := r.comparisons.ValidateVersions(ctx, project, versions...)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(checks, cmd.Bool("pretty"))
	}

	for _, check := range checks {
		if check.Valid {
			r.writePlain("✓ %s\n", check.Version)
			continue
		}
		r.writePlain("✗ %s not found", check.Version)
		if len(check.Suggestions) > 0 {
			r.writePlain(" (did you mean: %s)", strings.Join(check.Suggestions, ", "))
		}
		r.writePlain("\n")
	}

	return nil
}

// TagsSuggest lists alternative tags for a version label that does not exist.
func (r *Runner) TagsSuggest(ctx context.Context, cmd *cli.Command) error {
	project := cmd.String("project")
	version := cmd.String("version")

	if version == "" {
		return fmt.Errorf("%w: --version flag is required", shared.ErrMissingArgument)
	}

	r.logger.Info("suggesting tags", "project", project, "version", version)

	checks, err := r.comparisons.ValidateVersions(ctx, project, version)
	if err != nil {
		return err
	}

	check := checks[0]
	if cmd.Bool("json") {
		return r.writeJSON(check, cmd.Bool("pretty"))
	}

	if check.Valid {
		return r.writePlainln("✓ %s exists; no suggestions needed.", version)
	}

	if len(check.Suggestions) == 0 {
		return r.writePlain("✗ %s not found, and no later tags to suggest.\n", version)
	}

	r.writePlain("✗ %s not found. Closest tags:\n", version)
	for i, s := range check.Suggestions {
		r.writePlain("  %d. %s\n", i+1, s)
	}
	return nil
}

// tagsCommand handles tag listing and version validation
func tagsCommand(r *Runner) *cli.Command {
	projectFlag := &cli.StringFlag{
		Name:    "project",
		Aliases: []string{"p"},
		Usage:   "Project key (defaults to the configured default project)",
	}
	jsonFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}

	return &cli.Command{
		Name:  "tags",
		Usage: "Inspect a project's version tags",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the project's tags",
				Flags: append([]cli.Flag{
					projectFlag,
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tags to show (0 shows all)",
					},
				}, jsonFlags...),
				Action: r.TagsList,
			},
			{
				Name:      "validate",
				Usage:     "Check that version labels name existing tags",
				ArgsUsage: "VERSION [VERSION ...]",
				Flags:     append([]cli.Flag{projectFlag}, jsonFlags...),
				Action:    r.TagsValidate,
			},
			{
				Name:  "suggest",
				Usage: "Suggest tags close to a version label",
				Flags: append([]cli.Flag{
					projectFlag,
					&cli.StringFlag{
						Name:     "version",
						Usage:    "Version label to look up",
						Required: true,
					},
				}, jsonFlags...),
				Action: r.TagsSuggest,
			},
		},
	}
}
