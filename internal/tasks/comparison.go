package tasks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/services"
	"github.com/desertthunder/taskdiff/internal/shared"
)

const maxSuggestions = 5

// ForgeFactory builds a forge client bound to one configured project.
type ForgeFactory func(project shared.ProjectConfig) (services.Forge, error)

// StatsRecorder receives the cache statistics of each finished request so
// implementations can aggregate them across requests.
type StatsRecorder interface {
	RecordCacheStats(stats models.CacheStats)
}

// ComparisonService resolves version labels against a project's tags and
// runs task comparisons. Every call builds a fresh request cache and tears
// it down before returning, so concurrent requests never share cached
// state; the final statistics ride along on the result.
type ComparisonService struct {
	config   *shared.Config
	forgeFor ForgeFactory
	recorder StatsRecorder
	logger   *log.Logger
}

// NewComparisonService wires a comparison service. A nil forgeFor defaults
// to GitLab clients built from the forge configuration.
func NewComparisonService(config *shared.Config, forgeFor ForgeFactory, logger *log.Logger) *ComparisonService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if forgeFor == nil {
		forgeFor = func(project shared.ProjectConfig) (services.Forge, error) {
			svc, err := services.NewGitLabService(config.Forge, project, logger)
			if err != nil {
				return nil, err
			}
			return svc, nil
		}
	}
	return &ComparisonService{config: config, forgeFor: forgeFor, logger: logger}
}

// SetRecorder registers a sink for per-request cache statistics.
func (s *ComparisonService) SetRecorder(recorder StatsRecorder) {
	s.recorder = recorder
}

// CompareVersions compares two released versions of a project and reports
// which tasks vanished, arrived, or only partially carried over between
// them. Both labels must name existing tags; an unknown label fails with
// up to five suggested alternatives.
func (s *ComparisonService) CompareVersions(ctx context.Context, oldVersion, newVersion, projectKey string, progress chan<- ProgressUpdate) (*models.ComparisonResult, error) {
	if oldVersion == "" || newVersion == "" {
		return nil, fmt.Errorf("%w: both versions are required", shared.ErrInvalidInput)
	}
	project, forge, extractor, err := s.prepare(projectKey)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	id := shared.GenerateID()
	logger := shared.WithLogger(s.logger, "comparison", id)
	logger.Info("comparing versions", "project", project.Key, "old", oldVersion, "new", newVersion)

	cache := NewRequestCache()
	var result *models.ComparisonResult
	defer func() {
		stats := cache.Clear()
		if result != nil {
			result.CacheStats = stats
		}
		if s.recorder != nil {
			s.recorder.RecordCacheStats(stats)
		}
		logger.Debug("request cache cleared",
			"hits", stats.Hits, "misses", stats.Misses, "entries", stats.EntriesCleared)
	}()

	if err := s.resolveVersions(ctx, forge, cache, project, progress, oldVersion, newVersion); err != nil {
		return nil, err
	}

	engine := s.engine(forge, extractor, cache, logger)
	result, err = engine.Diff(ctx, oldVersion, newVersion, progress)
	if err != nil {
		return nil, err
	}

	result.ID = id
	result.Project = project.Key
	result.Elapsed = time.Since(start)
	result.TotalTime = result.Elapsed.Seconds()
	logger.Info("comparison complete",
		"strategy", result.Strategy,
		"missing", len(result.MissingTasks),
		"new", len(result.NewTasks),
		"partial", len(result.PartiallyMissing),
		"elapsed", result.Elapsed)
	return result, nil
}

// SearchTasks reports where each requested task identifier appears across
// two refs. Refs are not restricted to tags, so branch heads work too.
func (s *ComparisonService) SearchTasks(ctx context.Context, from, to, projectKey string, taskIDs []string, progress chan<- ProgressUpdate) (*models.TaskSearchResult, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: both refs are required", shared.ErrInvalidInput)
	}
	ids := dedupeStrings(taskIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one task id is required", shared.ErrInvalidInput)
	}
	_, forge, extractor, err := s.prepare(projectKey)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cache := NewRequestCache()
	result := &models.TaskSearchResult{From: from, To: to}
	defer func() {
		stats := cache.Clear()
		result.CacheStats = stats
		if s.recorder != nil {
			s.recorder.RecordCacheStats(stats)
		}
	}()

	engine := s.engine(forge, extractor, cache, s.logger)
	fromRI, err := engine.indexRef(ctx, from, progress)
	if err != nil {
		return nil, &shared.DiffError{Ref: from, Phase: "index_from", Err: err}
	}
	toRI, err := engine.indexRef(ctx, to, progress)
	if err != nil {
		return nil, &shared.DiffError{Ref: to, Phase: "index_to", Err: err}
	}

	results := make([]models.TaskPresence, 0, len(ids))
	for _, id := range ids {
		fromSet := fromRI.index.CommitIDSet(id)
		toSet := toRI.index.CommitIDSet(id)
		results = append(results, models.TaskPresence{
			TaskID:      id,
			InFrom:      len(fromSet) > 0,
			InTo:        len(toSet) > 0,
			FromCommits: len(fromSet),
			ToCommits:   len(toSet),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].TaskID < results[j].TaskID })

	result.Results = results
	result.TotalTime = time.Since(start).Seconds()
	return result, nil
}

// Statistics summarizes both refs and the commit delta between them. The
// delta comes from the compare endpoint and is best effort; refs with no
// cheap delta report zero.
func (s *ComparisonService) Statistics(ctx context.Context, from, to, projectKey string, progress chan<- ProgressUpdate) (*models.VersionStatistics, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: both refs are required", shared.ErrInvalidInput)
	}
	_, forge, extractor, err := s.prepare(projectKey)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cache := NewRequestCache()
	stats := &models.VersionStatistics{}
	defer func() {
		cs := cache.Clear()
		stats.CacheStats = cs
		if s.recorder != nil {
			s.recorder.RecordCacheStats(cs)
		}
	}()

	engine := s.engine(forge, extractor, cache, s.logger)
	refs := [2]string{from, to}
	sides := [2]*models.RefStatistics{&stats.From, &stats.To}
	for i, ref := range refs {
		ri, err := engine.indexRef(ctx, ref, progress)
		if err != nil {
			return nil, &shared.DiffError{Ref: ref, Phase: "statistics", Err: err}
		}
		side := sides[i]
		side.Ref = ref
		side.CommitCount = len(ri.commits)
		side.TaskCount = len(ri.index)
		if side.CommitCount > 0 {
			side.TaskDensity = float64(side.TaskCount) / float64(side.CommitCount) * 100
		}
	}

	if delta, err := engine.compareDelta(ctx, from, to); err != nil {
		s.logger.Warn("compare delta unavailable", "from", from, "to", to, "error", err)
	} else if !delta.CompareTimeout {
		stats.DeltaSize = len(delta.Commits)
	}

	stats.TotalTime = time.Since(start).Seconds()
	return stats, nil
}

// VersionCheck reports whether a single version label resolved to a tag.
type VersionCheck struct {
	Version     string   `json:"version"`
	Valid       bool     `json:"valid"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ValidateVersions resolves each label against the project's tags without
// running a comparison.
func (s *ComparisonService) ValidateVersions(ctx context.Context, projectKey string, versions ...string) ([]VersionCheck, error) {
	project, forge, _, err := s.prepare(projectKey)
	if err != nil {
		return nil, err
	}
	cache := NewRequestCache()
	defer cache.Clear()

	tags, err := s.listTags(ctx, forge, cache, project)
	if err != nil {
		return nil, err
	}
	names := tagNameSet(tags)
	checks := make([]VersionCheck, 0, len(versions))
	for _, version := range versions {
		check := VersionCheck{Version: version, Valid: names[version]}
		if !check.Valid {
			check.Suggestions = suggestVersions(tags, version)
		}
		checks = append(checks, check)
	}
	return checks, nil
}

// Tags lists the project's tags as the remote returns them.
func (s *ComparisonService) Tags(ctx context.Context, projectKey string) ([]models.Tag, error) {
	project, forge, _, err := s.prepare(projectKey)
	if err != nil {
		return nil, err
	}
	cache := NewRequestCache()
	defer cache.Clear()
	return s.listTags(ctx, forge, cache, project)
}

// prepare resolves the project, builds its forge client, and compiles its
// task pattern.
func (s *ComparisonService) prepare(projectKey string) (shared.ProjectConfig, services.Forge, *TaskExtractor, error) {
	project, err := s.config.Project(projectKey)
	if err != nil {
		return shared.ProjectConfig{}, nil, nil, err
	}
	forge, err := s.forgeFor(project)
	if err != nil {
		return shared.ProjectConfig{}, nil, nil, err
	}
	extractor, err := NewTaskExtractor(project.TaskPattern)
	if err != nil {
		return shared.ProjectConfig{}, nil, nil, err
	}
	return project, forge, extractor, nil
}

func (s *ComparisonService) engine(forge services.Forge, extractor *TaskExtractor, cache *RequestCache, logger *log.Logger) *TaskDiffEngine {
	return NewTaskDiffEngine(forge, extractor, cache, EngineOpts{
		CompareThreshold: s.config.Diff.CompareThreshold,
		Fetch: FetcherOpts{
			Workers:       s.config.Fetch.Workers,
			PageSize:      s.config.Fetch.PageSize,
			MaxProbePage:  s.config.Fetch.MaxProbePage,
			RatePerSecond: s.config.Fetch.RatePerSecond,
			Retry:         s.config.Retry.Policy(),
		},
	}, logger)
}

// resolveVersions checks that every label names an existing tag. The first
// unknown label fails with suggestions for nearby tags.
func (s *ComparisonService) resolveVersions(ctx context.Context, forge services.Forge, cache *RequestCache, project shared.ProjectConfig, progress chan<- ProgressUpdate, versions ...string) error {
	sendProgress(progress, resolveTagsUpdate(project.Key))
	tags, err := s.listTags(ctx, forge, cache, project)
	if err != nil {
		return err
	}
	names := tagNameSet(tags)
	for _, version := range versions {
		if !names[version] {
			return &shared.VersionNotFoundError{
				Version:     version,
				Project:     project.Key,
				Suggestions: suggestVersions(tags, version),
			}
		}
	}
	return nil
}

// listTags returns the project's tags through the request cache.
func (s *ComparisonService) listTags(ctx context.Context, forge services.Forge, cache *RequestCache, project shared.ProjectConfig) ([]models.Tag, error) {
	key := TagsKey(project.Key)
	if cached, ok := cache.Get(key); ok {
		if tags, ok := cached.([]models.Tag); ok {
			return tags, nil
		}
	}
	tags, err := forge.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	cache.Set(key, tags)
	return tags, nil
}

// suggestVersions returns up to five tag names lexicographically after the
// missing label, ascending.
func suggestVersions(tags []models.Tag, version string) []string {
	var names []string
	for _, tag := range tags {
		if tag.Name > version {
			names = append(names, tag.Name)
		}
	}
	sort.Strings(names)
	if len(names) > maxSuggestions {
		names = names[:maxSuggestions]
	}
	return names
}

func tagNameSet(tags []models.Tag) map[string]bool {
	names := make(map[string]bool, len(tags))
	for _, tag := range tags {
		names[tag.Name] = true
	}
	return names
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
