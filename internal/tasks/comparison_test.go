package tasks

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/services"
	"github.com/desertthunder/taskdiff/internal/shared"
)

type statsSink struct {
	mu  sync.Mutex
	all []models.CacheStats
}

func (s *statsSink) RecordCacheStats(stats models.CacheStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, stats)
}

func (s *statsSink) recorded() []models.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CacheStats{}, s.all...)
}

func newTestComparisonService(forge *fakeForge) *ComparisonService {
	cfg := &shared.Config{
		Fetch: shared.FetchConfig{Workers: 4, PageSize: 10, MaxProbePage: 100},
		Retry: shared.RetryConfig{MaxAttempts: 3, BaseDelayMS: 1},
		Diff:  shared.DiffConfig{CompareThreshold: 1000},
		Projects: []shared.ProjectConfig{
			{Key: "galaxy", Name: "Galaxy", ForgeID: 1, TaskPattern: `GALAXY-\d+`, Default: true},
		},
	}
	factory := func(_ shared.ProjectConfig) (services.Forge, error) {
		return forge, nil
	}
	return NewComparisonService(cfg, factory, testLogger())
}

// seedProject gives both tags a shared base, one task that vanished, and
// one that arrived.
func seedProject(forge *fakeForge) {
	forge.tags = []models.Tag{{Name: "v1.0.0"}, {Name: "v1.1.0"}}
	base := []models.Commit{
		taskCommit("b1", "GALAXY-1"),
		taskCommit("b2", "GALAXY-2"),
	}
	forge.commits["v1.0.0"] = append(append([]models.Commit{}, base...), taskCommit("o1", "GALAXY-7"))
	forge.commits["v1.1.0"] = append(append([]models.Commit{}, base...), taskCommit("n1", "GALAXY-9"))
}

func TestCompareVersions(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		forge := newFakeForge()
		seedProject(forge)
		svc := newTestComparisonService(forge)

		result, err := svc.CompareVersions(context.Background(), "v1.0.0", "v1.1.0", "galaxy", nil)
		if err != nil {
			t.Fatalf("CompareVersions() error = %v", err)
		}
		if result.ID == "" {
			t.Error("expected a comparison ID")
		}
		if result.Project != "galaxy" {
			t.Errorf("Project = %q, want galaxy", result.Project)
		}
		if !reflect.DeepEqual(result.MissingTasks, []string{"GALAXY-7"}) {
			t.Errorf("MissingTasks = %v, want [GALAXY-7]", result.MissingTasks)
		}
		if !reflect.DeepEqual(result.NewTasks, []string{"GALAXY-9"}) {
			t.Errorf("NewTasks = %v, want [GALAXY-9]", result.NewTasks)
		}
		if !reflect.DeepEqual(result.CommonTasks, []string{"GALAXY-1", "GALAXY-2"}) {
			t.Errorf("CommonTasks = %v, want [GALAXY-1 GALAXY-2]", result.CommonTasks)
		}
		if result.Elapsed <= 0 {
			t.Errorf("Elapsed = %v, want > 0", result.Elapsed)
		}
		if result.CacheStats.EntriesCleared == 0 {
			t.Error("expected the request cache to report cleared entries")
		}
	})

	t.Run("DefaultProject", func(t *testing.T) {
		forge := newFakeForge()
		seedProject(forge)
		svc := newTestComparisonService(forge)

		result, err := svc.CompareVersions(context.Background(), "v1.0.0", "v1.1.0", "", nil)
		if err != nil {
			t.Fatalf("CompareVersions() error = %v", err)
		}
		if result.Project != "galaxy" {
			t.Errorf("Project = %q, want the default project galaxy", result.Project)
		}
	})

	t.Run("UnknownVersionSuggestsTags", func(t *testing.T) {
		forge := newFakeForge()
		seedProject(forge)
		svc := newTestComparisonService(forge)

		_, err := svc.CompareVersions(context.Background(), "v0.9.0", "v1.1.0", "galaxy", nil)
		if !errors.Is(err, shared.ErrVersionNotFound) {
			t.Fatalf("errors.Is(err, ErrVersionNotFound) = false, err = %v", err)
		}
		var notFound *shared.VersionNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected VersionNotFoundError, got %T", err)
		}
		if notFound.Version != "v0.9.0" {
			t.Errorf("Version = %q, want v0.9.0", notFound.Version)
		}
		if !reflect.DeepEqual(notFound.Suggestions, []string{"v1.0.0", "v1.1.0"}) {
			t.Errorf("Suggestions = %v, want [v1.0.0 v1.1.0]", notFound.Suggestions)
		}
		if forge.refCalls("v0.9.0") != 0 || forge.refCalls("v1.1.0") != 0 {
			t.Error("expected no commit fetches for an unresolvable version")
		}
	})

	t.Run("UnknownVersionWithoutSuggestions", func(t *testing.T) {
		forge := newFakeForge()
		seedProject(forge)
		svc := newTestComparisonService(forge)

		_, err := svc.CompareVersions(context.Background(), "v1.0.0", "v9.0.0", "galaxy", nil)
		var notFound *shared.VersionNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected VersionNotFoundError, got %v", err)
		}
		if len(notFound.Suggestions) != 0 {
			t.Errorf("Suggestions = %v, want none", notFound.Suggestions)
		}
	})

	t.Run("RequiresBothVersions", func(t *testing.T) {
		svc := newTestComparisonService(newFakeForge())
		if _, err := svc.CompareVersions(context.Background(), "", "v1.1.0", "galaxy", nil); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("UnknownProject", func(t *testing.T) {
		svc := newTestComparisonService(newFakeForge())
		if _, err := svc.CompareVersions(context.Background(), "v1.0.0", "v1.1.0", "nope", nil); !errors.Is(err, shared.ErrUnknownProject) {
			t.Errorf("err = %v, want ErrUnknownProject", err)
		}
	})

	t.Run("InvalidTaskPattern", func(t *testing.T) {
		forge := newFakeForge()
		seedProject(forge)
		svc := newTestComparisonService(forge)
		svc.config.Projects[0].TaskPattern = "(("

		if _, err := svc.CompareVersions(context.Background(), "v1.0.0", "v1.1.0", "galaxy", nil); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("err = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("SequentialComparisonsDoNotShareCaches", func(t *testing.T) {
		forge := newFakeForge()
		seedProject(forge)
		svc := newTestComparisonService(forge)
		sink := &statsSink{}
		svc.SetRecorder(sink)

		first, err := svc.CompareVersions(context.Background(), "v1.0.0", "v1.1.0", "galaxy", nil)
		if err != nil {
			t.Fatalf("first CompareVersions() error = %v", err)
		}
		second, err := svc.CompareVersions(context.Background(), "v1.0.0", "v1.1.0", "galaxy", nil)
		if err != nil {
			t.Fatalf("second CompareVersions() error = %v", err)
		}

		// Identical workloads against fresh caches must produce identical
		// statistics; a leaked cache would turn the second run into hits.
		if first.CacheStats != second.CacheStats {
			t.Errorf("cache stats leaked across requests: first %+v, second %+v", first.CacheStats, second.CacheStats)
		}
		recorded := sink.recorded()
		if len(recorded) != 2 {
			t.Fatalf("recorder saw %d entries, want 2", len(recorded))
		}
		if recorded[0] != first.CacheStats || recorded[1] != second.CacheStats {
			t.Error("recorder entries do not match the per-result statistics")
		}
	})
}

func TestSearchTasks(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		forge := newFakeForge()
		seedProject(forge)
		svc := newTestComparisonService(forge)

		result, err := svc.SearchTasks(context.Background(), "v1.0.0", "v1.1.0", "galaxy",
			[]string{"GALAXY-9", "GALAXY-2", "GALAXY-2", "GALAXY-404"}, nil)
		if err != nil {
			t.Fatalf("SearchTasks() error = %v", err)
		}
		want := []models.TaskPresence{
			{TaskID: "GALAXY-2", InFrom: true, InTo: true, FromCommits: 1, ToCommits: 1},
			{TaskID: "GALAXY-404"},
			{TaskID: "GALAXY-9", InTo: true, ToCommits: 1},
		}
		if !reflect.DeepEqual(result.Results, want) {
			t.Errorf("Results = %+v, want %+v", result.Results, want)
		}
		if result.From != "v1.0.0" || result.To != "v1.1.0" {
			t.Errorf("refs = %s..%s, want v1.0.0..v1.1.0", result.From, result.To)
		}
		if result.CacheStats.EntriesCleared == 0 {
			t.Error("expected the request cache to report cleared entries")
		}
	})

	t.Run("RequiresTaskIDs", func(t *testing.T) {
		svc := newTestComparisonService(newFakeForge())
		if _, err := svc.SearchTasks(context.Background(), "v1.0.0", "v1.1.0", "galaxy", nil, nil); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("RequiresBothRefs", func(t *testing.T) {
		svc := newTestComparisonService(newFakeForge())
		if _, err := svc.SearchTasks(context.Background(), "v1.0.0", "", "galaxy", []string{"GALAXY-1"}, nil); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("WrapsFetchFailures", func(t *testing.T) {
		forge := newFakeForge()
		seedProject(forge)
		forge.failures["v1.0.0:1"] = -1
		svc := newTestComparisonService(forge)

		_, err := svc.SearchTasks(context.Background(), "v1.0.0", "v1.1.0", "galaxy", []string{"GALAXY-1"}, nil)
		var diffErr *shared.DiffError
		if !errors.As(err, &diffErr) {
			t.Fatalf("expected DiffError, got %v", err)
		}
		if diffErr.Ref != "v1.0.0" || diffErr.Phase != "index_from" {
			t.Errorf("DiffError = ref %q phase %q, want v1.0.0/index_from", diffErr.Ref, diffErr.Phase)
		}
	})
}

func TestStatistics(t *testing.T) {
	forge := newFakeForge()
	seedProject(forge)
	svc := newTestComparisonService(forge)

	stats, err := svc.Statistics(context.Background(), "v1.0.0", "v1.1.0", "galaxy", nil)
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.From.CommitCount != 3 || stats.From.TaskCount != 3 {
		t.Errorf("From = %+v, want 3 commits / 3 tasks", stats.From)
	}
	if stats.To.CommitCount != 3 || stats.To.TaskCount != 3 {
		t.Errorf("To = %+v, want 3 commits / 3 tasks", stats.To)
	}
	if stats.From.TaskDensity != 100 {
		t.Errorf("From.TaskDensity = %v, want 100", stats.From.TaskDensity)
	}
	if stats.DeltaSize != 1 {
		t.Errorf("DeltaSize = %d, want 1", stats.DeltaSize)
	}
	if stats.TotalTime < 0 {
		t.Errorf("TotalTime = %v, want >= 0", stats.TotalTime)
	}
}

func TestValidateVersions(t *testing.T) {
	forge := newFakeForge()
	seedProject(forge)
	svc := newTestComparisonService(forge)

	checks, err := svc.ValidateVersions(context.Background(), "galaxy", "v1.0.0", "v0.5.0")
	if err != nil {
		t.Fatalf("ValidateVersions() error = %v", err)
	}
	if len(checks) != 2 {
		t.Fatalf("len(checks) = %d, want 2", len(checks))
	}
	if !checks[0].Valid || checks[0].Version != "v1.0.0" {
		t.Errorf("checks[0] = %+v, want v1.0.0 valid", checks[0])
	}
	if checks[1].Valid {
		t.Errorf("checks[1] = %+v, want invalid", checks[1])
	}
	if !reflect.DeepEqual(checks[1].Suggestions, []string{"v1.0.0", "v1.1.0"}) {
		t.Errorf("Suggestions = %v, want [v1.0.0 v1.1.0]", checks[1].Suggestions)
	}
}

func TestTags(t *testing.T) {
	forge := newFakeForge()
	seedProject(forge)
	svc := newTestComparisonService(forge)

	tags, err := svc.Tags(context.Background(), "galaxy")
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	if len(tags) != 2 {
		t.Errorf("len(tags) = %d, want 2", len(tags))
	}
}

func TestSuggestVersions(t *testing.T) {
	tags := []models.Tag{
		{Name: "v1.0.0"}, {Name: "v1.1.0"}, {Name: "v1.2.0"},
		{Name: "v1.3.0"}, {Name: "v1.4.0"}, {Name: "v1.5.0"},
		{Name: "v0.9.0"},
	}

	t.Run("caps at five ascending", func(t *testing.T) {
		got := suggestVersions(tags, "v1.0.1")
		want := []string{"v1.1.0", "v1.2.0", "v1.3.0", "v1.4.0", "v1.5.0"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("suggestVersions() = %v, want %v", got, want)
		}
	})

	t.Run("nothing greater", func(t *testing.T) {
		if got := suggestVersions(tags, "v9.9.9"); len(got) != 0 {
			t.Errorf("suggestVersions() = %v, want none", got)
		}
	})
}
