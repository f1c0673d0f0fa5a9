package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/shared"
)

func testLogger() *log.Logger {
	return shared.NewLogger(io.Discard)
}

// fakeForge serves scripted commit histories from memory. Failures are
// keyed by "ref:page"; a positive count fails that many times before
// succeeding, a negative count fails forever.
type fakeForge struct {
	mu             sync.Mutex
	commits        map[string][]models.Commit
	tags           []models.Tag
	tagsErr        error
	compareErr     error
	compareTimeout bool
	compareCalls   int
	pageCalls      map[string]int
	failures       map[string]int
	failStatus     int
}

func newFakeForge() *fakeForge {
	return &fakeForge{
		commits:   map[string][]models.Commit{},
		pageCalls: map[string]int{},
		failures:  map[string]int{},
	}
}

func (f *fakeForge) ListCommits(ctx context.Context, ref string, page, perPage int) ([]models.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s:%d", ref, page)
	f.pageCalls[key]++
	if remaining := f.failures[key]; remaining != 0 {
		if remaining > 0 {
			f.failures[key]--
		}
		status := f.failStatus
		if status == 0 {
			status = 503
		}
		return nil, &shared.RemoteAPIError{Op: "list commits", Ref: ref, StatusCode: status}
	}
	history := f.commits[ref]
	start := (page - 1) * perPage
	if start >= len(history) {
		return []models.Commit{}, nil
	}
	end := min(start+perPage, len(history))
	out := make([]models.Commit, end-start)
	copy(out, history[start:end])
	return out, nil
}

// CompareRefs derives the delta from the scripted histories: commits
// reachable from to that from lacks.
func (f *fakeForge) CompareRefs(ctx context.Context, from, to string) (*models.CompareResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compareCalls++
	if f.compareErr != nil {
		return nil, f.compareErr
	}
	if f.compareTimeout {
		return &models.CompareResult{CompareTimeout: true}, nil
	}
	fromIDs := map[string]bool{}
	for _, c := range f.commits[from] {
		fromIDs[c.ID] = true
	}
	delta := []models.Commit{}
	for _, c := range f.commits[to] {
		if !fromIDs[c.ID] {
			delta = append(delta, c)
		}
	}
	return &models.CompareResult{Commits: delta}, nil
}

func (f *fakeForge) ListTags(ctx context.Context) ([]models.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tagsErr != nil {
		return nil, f.tagsErr
	}
	return f.tags, nil
}

func (f *fakeForge) Name() string { return "fake" }

func (f *fakeForge) callsFor(ref string, page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls[fmt.Sprintf("%s:%d", ref, page)]
}

func (f *fakeForge) refCalls(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	prefix := ref + ":"
	for key, n := range f.pageCalls {
		if strings.HasPrefix(key, prefix) {
			total += n
		}
	}
	return total
}

func commitRange(ref string, n int) []models.Commit {
	commits := make([]models.Commit, 0, n)
	for i := range n {
		id := fmt.Sprintf("%s-%04d", ref, i)
		commits = append(commits, models.Commit{ID: id, ShortID: id, Message: fmt.Sprintf("commit %d", i)})
	}
	return commits
}

func fastRetry() shared.RetryPolicy {
	return shared.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestFetchAllCommits(t *testing.T) {
	t.Run("EmptyRefReturnsEmptySlice", func(t *testing.T) {
		forge := newFakeForge()
		fetcher := NewCommitFetcher(forge, nil, FetcherOpts{PageSize: 10, Retry: fastRetry()}, testLogger())

		commits, err := fetcher.FetchAllCommits(context.Background(), "empty", nil)
		if err != nil {
			t.Fatalf("FetchAllCommits() error = %v", err)
		}
		if commits == nil {
			t.Fatal("expected empty slice, got nil")
		}
		if len(commits) != 0 {
			t.Errorf("len(commits) = %d, want 0", len(commits))
		}
	})

	t.Run("SinglePage", func(t *testing.T) {
		forge := newFakeForge()
		forge.commits["main"] = commitRange("main", 7)
		fetcher := NewCommitFetcher(forge, nil, FetcherOpts{PageSize: 10, Retry: fastRetry()}, testLogger())

		commits, err := fetcher.FetchAllCommits(context.Background(), "main", nil)
		if err != nil {
			t.Fatalf("FetchAllCommits() error = %v", err)
		}
		if len(commits) != 7 {
			t.Errorf("len(commits) = %d, want 7", len(commits))
		}
	})

	t.Run("EveryPageFetchedExactlyOnce", func(t *testing.T) {
		for _, workers := range []int{1, 8, 50} {
			t.Run(fmt.Sprintf("Workers%d", workers), func(t *testing.T) {
				forge := newFakeForge()
				forge.commits["main"] = commitRange("main", 600)
				fetcher := NewCommitFetcher(forge, nil, FetcherOpts{
					Workers:  workers,
					PageSize: 10,
					Retry:    fastRetry(),
				}, testLogger())

				commits, err := fetcher.FetchAllCommits(context.Background(), "main", nil)
				if err != nil {
					t.Fatalf("FetchAllCommits() error = %v", err)
				}
				if len(commits) != 600 {
					t.Fatalf("len(commits) = %d, want 600", len(commits))
				}
				for i, c := range commits {
					if want := fmt.Sprintf("main-%04d", i); c.ID != want {
						t.Fatalf("commits[%d].ID = %s, want %s", i, c.ID, want)
					}
				}
				for page := 1; page <= 60; page++ {
					if calls := forge.callsFor("main", page); calls != 1 {
						t.Errorf("page %d fetched %d times, want 1", page, calls)
					}
				}
			})
		}
	})

	t.Run("RetriesTransientFailure", func(t *testing.T) {
		forge := newFakeForge()
		forge.commits["main"] = commitRange("main", 50)
		forge.failures["main:3"] = 2
		fetcher := NewCommitFetcher(forge, nil, FetcherOpts{
			Workers:  4,
			PageSize: 10,
			Retry:    fastRetry(),
		}, testLogger())

		commits, err := fetcher.FetchAllCommits(context.Background(), "main", nil)
		if err != nil {
			t.Fatalf("FetchAllCommits() error = %v", err)
		}
		if len(commits) != 50 {
			t.Errorf("len(commits) = %d, want 50", len(commits))
		}
		if calls := forge.callsFor("main", 3); calls != 3 {
			t.Errorf("page 3 fetched %d times, want 3", calls)
		}
	})

	t.Run("PermanentFailureNamesPages", func(t *testing.T) {
		forge := newFakeForge()
		forge.commits["main"] = commitRange("main", 50)
		forge.failures["main:3"] = -1
		fetcher := NewCommitFetcher(forge, nil, FetcherOpts{
			Workers:  4,
			PageSize: 10,
			Retry:    fastRetry(),
		}, testLogger())

		commits, err := fetcher.FetchAllCommits(context.Background(), "main", nil)
		if err == nil {
			t.Fatal("expected error for permanently failing page")
		}
		if commits != nil {
			t.Errorf("expected no partial results, got %d commits", len(commits))
		}
		if !errors.Is(err, shared.ErrRemoteAPI) {
			t.Errorf("errors.Is(err, ErrRemoteAPI) = false, err = %v", err)
		}
		var apiErr *shared.RemoteAPIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected RemoteAPIError, got %T", err)
		}
		if !strings.Contains(apiErr.PageRange, "3") {
			t.Errorf("PageRange = %q, want it to name page 3", apiErr.PageRange)
		}
		if apiErr.Ref != "main" {
			t.Errorf("Ref = %q, want main", apiErr.Ref)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		forge := newFakeForge()
		forge.commits["main"] = commitRange("main", 50)
		fetcher := NewCommitFetcher(forge, nil, FetcherOpts{PageSize: 10, Retry: fastRetry()}, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := fetcher.FetchAllCommits(ctx, "main", nil); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})

	t.Run("ReportsProgress", func(t *testing.T) {
		forge := newFakeForge()
		forge.commits["main"] = commitRange("main", 50)
		fetcher := NewCommitFetcher(forge, nil, FetcherOpts{
			Workers:  2,
			PageSize: 10,
			Retry:    fastRetry(),
		}, testLogger())

		progress := make(chan ProgressUpdate, 128)
		if _, err := fetcher.FetchAllCommits(context.Background(), "main", progress); err != nil {
			t.Fatalf("FetchAllCommits() error = %v", err)
		}
		close(progress)

		var sawProbe, sawFetch bool
		for update := range progress {
			switch update.Phase {
			case ProbePages:
				sawProbe = true
			case FetchCommits:
				sawFetch = true
			}
		}
		if !sawProbe {
			t.Error("expected at least one probe update")
		}
		if !sawFetch {
			t.Error("expected at least one fetch update")
		}
	})
}

func TestProbeLastPage(t *testing.T) {
	t.Run("FindsBoundary", func(t *testing.T) {
		cases := []struct {
			name    string
			commits int
			want    int
		}{
			{"one page", 5, 1},
			{"exact page boundary", 20, 2},
			{"many pages", 237, 24},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				forge := newFakeForge()
				forge.commits["main"] = commitRange("main", tc.commits)
				fetcher := NewCommitFetcher(forge, nil, FetcherOpts{PageSize: 10, Retry: fastRetry()}, testLogger())

				last, err := fetcher.probeLastPage(context.Background(), "main", nil)
				if err != nil {
					t.Fatalf("probeLastPage() error = %v", err)
				}
				if last != tc.want {
					t.Errorf("probeLastPage() = %d, want %d", last, tc.want)
				}
			})
		}
	})

	t.Run("HistoryBeyondProbeLimit", func(t *testing.T) {
		forge := newFakeForge()
		forge.commits["main"] = commitRange("main", 30)
		fetcher := NewCommitFetcher(forge, nil, FetcherOpts{
			PageSize:     10,
			MaxProbePage: 2,
			Retry:        fastRetry(),
		}, testLogger())

		_, err := fetcher.probeLastPage(context.Background(), "main", nil)
		if !errors.Is(err, shared.ErrRemoteAPI) {
			t.Fatalf("err = %v, want ErrRemoteAPI", err)
		}
		if !strings.Contains(err.Error(), "max_probe_page") {
			t.Errorf("err = %v, want a pointer at fetch.max_probe_page", err)
		}
	})
}

func TestRetryableFetch(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"cancelled", context.Canceled, false},
		{"rate limited", &shared.RemoteAPIError{StatusCode: 429}, true},
		{"server error", &shared.RemoteAPIError{StatusCode: 503}, true},
		{"not found", &shared.RemoteAPIError{StatusCode: 404}, false},
		{"transport failure", &shared.RemoteAPIError{Err: errors.New("connection reset")}, true},
		{"plain error", errors.New("boom"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryableFetch(tc.err); got != tc.want {
				t.Errorf("retryableFetch(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestPageRange(t *testing.T) {
	cases := []struct {
		name  string
		pages []int
		want  string
	}{
		{"single", []int{3}, "3"},
		{"run", []int{2, 3, 4}, "2-4"},
		{"run and stray", []int{2, 3, 4, 7}, "2-4, 7"},
		{"disjoint", []int{1, 5}, "1, 5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pageRange(tc.pages); got != tc.want {
				t.Errorf("pageRange(%v) = %q, want %q", tc.pages, got, tc.want)
			}
		})
	}
}
