// package models defines the data model for the task diff service
package models

import (
	"sort"
	"strings"
	"time"
)

// Strategy identifies how a comparison obtained its commit delta.
type Strategy string

const (
	// StrategyCompare means the delta came from the forge's native compare endpoint.
	StrategyCompare Strategy = "compare"
	// StrategyFullIndex means both refs were fully fetched and indexed locally.
	StrategyFullIndex Strategy = "full_index"
)

// Commit represents a single commit as returned by the forge commits API.
// Immutable once fetched.
type Commit struct {
	ID         string    `json:"id"`
	ShortID    string    `json:"short_id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
	WebURL     string    `json:"web_url"`
}

// Snippet returns a one-line human-readable description of the commit,
// used in partially-missing task reports.
func (c Commit) Snippet() string {
	id := c.ShortID
	if id == "" && len(c.ID) >= 8 {
		id = c.ID[:8]
	} else if id == "" {
		id = c.ID
	}

	title := c.Title
	if title == "" {
		if i := strings.IndexByte(c.Message, '\n'); i >= 0 {
			title = c.Message[:i]
		} else {
			title = c.Message
		}
	}
	title = strings.TrimSpace(title)

	const maxTitle = 100
	if len(title) > maxTitle {
		title = title[:maxTitle-3] + "..."
	}

	if title == "" {
		return id
	}
	return id + ": " + title
}

// Tag represents a repository tag as returned by the forge tags API.
type Tag struct {
	Name    string  `json:"name"`
	Message string  `json:"message"`
	Target  string  `json:"target"`
	Commit  *Commit `json:"commit,omitempty"`
}

// CompareResult is the forge's ref-to-ref comparison payload.
// CompareTimeout signals the forge truncated the comparison; callers must
// treat such a delta as unreliable.
type CompareResult struct {
	Commit         *Commit  `json:"commit"`
	Commits        []Commit `json:"commits"`
	CompareTimeout bool     `json:"compare_timeout"`
	CompareSameRef bool     `json:"compare_same_ref"`
	WebURL         string   `json:"web_url"`
}

// TaskIndex maps a task identifier to every commit in one ref's history
// that mentions it. Commit order within a task is fetch order.
type TaskIndex map[string][]Commit

// TaskIDs returns all task identifiers in the index, sorted lexicographically.
func (ti TaskIndex) TaskIDs() []string {
	ids := make([]string, 0, len(ti))
	for id := range ti {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CommitIDSet returns the set of commit identifiers recorded for a task.
func (ti TaskIndex) CommitIDSet(taskID string) map[string]bool {
	commits := ti[taskID]
	set := make(map[string]bool, len(commits))
	for _, c := range commits {
		set[c.ID] = true
	}
	return set
}

// Add appends a commit to the task's occurrence list.
func (ti TaskIndex) Add(taskID string, commit Commit) {
	ti[taskID] = append(ti[taskID], commit)
}

// CacheStats is the hit/miss summary a request cache reports when cleared.
type CacheStats struct {
	Hits           int `json:"hits"`
	Misses         int `json:"misses"`
	EntriesCleared int `json:"entries_cleared"`
}

// HitRatio returns hits/(hits+misses), or zero when the cache saw no traffic.
func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// ComparisonResult is the complete outcome of comparing two versions.
//
// MissingTasks and NewTasks are the completely-missing sets for each
// direction (old minus new, new minus old). PartiallyMissing records, for
// tasks present in both refs, the old-ref commits whose IDs never made it
// into the new ref; PartiallyNew is the mirror image. All task lists are
// sorted lexicographically.
type ComparisonResult struct {
	ID             string   `json:"id"`
	Project        string   `json:"project_key"`
	OldVersion     string   `json:"old_version"`
	NewVersion     string   `json:"new_version"`
	Strategy       Strategy `json:"strategy"`
	FallbackReason string   `json:"fallback_reason,omitempty"`

	MissingTasks     []string            `json:"missing_tasks"`
	NewTasks         []string            `json:"new_tasks"`
	CommonTasks      []string            `json:"common_tasks"`
	PartiallyMissing map[string][]Commit `json:"partially_missing,omitempty"`
	PartiallyNew     map[string][]Commit `json:"partially_new,omitempty"`

	OldTaskCount int `json:"old_tasks_count"`
	NewTaskCount int `json:"new_tasks_count"`

	TotalTime  float64       `json:"total_time"`
	Elapsed    time.Duration `json:"-"`
	CacheStats CacheStats    `json:"cache_stats"`
}

// PartialSnippets converts a partial-task map into snippet form for reports,
// keeping at most maxPerTask snippets per task (0 means no limit).
func PartialSnippets(partial map[string][]Commit, maxPerTask int) map[string][]string {
	if len(partial) == 0 {
		return nil
	}
	out := make(map[string][]string, len(partial))
	for taskID, commits := range partial {
		n := len(commits)
		if maxPerTask > 0 && n > maxPerTask {
			n = maxPerTask
		}
		snippets := make([]string, 0, n)
		for _, c := range commits[:n] {
			snippets = append(snippets, c.Snippet())
		}
		out[taskID] = snippets
	}
	return out
}

// RefStatistics summarizes one ref's commit history.
type RefStatistics struct {
	Ref         string  `json:"ref"`
	CommitCount int     `json:"commit_count"`
	TaskCount   int     `json:"task_count"`
	TaskDensity float64 `json:"task_density"`
}

// VersionStatistics pairs per-ref summaries with the delta between them.
type VersionStatistics struct {
	From       RefStatistics `json:"from"`
	To         RefStatistics `json:"to"`
	DeltaSize  int           `json:"delta_commits"`
	TotalTime  float64       `json:"total_time"`
	CacheStats CacheStats    `json:"cache_stats"`
}

// TaskPresence reports where a single searched task appears.
type TaskPresence struct {
	TaskID      string `json:"task_id"`
	InFrom      bool   `json:"in_from"`
	InTo        bool   `json:"in_to"`
	FromCommits int    `json:"from_commits"`
	ToCommits   int    `json:"to_commits"`
}

// TaskSearchResult is the outcome of checking explicit task IDs against two refs.
type TaskSearchResult struct {
	From       string         `json:"version_from"`
	To         string         `json:"version_to"`
	Results    []TaskPresence `json:"results"`
	TotalTime  float64        `json:"total_time"`
	CacheStats CacheStats     `json:"cache_stats"`
}
