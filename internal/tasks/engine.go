package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/services"
	"github.com/desertthunder/taskdiff/internal/shared"
)

const defaultCompareThreshold = 1000

// EngineOpts configures strategy selection for a [TaskDiffEngine].
type EngineOpts struct {
	CompareThreshold int // Delta size at which full indexing takes over (default 1000)
	Fetch            FetcherOpts
}

// TaskDiffEngine classifies tasks between two refs of a single project.
//
// Two strategies produce identical results. The compare strategy asks the
// remote for the commit delta in both directions and fully fetches only the
// new ref; the old ref's history is reconstructed as the shared commits
// plus the missing delta, which skips the most expensive fetch. The
// full-index strategy fetches both refs outright. The engine prefers
// compare and falls back when the endpoint fails, reports a timeout, or
// returns a delta at or above CompareThreshold.
type TaskDiffEngine struct {
	forge     services.Forge
	extractor *TaskExtractor
	cache     *RequestCache
	fetcher   *CommitFetcher
	threshold int
	logger    *log.Logger
}

func NewTaskDiffEngine(forge services.Forge, extractor *TaskExtractor, cache *RequestCache, opts EngineOpts, logger *log.Logger) *TaskDiffEngine {
	if cache == nil {
		cache = NewRequestCache()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	threshold := opts.CompareThreshold
	if threshold <= 0 {
		threshold = defaultCompareThreshold
	}
	return &TaskDiffEngine{
		forge:     forge,
		extractor: extractor,
		cache:     cache,
		fetcher:   NewCommitFetcher(forge, cache, opts.Fetch, logger),
		threshold: threshold,
		logger:    logger,
	}
}

// refIndex pairs a ref's full commit list with its extracted task index.
type refIndex struct {
	commits []models.Commit
	index   models.TaskIndex
}

// Diff compares oldRef against newRef and classifies every task touched on
// either side.
func (e *TaskDiffEngine) Diff(ctx context.Context, oldRef, newRef string, progress chan<- ProgressUpdate) (*models.ComparisonResult, error) {
	result := &models.ComparisonResult{
		OldVersion: oldRef,
		NewVersion: newRef,
		Strategy:   models.StrategyCompare,
	}

	sendProgress(progress, compareUpdate(oldRef, newRef))
	oldIndex, newIndex, reason, err := e.compareIndexes(ctx, oldRef, newRef, progress)
	if reason != "" {
		e.logger.Info("falling back to full indexing", "old", oldRef, "new", newRef, "reason", reason)
		sendProgress(progress, fallbackUpdate(reason))
		result.Strategy = models.StrategyFullIndex
		result.FallbackReason = reason
		oldIndex, newIndex, err = e.fullIndexes(ctx, oldRef, newRef, progress)
	}
	if err != nil {
		return nil, err
	}

	sendProgress(progress, classifyUpdate(len(oldIndex), len(newIndex)))
	classify(oldIndex, newIndex, result)
	return result, nil
}

// compareIndexes builds both task indexes via the compare endpoint. A
// non-empty reason means the caller should fall back to full indexing;
// a non-nil error is fatal because full indexing would hit it too.
func (e *TaskDiffEngine) compareIndexes(ctx context.Context, oldRef, newRef string, progress chan<- ProgressUpdate) (models.TaskIndex, models.TaskIndex, string, error) {
	// from=newRef to=oldRef yields commits reachable only from oldRef,
	// exactly the candidates for missing work.
	missingDelta, err := e.compareDelta(ctx, newRef, oldRef)
	if err != nil {
		return nil, nil, fmt.Sprintf("compare %s...%s failed: %v", newRef, oldRef, err), nil
	}
	if missingDelta.CompareTimeout {
		return nil, nil, fmt.Sprintf("compare %s...%s timed out on the remote", newRef, oldRef), nil
	}
	addedDelta, err := e.compareDelta(ctx, oldRef, newRef)
	if err != nil {
		return nil, nil, fmt.Sprintf("compare %s...%s failed: %v", oldRef, newRef, err), nil
	}
	if addedDelta.CompareTimeout {
		return nil, nil, fmt.Sprintf("compare %s...%s timed out on the remote", oldRef, newRef), nil
	}
	if delta := len(missingDelta.Commits) + len(addedDelta.Commits); delta >= e.threshold {
		return nil, nil, fmt.Sprintf("delta of %d commits is at or above the %d commit threshold", delta, e.threshold), nil
	}

	newRI, err := e.indexRef(ctx, newRef, progress)
	if err != nil {
		return nil, nil, "", &shared.DiffError{Ref: newRef, Phase: "index_new", Err: err}
	}

	// The old history is the commits shared with newRef plus the missing
	// delta, so the old index never needs its own full fetch.
	added := make(map[string]bool, len(addedDelta.Commits))
	for _, c := range addedDelta.Commits {
		added[c.ID] = true
	}
	oldCommits := make([]models.Commit, 0, len(newRI.commits)+len(missingDelta.Commits))
	for _, c := range newRI.commits {
		if !added[c.ID] {
			oldCommits = append(oldCommits, c)
		}
	}
	oldCommits = append(oldCommits, missingDelta.Commits...)
	oldIndex := e.extractor.Index(oldCommits)
	sendProgress(progress, indexUpdate(oldRef, len(oldCommits), len(oldIndex)))
	return oldIndex, newRI.index, "", nil
}

// fullIndexes fetches and indexes both refs concurrently. The first real
// failure cancels the other fetch.
func (e *TaskDiffEngine) fullIndexes(ctx context.Context, oldRef, newRef string, progress chan<- ProgressUpdate) (models.TaskIndex, models.TaskIndex, error) {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		indexes [2]models.TaskIndex
		errs    [2]error
	)
	refs := [2]string{oldRef, newRef}
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			ri, err := e.indexRef(fctx, ref, progress)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			indexes[i] = ri.index
		}(i, ref)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	phases := [2]string{"index_old", "index_new"}
	var cause error
	var failedRef, failedPhase string
	for i, err := range errs {
		if err == nil {
			continue
		}
		if cause == nil || errors.Is(cause, context.Canceled) {
			cause, failedRef, failedPhase = err, refs[i], phases[i]
		}
	}
	if cause != nil {
		return nil, nil, &shared.DiffError{Ref: failedRef, Phase: failedPhase, Err: cause}
	}
	return indexes[0], indexes[1], nil
}

// indexRef fetches the complete history of ref and extracts its task index,
// caching the pair for the lifetime of the request cache.
func (e *TaskDiffEngine) indexRef(ctx context.Context, ref string, progress chan<- ProgressUpdate) (refIndex, error) {
	key := BranchTasksKey(ref)
	if cached, ok := e.cache.Get(key); ok {
		if ri, ok := cached.(refIndex); ok {
			return ri, nil
		}
	}
	commits, err := e.fetcher.FetchAllCommits(ctx, ref, progress)
	if err != nil {
		return refIndex{}, err
	}
	ri := refIndex{commits: commits, index: e.extractor.Index(commits)}
	e.cache.Set(key, ri)
	sendProgress(progress, indexUpdate(ref, len(commits), len(ri.index)))
	return ri, nil
}

// compareDelta returns the remote's commit delta from..to through the
// request cache.
func (e *TaskDiffEngine) compareDelta(ctx context.Context, from, to string) (*models.CompareResult, error) {
	key := CompareKey(from, to)
	if cached, ok := e.cache.Get(key); ok {
		if result, ok := cached.(*models.CompareResult); ok {
			return result, nil
		}
	}
	result, err := e.forge.CompareRefs(ctx, from, to)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, result)
	return result, nil
}

// classify fills result with the set algebra between the two indexes. A
// task only on the old side is completely missing; a task on both sides
// whose old commits are not a subset of its new commits is partially
// missing, and carries exactly the commits the new side lacks. The same
// logic runs in reverse for new and partially new tasks. All lists come
// back sorted so results are deterministic.
func classify(oldIndex, newIndex models.TaskIndex, result *models.ComparisonResult) {
	result.OldTaskCount = len(oldIndex)
	result.NewTaskCount = len(newIndex)
	result.MissingTasks = []string{}
	result.NewTasks = []string{}
	result.CommonTasks = []string{}
	result.PartiallyMissing = map[string][]models.Commit{}
	result.PartiallyNew = map[string][]models.Commit{}

	for taskID, oldCommits := range oldIndex {
		if _, ok := newIndex[taskID]; !ok {
			result.MissingTasks = append(result.MissingTasks, taskID)
			continue
		}
		result.CommonTasks = append(result.CommonTasks, taskID)
		if lost := commitsNotIn(oldCommits, newIndex.CommitIDSet(taskID)); len(lost) > 0 {
			result.PartiallyMissing[taskID] = lost
		}
	}
	for taskID, newCommits := range newIndex {
		if _, ok := oldIndex[taskID]; !ok {
			result.NewTasks = append(result.NewTasks, taskID)
			continue
		}
		if gained := commitsNotIn(newCommits, oldIndex.CommitIDSet(taskID)); len(gained) > 0 {
			result.PartiallyNew[taskID] = gained
		}
	}

	sort.Strings(result.MissingTasks)
	sort.Strings(result.NewTasks)
	sort.Strings(result.CommonTasks)
}

// commitsNotIn returns the commits whose IDs are absent from exclude,
// deduplicated and sorted by ID.
func commitsNotIn(commits []models.Commit, exclude map[string]bool) []models.Commit {
	var out []models.Commit
	seen := map[string]bool{}
	for _, c := range commits {
		if exclude[c.ID] || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
