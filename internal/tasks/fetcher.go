package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/services"
	"github.com/desertthunder/taskdiff/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultWorkers      = 10
	maxWorkers          = 50
	defaultPageSize     = 200
	defaultMaxProbePage = 1000
)

// FetcherOpts configures a [CommitFetcher].
type FetcherOpts struct {
	Workers       int                // Concurrent page fetchers (default 10, max 50)
	PageSize      int                // Commits per page (default 200)
	MaxProbePage  int                // Highest page the probe will consider (default 1000)
	RatePerSecond float64            // Request rate limit, 0 disables throttling
	Retry         shared.RetryPolicy // Per-page retry policy
}

func (o FetcherOpts) normalized() FetcherOpts {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.Workers > maxWorkers {
		o.Workers = maxWorkers
	}
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.MaxProbePage < 2 {
		o.MaxProbePage = defaultMaxProbePage
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = shared.DefaultRetryPolicy()
	}
	return o
}

// CommitFetcher retrieves complete commit histories one ref at a time. It
// locates the last page by probing, then fans page fetches out across a
// bounded worker pool. Page results land in the request cache, so probed
// pages are never fetched twice.
type CommitFetcher struct {
	forge   services.Forge
	cache   *RequestCache
	opts    FetcherOpts
	limiter *rate.Limiter
	logger  *log.Logger
}

func NewCommitFetcher(forge services.Forge, cache *RequestCache, opts FetcherOpts, logger *log.Logger) *CommitFetcher {
	if cache == nil {
		cache = NewRequestCache()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	opts = opts.normalized()
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return &CommitFetcher{
		forge:   forge,
		cache:   cache,
		opts:    opts,
		limiter: limiter,
		logger:  logger,
	}
}

// FetchAllCommits retrieves every commit reachable from ref, in page order.
// A ref with no commits yields an empty slice. If any page fails after
// retries the whole fetch fails with an error naming the failed pages;
// partial histories are never returned.
func (f *CommitFetcher) FetchAllCommits(ctx context.Context, ref string, progress chan<- ProgressUpdate) ([]models.Commit, error) {
	lastPage, err := f.probeLastPage(ctx, ref, progress)
	if err != nil {
		return nil, err
	}
	if lastPage == 0 {
		return []models.Commit{}, nil
	}

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pages := make([][]models.Commit, lastPage)
	jobs := make(chan int, lastPage)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		failed    []int
		cause     error
		completed atomic.Int64
	)

	workers := f.opts.Workers
	if workers > lastPage {
		workers = lastPage
	}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range jobs {
				commits, err := f.fetchPageWithRetry(fctx, ref, page)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						// A sibling already failed and cancelled the fetch.
						return
					}
					mu.Lock()
					failed = append(failed, page)
					if cause == nil {
						cause = err
					}
					mu.Unlock()
					cancel()
					return
				}
				pages[page-1] = commits
				done := int(completed.Add(1))
				sendProgress(progress, fetchPageUpdate(ref, done, lastPage))
			}
		}()
	}

	go func() {
		defer close(jobs)
		for page := 1; page <= lastPage; page++ {
			select {
			case <-fctx.Done():
				return
			default:
			}
			if err := f.limiter.Wait(fctx); err != nil {
				return
			}
			jobs <- page
		}
	}()

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(failed) > 0 {
		sort.Ints(failed)
		return nil, &shared.RemoteAPIError{
			Op:        "fetch commits",
			Ref:       ref,
			PageRange: pageRange(failed),
			Err:       cause,
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, page := range pages {
		total += len(page)
	}
	commits := make([]models.Commit, 0, total)
	for _, page := range pages {
		commits = append(commits, page...)
	}
	f.logger.Info("fetched ref history", "ref", ref, "pages", lastPage, "commits", total)
	return commits, nil
}

// probeLastPage locates the final non-empty page of ref's history. Page
// numbers double from 1 until a page comes back empty, then a binary search
// pins the boundary inside the bracket. Probed pages are cached, so the
// fetch pool reuses rather than refetches them.
func (f *CommitFetcher) probeLastPage(ctx context.Context, ref string, progress chan<- ProgressUpdate) (int, error) {
	sendProgress(progress, probeUpdate(ref, 1))
	first, err := f.fetchPageWithRetry(ctx, ref, 1)
	if err != nil {
		return 0, err
	}
	if len(first) == 0 {
		return 0, nil
	}

	low := 1
	high := 2
	for {
		if high > f.opts.MaxProbePage {
			high = f.opts.MaxProbePage
		}
		sendProgress(progress, probeUpdate(ref, high))
		commits, err := f.fetchPageWithRetry(ctx, ref, high)
		if err != nil {
			return 0, err
		}
		if len(commits) == 0 {
			break
		}
		low = high
		if high == f.opts.MaxProbePage {
			return 0, &shared.RemoteAPIError{
				Op:  "probe pages",
				Ref: ref,
				Err: fmt.Errorf("page %d still has commits; raise fetch.max_probe_page", high),
			}
		}
		high *= 2
	}

	for low+1 < high {
		mid := (low + high) / 2
		sendProgress(progress, probeUpdate(ref, mid))
		commits, err := f.fetchPageWithRetry(ctx, ref, mid)
		if err != nil {
			return 0, err
		}
		if len(commits) == 0 {
			high = mid
		} else {
			low = mid
		}
	}
	f.logger.Debug("located last page", "ref", ref, "page", low)
	return low, nil
}

func (f *CommitFetcher) fetchPageWithRetry(ctx context.Context, ref string, page int) ([]models.Commit, error) {
	var commits []models.Commit
	err := f.opts.Retry.Do(ctx, retryableFetch, func() error {
		var err error
		commits, err = f.fetchPage(ctx, ref, page)
		return err
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}

// fetchPage returns one page of commits, consulting the request cache first.
func (f *CommitFetcher) fetchPage(ctx context.Context, ref string, page int) ([]models.Commit, error) {
	key := CommitsPageKey(ref, page, f.opts.PageSize)
	if cached, ok := f.cache.Get(key); ok {
		if commits, ok := cached.([]models.Commit); ok {
			return commits, nil
		}
	}
	commits, err := f.forge.ListCommits(ctx, ref, page, f.opts.PageSize)
	if err != nil {
		return nil, err
	}
	f.cache.Set(key, commits)
	return commits, nil
}

// retryableFetch reports whether a page fetch error deserves another
// attempt. Cancellation aborts immediately; rate limits, timeouts,
// transport failures, and 5xx responses are treated as transient.
func retryableFetch(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *shared.RemoteAPIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 0:
			return true
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return true
		default:
			return apiErr.StatusCode >= http.StatusInternalServerError
		}
	}
	return true
}

// pageRange renders failed page numbers compactly, collapsing runs, e.g.
// [2 3 4 7] becomes "2-4, 7".
func pageRange(pages []int) string {
	var b strings.Builder
	for i := 0; i < len(pages); {
		j := i
		for j+1 < len(pages) && pages[j+1] == pages[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		if i == j {
			fmt.Fprintf(&b, "%d", pages[i])
		} else {
			fmt.Fprintf(&b, "%d-%d", pages[i], pages[j])
		}
		i = j + 1
	}
	return b.String()
}
