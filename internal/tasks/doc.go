// Package tasks detects tracker tasks that went missing between two
// versions of a project, with real-time progress reporting.
//
// # Core Operations
//
// [ComparisonService] is the entry point shared by the CLI, the HTTP
// server, and the TUI:
//
//  1. [ComparisonService.CompareVersions] : Full comparison of two tags
//     - Resolves both labels against the project's tags (with suggestions)
//     - Classifies every task as missing, partially missing, common, or new
//     - Reports cache statistics and elapsed time on the result
//
//  2. [ComparisonService.SearchTasks] : Presence check for explicit task IDs
//     - Indexes both refs and reports where each requested task appears
//
//  3. [ComparisonService.Statistics] : Per-ref commit and task counts
//     - Adds the compare-endpoint delta between the refs when available
//
//  4. [ComparisonService.ValidateVersions] : Tag resolution without a diff
//
// # Strategy Selection
//
// [TaskDiffEngine] picks between two strategies that produce identical
// results. The compare strategy requests the commit delta in both
// directions and fully fetches only the new ref; the full-index strategy
// fetches both refs outright. The engine falls back to full indexing when
// the compare endpoint fails, reports a remote-side timeout, or the delta
// reaches the configured threshold, and records the reason on the result.
//
// # Fetching
//
// [CommitFetcher] finds a ref's last page by exponential probing plus
// binary search, then fetches all pages through a bounded worker pool with
// optional rate limiting. Failed pages are retried per [shared.RetryPolicy];
// retry exhaustion on any page cancels the sibling workers and fails the
// whole fetch, naming the pages that failed. Partial histories are never
// returned.
//
// # Progress Reporting
//
// All operations send [ProgressUpdate] values through non-blocking
// channels. Updates use select with default so a slow or absent consumer
// never stalls a fetch.
//
// # Caching
//
// [RequestCache] memoizes remote responses for the duration of exactly one
// request. Probe pages are reused by the fetch pool, and repeated index
// lookups within a request are free. The cache is cleared on every exit
// path and its statistics attach to the outgoing result.
//
// Task identity rests on commit IDs as reported by the remote. Workflows
// that rewrite history between tags, such as squash merging, can make
// carried-over work look partially missing; results flag those commits
// rather than guessing.
package tasks
