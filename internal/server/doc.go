// Package server exposes task comparisons as a JSON HTTP API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering,
// so route patterns may carry path wildcards.
//
// Stock middleware covers request identification ([RequestID]), structured request
// logging ([RequestLogger]), response content type ([JSONContentType]), and
// prometheus instrumentation ([Metrics.Middleware]).
//
// # Endpoints
//
// Comparison routes accept {old_version, new_version, project_key} bodies:
//
//   - POST /detect-missing-tasks: tasks present in the old version but absent from the new
//   - POST /analyze-new-features: tasks present only in the new version
//   - POST /analyze-tasks: both directions plus a risk summary
//   - POST /search-tasks: presence of explicit task IDs in two refs
//   - POST /validate-versions: tag existence checks with suggestions
//   - GET  /statistics/{from}/{to}: per-ref commit and task counts
//
// Operational routes: GET /projects, GET /health, GET /cache/stats,
// POST /cache/clear, GET /metrics.
//
// # Response Truncation
//
// Report bodies cap the listed identifiers (30 missing, 50 new, 20 partial
// tasks with 5 snippets each) and set a truncated flag when anything was
// cut. Count fields always reflect the full result.
//
// # Aggregate Statistics
//
// [Aggregates] folds each request's cache statistics into process totals,
// the only comparison state that survives a request. GET /cache/stats
// serves the totals; POST /cache/clear resets them. The same numbers feed
// prometheus counters on an isolated registry served at GET /metrics.
//
// # Custom Handlers
//
// Handlers owning several routes implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
