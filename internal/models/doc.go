// Package models defines domain entities for the task diff service.
//
// The package contains two categories of types:
//
// 1. Wire DTOs: structs matching the forge REST API's JSON payloads
//   - [Commit] : a single commit from the paginated commits endpoint
//   - [Tag] : a repository tag from the tags endpoint
//   - [CompareResult] : the ref-to-ref compare endpoint payload
//
// 2. Analysis results: structs produced by the diff engine and comparison
// service
//   - [TaskIndex] : task identifier → commits mentioning it, for one ref
//   - [ComparisonResult] : missing/new/partial task classification for a
//     version pair
//   - [VersionStatistics] : per-ref commit and task counts
//   - [TaskSearchResult] : presence report for explicitly named tasks
//   - [CacheStats] : hit/miss summary from a request-scoped cache
//
// Nothing in this package performs I/O and none of these entities outlive a
// single comparison request.
package models
