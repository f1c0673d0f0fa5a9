// Package services defines the [Forge] interface for version-control hosting APIs and implements it for GitLab.
//
// # Forge Interface
//
// The diff engine consumes the hosting API through three capabilities:
// paginated commit listing for a ref, a ref-to-ref compare endpoint, and tag
// listing. Implementations are bound to a single project at construction.
//
// # GitLab Implementation
//
// [GitLabService] talks to the GitLab REST API (v4 path shapes) using a
// static bearer token attached by an [oauth2] transport. There is no token
// refresh; the token is passed through as configured.
//
// Every failure surfaces as a [shared.RemoteAPIError] carrying the
// operation, the ref involved, the HTTP status, and any Retry-After hint,
// so the retry policy can distinguish rate limiting from hard failures.
//
// # Raw Access
//
// [APIService] is an unopinionated HTTP client used by the `api` CLI
// commands to poke the forge or a running taskdiff server directly. It
// returns status, headers, and the raw body with a best-effort JSON decode.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrRemoteAPI] : request failed after exhausting retries
//   - [shared.ErrRateLimited] : HTTP 429 from the forge
//   - [shared.ErrMissingToken] : no token configured
//   - [shared.ErrInvalidConfig] : unusable base URL or project binding
package services
