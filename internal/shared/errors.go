package shared

import (
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig  = fmt.Errorf("configuration not found")
	ErrInvalidConfig  = fmt.Errorf("invalid configuration")
	ErrMissingToken   = fmt.Errorf("missing access token")
	ErrUnknownProject = fmt.Errorf("unknown project")

	// Remote API errors
	ErrRemoteAPI          = fmt.Errorf("remote API request failed")
	ErrRateLimited        = fmt.Errorf("rate limited by remote API")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Comparison errors
	ErrVersionNotFound = fmt.Errorf("version not found")
	ErrDiff            = fmt.Errorf("diff failed")
	ErrCacheStats      = fmt.Errorf("cache stats unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// RemoteAPIError reports a failed interaction with the forge API after
// retries were exhausted. PageRange is set when the failure is scoped to
// specific pages of a paginated listing, so callers can tell exactly which
// part of the history is missing.
type RemoteAPIError struct {
	Op         string
	Ref        string
	PageRange  string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *RemoteAPIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", ErrRemoteAPI, e.Op)
	if e.Ref != "" {
		fmt.Fprintf(&b, " ref=%s", e.Ref)
	}
	if e.PageRange != "" {
		fmt.Fprintf(&b, " pages=%s", e.PageRange)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RemoteAPIError) Unwrap() error { return e.Err }

// Is reports membership in the remote API error class so callers can use
// errors.Is(err, ErrRemoteAPI) without losing the wrapped transport error.
func (e *RemoteAPIError) Is(target error) bool {
	if target == ErrRemoteAPI {
		return true
	}
	return target == ErrRateLimited && e.StatusCode == 429
}

// RetryDelayHint surfaces the server-provided Retry-After interval, when one
// was present, so the retry policy can honor it over its computed backoff.
func (e *RemoteAPIError) RetryDelayHint() time.Duration { return e.RetryAfter }

// VersionNotFoundError reports a version label that matched no tag, with up
// to a handful of nearby tag names as suggestions.
type VersionNotFoundError struct {
	Version     string
	Project     string
	Suggestions []string
}

func (e *VersionNotFoundError) Error() string {
	msg := fmt.Sprintf("%s: %q", ErrVersionNotFound, e.Version)
	if e.Project != "" {
		msg += fmt.Sprintf(" in project %s", e.Project)
	}
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean: %s)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

func (e *VersionNotFoundError) Is(target error) bool { return target == ErrVersionNotFound }

// DiffError wraps a remote failure with the ref and phase of the diff that
// hit it.
type DiffError struct {
	Ref   string
	Phase string
	Err   error
}

func (e *DiffError) Error() string {
	return fmt.Sprintf("%s: phase=%s ref=%s: %v", ErrDiff, e.Phase, e.Ref, e.Err)
}

func (e *DiffError) Unwrap() error { return e.Err }

func (e *DiffError) Is(target error) bool { return target == ErrDiff }
