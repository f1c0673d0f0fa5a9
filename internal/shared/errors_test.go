package shared

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRemoteAPIError(t *testing.T) {
	base := fmt.Errorf("connection reset")
	err := &RemoteAPIError{
		Op:        "list_commits",
		Ref:       "v1.2.0",
		PageRange: "3-5",
		Err:       base,
	}

	if !errors.Is(err, ErrRemoteAPI) {
		t.Error("expected errors.Is(err, ErrRemoteAPI) to hold")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Error("non-429 error should not match ErrRateLimited")
	}
	if !errors.Is(err, base) {
		t.Error("expected wrapped transport error to be reachable")
	}

	msg := err.Error()
	for _, want := range []string{"list_commits", "v1.2.0", "3-5", "connection reset"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q: %s", want, msg)
		}
	}
}

func TestRemoteAPIErrorRateLimited(t *testing.T) {
	err := &RemoteAPIError{Op: "list_commits", StatusCode: 429}

	if !errors.Is(err, ErrRateLimited) {
		t.Error("429 should match ErrRateLimited")
	}
	if !errors.Is(err, ErrRemoteAPI) {
		t.Error("429 should still match ErrRemoteAPI")
	}
}

func TestVersionNotFoundError(t *testing.T) {
	err := &VersionNotFoundError{
		Version:     "v9.9.9",
		Project:     "galaxy",
		Suggestions: []string{"v10.0.0", "v10.1.0"},
	}

	if !errors.Is(err, ErrVersionNotFound) {
		t.Error("expected errors.Is(err, ErrVersionNotFound) to hold")
	}

	msg := err.Error()
	for _, want := range []string{"v9.9.9", "galaxy", "v10.0.0"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q: %s", want, msg)
		}
	}
}

func TestDiffErrorWrapsRemote(t *testing.T) {
	remote := &RemoteAPIError{Op: "list_commits", Ref: "v2.0.0", PageRange: "7"}
	err := &DiffError{Ref: "v2.0.0", Phase: "fetch_new", Err: remote}

	if !errors.Is(err, ErrDiff) {
		t.Error("expected errors.Is(err, ErrDiff) to hold")
	}
	if !errors.Is(err, ErrRemoteAPI) {
		t.Error("expected DiffError to expose the wrapped RemoteAPIError class")
	}

	var unwrapped *RemoteAPIError
	if !errors.As(err, &unwrapped) {
		t.Fatal("expected errors.As to find RemoteAPIError")
	}
	if unwrapped.PageRange != "7" {
		t.Errorf("unexpected page range %q", unwrapped.PageRange)
	}
}
