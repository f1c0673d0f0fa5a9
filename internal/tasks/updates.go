package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase (0 when unknown)
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ResolveTags Phase = iota
	ProbePages
	FetchCommits
	CompareDelta
	BuildIndex
	Classify
)

func (p Phase) String() string {
	switch p {
	case ResolveTags:
		return "resolve_tags"
	case ProbePages:
		return "probe_pages"
	case FetchCommits:
		return "fetch_commits"
	case CompareDelta:
		return "compare_delta"
	case BuildIndex:
		return "build_index"
	case Classify:
		return "classify"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

func resolveTagsUpdate(project string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTags,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Resolving tags for %s...", project),
	}
}

func probeUpdate(ref string, page int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ProbePages,
		Step:    page,
		Message: fmt.Sprintf("Probing %s for its last commit page (page %d)...", ref, page),
	}
}

func fetchPageUpdate(ref string, step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchCommits,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching commit pages from %s...", step, total, ref),
	}
}

func compareUpdate(from, to string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CompareDelta,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Requesting commit delta %s...%s...", from, to),
	}
}

func fallbackUpdate(reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CompareDelta,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Falling back to full indexing: %s", reason),
	}
}

func indexUpdate(ref string, commits, tasks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BuildIndex,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Indexed %d commits from %s (%d tasks)", commits, ref, tasks),
	}
}

func classifyUpdate(oldTasks, newTasks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Classify,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Classifying %d tasks against %d...", oldTasks, newTasks),
	}
}
