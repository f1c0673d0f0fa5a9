// package services defines interface Forge for interacting with version-control hosting APIs
package services

import (
	"context"

	"github.com/desertthunder/taskdiff/internal/models"
)

// Forge is the capability surface of the version-control hosting API
// consumed by the diff engine. Implementations are bound to a single
// project at construction time.
type Forge interface {
	// ListCommits retrieves one page of a ref's commit history.
	// Page numbering starts at 1; a page past the end returns an empty
	// slice, not an error.
	ListCommits(ctx context.Context, ref string, page, perPage int) ([]models.Commit, error)

	// CompareRefs retrieves the commit delta between two refs from the
	// hosting API's native compare endpoint.
	CompareRefs(ctx context.Context, from, to string) (*models.CompareResult, error)

	// ListTags retrieves every tag of the project.
	ListTags(ctx context.Context) ([]models.Tag, error)

	// Name identifies the project the client is bound to.
	Name() string
}
