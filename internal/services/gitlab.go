// GitLab API implementation of [Forge]
//
// Endpoint shapes based on https://docs.gitlab.com/ee/api/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/shared"
	"golang.org/x/oauth2"
)

// tagsPageSize is the page size used when walking the tags listing.
const tagsPageSize = 100

// GitLabService implements the Forge interface against a GitLab-style REST
// API. Authentication is a static bearer token attached by an oauth2
// transport; the token is never refreshed.
type GitLabService struct {
	baseURL    string
	projectID  int
	project    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewGitLabService creates a Forge client bound to one project.
func NewGitLabService(cfg shared.ForgeConfig, project shared.ProjectConfig, logger *log.Logger) (*GitLabService, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: forge base_url is required", shared.ErrInvalidConfig)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: set forge token or %s", shared.ErrMissingToken, shared.EnvToken)
	}
	if project.ForgeID <= 0 {
		return nil, fmt.Errorf("%w: project %q has no forge_id", shared.ErrInvalidConfig, project.Key)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	client := oauth2.NewClient(context.Background(), src)
	client.Timeout = cfg.Timeout()

	return &GitLabService{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		projectID:  project.ForgeID,
		project:    project.Key,
		httpClient: client,
		logger:     logger,
	}, nil
}

func (g *GitLabService) Name() string {
	return g.project
}

// ListCommits retrieves one page of a ref's commit history.
func (g *GitLabService) ListCommits(ctx context.Context, ref string, page, perPage int) ([]models.Commit, error) {
	endpoint := fmt.Sprintf("/projects/%d/repository/commits?ref_name=%s&page=%d&per_page=%d",
		g.projectID, url.QueryEscape(ref), page, perPage)

	var commits []models.Commit
	if err := g.doRequest(ctx, "list_commits", ref, endpoint, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

// CompareRefs retrieves the commit delta between two refs.
func (g *GitLabService) CompareRefs(ctx context.Context, from, to string) (*models.CompareResult, error) {
	endpoint := fmt.Sprintf("/projects/%d/repository/compare?from=%s&to=%s",
		g.projectID, url.QueryEscape(from), url.QueryEscape(to))

	var result models.CompareResult
	if err := g.doRequest(ctx, "compare_refs", from+".."+to, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTags walks the paginated tags listing until a short page.
func (g *GitLabService) ListTags(ctx context.Context) ([]models.Tag, error) {
	var all []models.Tag

	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("/projects/%d/repository/tags?page=%d&per_page=%d",
			g.projectID, page, tagsPageSize)

		var tags []models.Tag
		if err := g.doRequest(ctx, "list_tags", "", endpoint, &tags); err != nil {
			return nil, err
		}

		all = append(all, tags...)
		if len(tags) < tagsPageSize {
			return all, nil
		}
	}
}

// doRequest performs an authenticated GET against the forge API and decodes
// the JSON response into result. Failures come back as *shared.RemoteAPIError
// carrying the operation, ref, status and any Retry-After hint.
func (g *GitLabService) doRequest(ctx context.Context, op, ref, endpoint string, result any) error {
	apiURL := g.baseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", shared.ErrTimeout, err)
		}
		return &shared.RemoteAPIError{Op: op, Ref: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &shared.RemoteAPIError{
			Op:         op,
			Ref:        ref,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp),
			Err:        fmt.Errorf("unexpected status: %s", bodySnippet(resp.Body)),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			g.logger.Warn("rate limited by forge", "op", op, "ref", ref, "retry_after", apiErr.RetryAfter)
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return &shared.RemoteAPIError{Op: op, Ref: ref, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}

	return nil
}

// retryAfter parses an integer-seconds Retry-After header, if present.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func bodySnippet(r io.Reader) string {
	const maxSnippet = 256
	data, err := io.ReadAll(io.LimitReader(r, maxSnippet))
	if err != nil || len(data) == 0 {
		return "<empty body>"
	}
	return strings.TrimSpace(string(data))
}
