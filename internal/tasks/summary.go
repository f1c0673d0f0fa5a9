package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/shared"
)

// Summarizer turns a comparison result into a short prose risk assessment.
type Summarizer interface {
	Summarize(ctx context.Context, result *models.ComparisonResult) (string, error)
}

// RiskLevel buckets a comparison by how much work failed to carry over.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskFor classifies a result by its completely-missing count: more than
// ten is high, five through ten is medium, anything else is low. A clean
// result with no partials is none.
func RiskFor(result *models.ComparisonResult) RiskLevel {
	missing := len(result.MissingTasks)
	switch {
	case missing == 0 && len(result.PartiallyMissing) == 0:
		return RiskNone
	case missing > 10:
		return RiskHigh
	case missing >= 5:
		return RiskMedium
	default:
		return RiskLow
	}
}

// FallbackSummarizer produces a deterministic summary without calling any
// external text generator.
type FallbackSummarizer struct{}

func (FallbackSummarizer) Summarize(_ context.Context, result *models.ComparisonResult) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Comparing %s to %s: %d task(s) completely missing, %d partially missing, %d new.",
		result.OldVersion, result.NewVersion,
		len(result.MissingTasks), len(result.PartiallyMissing), len(result.NewTasks))
	switch RiskFor(result) {
	case RiskNone:
		b.WriteString(" Everything carried over; no follow-up needed.")
	case RiskLow:
		b.WriteString(" Risk is low; spot-check the listed tasks before release.")
	case RiskMedium:
		b.WriteString(" Risk is medium; review each missing task with its owner.")
	case RiskHigh:
		b.WriteString(" Risk is high; hold the release until the missing tasks are accounted for.")
	}
	return b.String(), nil
}

// HTTPSummarizer delegates to an external text-generation endpoint. Callers
// should treat any error as a cue to fall back to [FallbackSummarizer].
type HTTPSummarizer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSummarizer(endpoint string, client *http.Client) *HTTPSummarizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSummarizer{endpoint: endpoint, client: client}
}

func (h *HTTPSummarizer) Summarize(ctx context.Context, result *models.ComparisonResult) (string, error) {
	if h.endpoint == "" {
		return "", fmt.Errorf("%w: summary endpoint not configured", shared.ErrMissingConfig)
	}
	payload, err := json.Marshal(map[string]any{"report": result})
	if err != nil {
		return "", fmt.Errorf("%w: encode summary request: %v", shared.ErrServiceUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: summary endpoint returned %d", shared.ErrServiceUnavailable, resp.StatusCode)
	}

	var body struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode summary response: %v", shared.ErrServiceUnavailable, err)
	}
	if body.Summary == "" {
		return "", fmt.Errorf("%w: summary endpoint returned an empty summary", shared.ErrServiceUnavailable)
	}
	return body.Summary, nil
}

// SummarizeWithFallback tries s and falls back to the deterministic summary
// on any failure, so report rendering never blocks on the external service.
func SummarizeWithFallback(ctx context.Context, s Summarizer, result *models.ComparisonResult, logger *log.Logger) string {
	if s != nil {
		if text, err := s.Summarize(ctx, result); err == nil && text != "" {
			return text
		} else if err != nil && logger != nil {
			logger.Warn("summary service unavailable, using fallback", "error", err)
		}
	}
	text, _ := FallbackSummarizer{}.Summarize(ctx, result)
	return text
}
