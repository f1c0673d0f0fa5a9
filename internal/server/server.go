package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/taskdiff/internal/models"
	"github.com/desertthunder/taskdiff/internal/shared"
	"github.com/desertthunder/taskdiff/internal/tasks"
)

// Report truncation caps. Totals always reflect the full counts; only the
// listed identifiers and snippets are capped.
const (
	maxMissingIDs      = 30
	maxNewIDs          = 50
	maxPartialTasks    = 20
	maxSnippetsPerTask = 5
)

// Server exposes task comparisons over HTTP.
type Server struct {
	comparisons *tasks.ComparisonService
	summarizer  tasks.Summarizer
	config      *shared.Config
	logger      *log.Logger
	aggregates  *Aggregates
	metrics     *Metrics
	router      *BasicRouter
}

// New wires a Server around the comparison service and registers its routes.
// The server owns the aggregate statistics and installs itself as the
// service's stats recorder.
func New(comparisons *tasks.ComparisonService, config *shared.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	metrics := NewMetrics()
	s := &Server{
		comparisons: comparisons,
		config:      config,
		logger:      logger,
		aggregates:  NewAggregates(metrics),
		metrics:     metrics,
	}

	if config.Summary.Enabled {
		s.summarizer = tasks.NewHTTPSummarizer(config.Summary.Endpoint, nil)
	}

	comparisons.SetRecorder(s.aggregates)
	s.routes()
	return s
}

func (s *Server) routes() {
	router := NewBasicRouter()
	router.Use(RequestID(), RequestLogger(s.logger), s.metrics.Middleware(), JSONContentType())

	router.Handle(http.MethodPost, "/detect-missing-tasks", http.HandlerFunc(s.handleDetectMissing))
	router.Handle(http.MethodPost, "/analyze-new-features", http.HandlerFunc(s.handleAnalyzeNew))
	router.Handle(http.MethodPost, "/analyze-tasks", http.HandlerFunc(s.handleAnalyzeTasks))
	router.Handle(http.MethodPost, "/search-tasks", http.HandlerFunc(s.handleSearchTasks))
	router.Handle(http.MethodPost, "/validate-versions", http.HandlerFunc(s.handleValidateVersions))
	router.Handle(http.MethodGet, "/statistics/{from}/{to}", http.HandlerFunc(s.handleStatistics))
	router.Handle(http.MethodGet, "/projects", http.HandlerFunc(s.handleProjects))
	router.Handle(http.MethodGet, "/health", http.HandlerFunc(s.handleHealth))
	router.Handler(&cacheHandler{server: s})
	router.Handle(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router = router
}

// ServeHTTP implements http.Handler so the server can be mounted in tests
// without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the configured listen address, defaulting to 127.0.0.1:8080.
func (s *Server) Addr() string {
	host := s.config.Server.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := s.config.Server.Port
	if port == 0 {
		port = 8080
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("server listening", "addr", srv.Addr, "projects", len(s.config.Projects))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// compareRequest is the body shared by the comparison and validation routes.
type compareRequest struct {
	OldVersion string `json:"old_version"`
	NewVersion string `json:"new_version"`
	ProjectKey string `json:"project_key"`
}

type searchRequest struct {
	VersionFrom string   `json:"version_from"`
	VersionTo   string   `json:"version_to"`
	TaskIDs     []string `json:"task_ids"`
	ProjectKey  string   `json:"project_key"`
}

type missingDetails struct {
	CompletelyMissingTasks []string            `json:"completely_missing_tasks"`
	PartiallyMissingTasks  map[string][]string `json:"partially_missing_tasks"`
}

// missingTasksResponse is the report served by POST /detect-missing-tasks.
type missingTasksResponse struct {
	ComparisonID     string            `json:"comparison_id"`
	Project          string            `json:"project_key"`
	OldVersion       string            `json:"old_version"`
	NewVersion       string            `json:"new_version"`
	MissingTasks     []string          `json:"missing_tasks"`
	OldTasksCount    int               `json:"old_tasks_count"`
	NewTasksCount    int               `json:"new_tasks_count"`
	TotalTime        float64           `json:"total_time"`
	Strategy         models.Strategy   `json:"strategy"`
	DetailedAnalysis missingDetails    `json:"detailed_analysis"`
	Truncated        bool              `json:"truncated"`
	CacheStats       models.CacheStats `json:"cache_stats"`
}

type newFeatureDetails struct {
	CompletelyNewTasks []string            `json:"completely_new_tasks"`
	PartiallyNewTasks  map[string][]string `json:"partially_new_tasks"`
}

// newFeaturesResponse is the report served by POST /analyze-new-features.
type newFeaturesResponse struct {
	ComparisonID     string            `json:"comparison_id"`
	Project          string            `json:"project_key"`
	OldVersion       string            `json:"old_version"`
	NewVersion       string            `json:"new_version"`
	NewFeatures      []string          `json:"new_features"`
	OldTasksCount    int               `json:"old_tasks_count"`
	NewTasksCount    int               `json:"new_tasks_count"`
	TotalTime        float64           `json:"total_time"`
	Strategy         models.Strategy   `json:"strategy"`
	DetailedAnalysis newFeatureDetails `json:"detailed_analysis"`
	Truncated        bool              `json:"truncated"`
	CacheStats       models.CacheStats `json:"cache_stats"`
}

// analyzeResponse is the combined bidirectional report served by
// POST /analyze-tasks, including the risk summary.
type analyzeResponse struct {
	ComparisonID     string              `json:"comparison_id"`
	Project          string              `json:"project_key"`
	OldVersion       string              `json:"old_version"`
	NewVersion       string              `json:"new_version"`
	Strategy         models.Strategy     `json:"strategy"`
	FallbackReason   string              `json:"fallback_reason,omitempty"`
	MissingTasks     []string            `json:"missing_tasks"`
	NewFeatures      []string            `json:"new_features"`
	CommonTasksCount int                 `json:"common_tasks_count"`
	PartiallyMissing map[string][]string `json:"partially_missing_tasks"`
	PartiallyNew     map[string][]string `json:"partially_new_tasks"`
	OldTasksCount    int                 `json:"old_tasks_count"`
	NewTasksCount    int                 `json:"new_tasks_count"`
	RiskLevel        tasks.RiskLevel     `json:"risk_level"`
	Summary          string              `json:"summary"`
	TotalTime        float64             `json:"total_time"`
	Truncated        bool                `json:"truncated"`
	CacheStats       models.CacheStats   `json:"cache_stats"`
}

type validateResponse struct {
	Valid  bool                 `json:"valid"`
	Checks []tasks.VersionCheck `json:"checks"`
}

type projectsResponse struct {
	Projects []shared.ProjectConfig `json:"projects"`
	Default  string                 `json:"default,omitempty"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Projects int    `json:"projects"`
}

type cacheClearResponse struct {
	Status               string `json:"status"`
	ComparisonsDiscarded int    `json:"comparisons_discarded"`
}

type errorResponse struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (s *Server) handleDetectMissing(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.comparisons.CompareVersions(r.Context(), req.OldVersion, req.NewVersion, req.ProjectKey, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, buildMissingResponse(result))
}

func (s *Server) handleAnalyzeNew(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.comparisons.CompareVersions(r.Context(), req.OldVersion, req.NewVersion, req.ProjectKey, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, buildNewFeaturesResponse(result))
}

func (s *Server) handleAnalyzeTasks(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.comparisons.CompareVersions(r.Context(), req.OldVersion, req.NewVersion, req.ProjectKey, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}

	summary := tasks.SummarizeWithFallback(r.Context(), s.summarizer, result, s.logger)
	s.writeJSON(w, http.StatusOK, buildAnalyzeResponse(result, summary))
}

func (s *Server) handleSearchTasks(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.comparisons.SearchTasks(r.Context(), req.VersionFrom, req.VersionTo, req.ProjectKey, req.TaskIDs, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleValidateVersions(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	checks, err := s.comparisons.ValidateVersions(r.Context(), req.ProjectKey, req.OldVersion, req.NewVersion)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := validateResponse{Valid: true, Checks: checks}
	for _, check := range checks {
		if !check.Valid {
			resp.Valid = false
			break
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	from := r.PathValue("from")
	to := r.PathValue("to")
	project := r.URL.Query().Get("project")

	stats, err := s.comparisons.Statistics(r.Context(), from, to, project, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	resp := projectsResponse{Projects: s.config.Projects}
	if def, err := s.config.Project(""); err == nil {
		resp.Default = def.Key
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Service:  "taskdiff",
		Projects: len(s.config.Projects),
	})
}

// cacheHandler serves the aggregate statistics endpoints. It implements
// [Handler] so both routes register together.
type cacheHandler struct {
	server *Server
}

func (h *cacheHandler) Routes() []string {
	return []string{"/cache/stats", "/cache/clear"}
}

func (h *cacheHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/cache/stats" && r.Method == http.MethodGet:
		h.server.writeJSON(w, http.StatusOK, h.server.aggregates.Snapshot())
	case r.URL.Path == "/cache/clear" && r.Method == http.MethodPost:
		discarded := h.server.aggregates.Reset()
		h.server.logger.Info("aggregate cache statistics reset", "comparisons_discarded", discarded)
		h.server.writeJSON(w, http.StatusOK, cacheClearResponse{
			Status:               "ok",
			ComparisonsDiscarded: discarded,
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func buildMissingResponse(result *models.ComparisonResult) missingTasksResponse {
	missing, cutIDs := capStrings(result.MissingTasks, maxMissingIDs)
	partial, cutTasks := capPartial(result.PartiallyMissing, maxPartialTasks)

	return missingTasksResponse{
		ComparisonID:  result.ID,
		Project:       result.Project,
		OldVersion:    result.OldVersion,
		NewVersion:    result.NewVersion,
		MissingTasks:  missing,
		OldTasksCount: result.OldTaskCount,
		NewTasksCount: result.NewTaskCount,
		TotalTime:     result.TotalTime,
		Strategy:      result.Strategy,
		DetailedAnalysis: missingDetails{
			CompletelyMissingTasks: missing,
			PartiallyMissingTasks:  snippetMap(partial),
		},
		Truncated:  cutIDs || cutTasks || snippetsTruncated(result.PartiallyMissing),
		CacheStats: result.CacheStats,
	}
}

func buildNewFeaturesResponse(result *models.ComparisonResult) newFeaturesResponse {
	features, cutIDs := capStrings(result.NewTasks, maxNewIDs)
	partial, cutTasks := capPartial(result.PartiallyNew, maxPartialTasks)

	return newFeaturesResponse{
		ComparisonID:  result.ID,
		Project:       result.Project,
		OldVersion:    result.OldVersion,
		NewVersion:    result.NewVersion,
		NewFeatures:   features,
		OldTasksCount: result.OldTaskCount,
		NewTasksCount: result.NewTaskCount,
		TotalTime:     result.TotalTime,
		Strategy:      result.Strategy,
		DetailedAnalysis: newFeatureDetails{
			CompletelyNewTasks: features,
			PartiallyNewTasks:  snippetMap(partial),
		},
		Truncated:  cutIDs || cutTasks || snippetsTruncated(result.PartiallyNew),
		CacheStats: result.CacheStats,
	}
}

func buildAnalyzeResponse(result *models.ComparisonResult, summary string) analyzeResponse {
	missing, cutMissing := capStrings(result.MissingTasks, maxMissingIDs)
	features, cutFeatures := capStrings(result.NewTasks, maxNewIDs)
	partialMissing, cutPM := capPartial(result.PartiallyMissing, maxPartialTasks)
	partialNew, cutPN := capPartial(result.PartiallyNew, maxPartialTasks)

	truncated := cutMissing || cutFeatures || cutPM || cutPN ||
		snippetsTruncated(result.PartiallyMissing) ||
		snippetsTruncated(result.PartiallyNew)

	return analyzeResponse{
		ComparisonID:     result.ID,
		Project:          result.Project,
		OldVersion:       result.OldVersion,
		NewVersion:       result.NewVersion,
		Strategy:         result.Strategy,
		FallbackReason:   result.FallbackReason,
		MissingTasks:     missing,
		NewFeatures:      features,
		CommonTasksCount: len(result.CommonTasks),
		PartiallyMissing: snippetMap(partialMissing),
		PartiallyNew:     snippetMap(partialNew),
		OldTasksCount:    result.OldTaskCount,
		NewTasksCount:    result.NewTaskCount,
		RiskLevel:        tasks.RiskFor(result),
		Summary:          summary,
		TotalTime:        result.TotalTime,
		Truncated:        truncated,
		CacheStats:       result.CacheStats,
	}
}

// capStrings returns at most max entries, reporting whether anything was cut.
func capStrings(ids []string, max int) ([]string, bool) {
	if len(ids) <= max {
		return ids, false
	}
	return ids[:max], true
}

// capPartial keeps the lexicographically-first max tasks of a partial map.
func capPartial(partial map[string][]models.Commit, max int) (map[string][]models.Commit, bool) {
	if len(partial) <= max {
		return partial, false
	}

	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	capped := make(map[string][]models.Commit, max)
	for _, k := range keys[:max] {
		capped[k] = partial[k]
	}
	return capped, true
}

func snippetsTruncated(partial map[string][]models.Commit) bool {
	for _, commits := range partial {
		if len(commits) > maxSnippetsPerTask {
			return true
		}
	}
	return false
}

// snippetMap renders a partial-task map in snippet form, never nil so the
// JSON field is always an object.
func snippetMap(partial map[string][]models.Commit) map[string][]string {
	snippets := models.PartialSnippets(partial, maxSnippetsPerTask)
	if snippets == nil {
		return map[string][]string{}
	}
	return snippets
}

// writeError maps service errors onto HTTP statuses: bad input is a 400,
// unknown versions are a 404 with suggestions, upstream forge failures are
// a 502, anything else a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var notFound *shared.VersionNotFoundError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
		resp.Suggestions = notFound.Suggestions
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrUnknownProject),
		errors.Is(err, shared.ErrInvalidConfig),
		errors.Is(err, shared.ErrMissingConfig):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrRemoteAPI), errors.Is(err, shared.ErrDiff):
		status = http.StatusBadGateway
	}

	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// decodeJSON reads a request body capped at 1 MiB.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", shared.ErrInvalidInput, err)
	}
	return nil
}
