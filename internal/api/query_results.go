package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/plugtrack-io/plugtrack/internal/api/middleware"
	"github.com/plugtrack-io/plugtrack/internal/catalog"
	"github.com/plugtrack-io/plugtrack/internal/ingestion"
)

type (
	// ResultPayload is the wire form of one stored result on the query side.
	// Field names mirror the submission payload; the raw log is excluded and
	// served separately on /api/v1/output.
	ResultPayload struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Env         string `json:"env"`
		Pytest      string `json:"pytest"`
		Status      string `json:"status"`
		Description string `json:"description,omitempty"`
	}

	// PluginResultsResponse is the body for GET /api/v1/results/{plugin}.
	PluginResultsResponse struct {
		Name    string          `json:"name"`
		Results []ResultPayload `json:"results"`
	}

	// CellStatusResponse is the body for GET /api/v1/status.
	CellStatusResponse struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Env     string `json:"env"`
		Pytest  string `json:"pytest"`
		Status  string `json:"status"`
	}

	// PluginsResponse is the body for GET /api/v1/plugins.
	PluginsResponse struct {
		Plugins []catalog.Plugin `json:"plugins"`
	}
)

// cellKeyFromQuery builds the composite cell key from request query
// parameters. All four parameters are required; the returned problem names
// the missing ones.
func cellKeyFromQuery(values url.Values) (ingestion.CompositeKey, *ProblemDetail) {
	name := strings.TrimSpace(values.Get("name"))
	version := strings.TrimSpace(values.Get("version"))
	env := strings.TrimSpace(values.Get("env"))
	runner := strings.TrimSpace(values.Get("pytest"))

	var missing []string

	if name == "" {
		missing = append(missing, "name")
	}

	if version == "" {
		missing = append(missing, "version")
	}

	if env == "" {
		missing = append(missing, "env")
	}

	if runner == "" {
		missing = append(missing, "pytest")
	}

	if len(missing) > 0 {
		return ingestion.CompositeKey{}, BadRequest(
			"Missing required query parameters: " + strings.Join(missing, ", "),
		)
	}

	return ingestion.NewCompositeKey(name, version, env, runner), nil
}

// handlePluginResults returns all stored results for one plugin.
// GET /api/v1/results/{plugin}
//
// Results are ordered for display: plugin version descending (loose version
// ordering), then env, then runner version. A plugin with no stored results
// yields 200 with an empty list; absence of results is not an error, it just
// means every cell is untested.
func (s *Server) handlePluginResults(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	pluginName := strings.TrimSpace(r.PathValue("plugin"))
	if pluginName == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("Plugin name cannot be empty"))

		return
	}

	records, err := s.deps.Query.ResultsOf(r.Context(), pluginName)
	if err != nil {
		s.logger.Error("Failed to list plugin results",
			slog.String("correlation_id", correlationID),
			slog.String("plugin", pluginName),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, ServiceUnavailable("Result storage is unavailable"))

		return
	}

	response := PluginResultsResponse{
		Name:    ingestion.NormalizePluginName(pluginName),
		Results: make([]ResultPayload, 0, len(records)),
	}

	for _, record := range records {
		response.Results = append(response.Results, ResultPayload{
			Name:        record.PluginName,
			Version:     record.PluginVersion,
			Env:         record.Env,
			Pytest:      record.RunnerVersion,
			Status:      string(record.Status),
			Description: record.Description,
		})
	}

	s.writeJSON(w, r, correlationID, http.StatusOK, response)
}

// handleCellStatus returns the latest status for one cell.
// GET /api/v1/status?name=&version=&env=&pytest=
//
// Used for badge selection by the presentation collaborator. An untested
// cell is a 404 problem, distinct from a stored "fail".
func (s *Server) handleCellStatus(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	key, problem := cellKeyFromQuery(r.URL.Query())
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	status, err := s.deps.Query.StatusOf(r.Context(), key.PluginName, key.PluginVersion, key.Env, key.RunnerVersion)
	if err != nil {
		s.writeCellLookupError(w, r, correlationID, key, err)

		return
	}

	response := CellStatusResponse{
		Name:    key.PluginName,
		Version: key.PluginVersion,
		Env:     key.Env,
		Pytest:  key.RunnerVersion,
		Status:  string(status),
	}

	s.writeJSON(w, r, correlationID, http.StatusOK, response)
}

// handleCellOutput returns the raw execution log for one cell as text/plain.
// GET /api/v1/output?name=&version=&env=&pytest=
//
// This is the lookup runner workers use to skip already-tested cells, so a
// missing cell must be a clean 404 rather than an empty 200.
func (s *Server) handleCellOutput(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	key, problem := cellKeyFromQuery(r.URL.Query())
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	output, err := s.deps.Query.OutputOf(r.Context(), key)
	if err != nil {
		s.writeCellLookupError(w, r, correlationID, key, err)

		return
	}

	s.writePlainText(w, correlationID, http.StatusOK, output)
}

// handlePlugins serves the plugin catalog feed.
// GET /api/v1/plugins
func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	response := PluginsResponse{Plugins: []catalog.Plugin{}}
	if s.deps.Catalog != nil {
		response.Plugins = s.deps.Catalog.Plugins()
	}

	s.writeJSON(w, r, correlationID, http.StatusOK, response)
}

// writeCellLookupError maps a cell lookup failure to the right problem
// response: 404 for an untested cell, 503 for storage failures.
func (s *Server) writeCellLookupError(
	w http.ResponseWriter,
	r *http.Request,
	correlationID string,
	key ingestion.CompositeKey,
	err error,
) {
	if errors.Is(err, ingestion.ErrResultNotFound) {
		WriteErrorResponse(w, r, s.logger, NotFound(fmt.Sprintf(
			"No result stored for %s-%s [%s, pytest %s]",
			key.PluginName, key.PluginVersion, key.Env, key.RunnerVersion,
		)))

		return
	}

	s.logger.Error("Cell lookup failed",
		slog.String("correlation_id", correlationID),
		slog.String("plugin", key.PluginName),
		slog.String("error", err.Error()),
	)

	WriteErrorResponse(w, r, s.logger, ServiceUnavailable("Result storage is unavailable"))
}
