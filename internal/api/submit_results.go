package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/plugtrack-io/plugtrack/internal/api/middleware"
	"github.com/plugtrack-io/plugtrack/internal/ingestion"
)

// SubmitResponse is the HTTP response body for POST /api/v1/results.
// It embeds the batch report and adds transport-level observability fields.
type SubmitResponse struct {
	ingestion.SubmitReport

	CorrelationID string `json:"correlationId"`
	Timestamp     string `json:"timestamp"`
}

// handleSubmitResults handles result batch submission.
// POST /api/v1/results - Ingest a single result or a batch
//
// Request validation (returns 4xx):
//   - 405 Method Not Allowed: Only POST is allowed (handled by route pattern)
//   - 415 Unsupported Media Type: Content-Type must be application/json
//   - 413 Payload Too Large: Request body exceeds MaxRequestSize
//   - 400 Bad Request: Empty body or invalid JSON
//   - 422 Unprocessable Entity: Every submission in the batch failed validation
//
// Success responses:
//   - 200 OK: All submissions stored or replaced (UPSERT behavior)
//   - 207 Multi-Status: Partial success (some stored, some rejected)
//
// Storage failures abort the batch and return 503 so the submitter can retry;
// resubmitting is safe because ingestion is idempotent per cell.
func (s *Server) handleSubmitResults(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	correlationID := middleware.GetCorrelationID(r.Context())

	// Content-Type validation
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	batch, problem := s.parseSubmissions(r)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	report, err := s.deps.Ingestion.Submit(r.Context(), batch)
	if err != nil {
		s.logger.Error("Failed to store submitted results",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		if errors.Is(err, ingestion.ErrStorageUnavailable) {
			WriteErrorResponse(w, r, s.logger, ServiceUnavailable("Result storage is unavailable, retry the batch"))

			return
		}

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to store submitted results"))

		return
	}

	response := &SubmitResponse{
		SubmitReport:  *report,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	statusCode := determineSubmitStatusCode(report)
	s.writeJSON(w, r, correlationID, statusCode, response)

	s.logger.Info("Result batch processed",
		slog.String("correlation_id", correlationID),
		slog.String("batch_id", report.BatchID),
		slog.Int("total", len(batch)),
		slog.Int("accepted", report.Accepted),
		slog.Int("rejected", report.Rejected),
		slog.Int("status_code", statusCode),
		slog.Duration("duration", time.Since(startTime)),
	)
}

// parseSubmissions parses and validates the HTTP request body for results.
// Returns the parsed batch or a ProblemDetail if validation fails.
//
// Validates:
//   - Request size (fail fast for known oversized requests)
//   - Empty body check (better UX than a JSON decode error)
//   - JSON parsing: both a bare object and an array are accepted
func (s *Server) parseSubmissions(r *http.Request) ([]ingestion.Submission, *ProblemDetail) {
	// Allow unknown sizes (-1) or 0 (empty, caught later)
	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		return nil, PayloadTooLarge(
			fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize),
		)
	}

	if r.ContentLength == 0 {
		return nil, BadRequest("Request body cannot be empty")
	}

	// Read with a size limit as the ultimate protection
	data, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err != nil {
		return nil, BadRequest("Failed to read request body: " + err.Error())
	}

	batch, err := ingestion.DecodeSubmissions(data)
	if err != nil {
		if errors.Is(err, ingestion.ErrEmptyPayload) {
			return nil, BadRequest("Request body cannot be empty")
		}

		return nil, BadRequest("Invalid JSON: " + err.Error())
	}

	if len(batch) == 0 {
		return nil, BadRequest("Result array cannot be empty")
	}

	return batch, nil
}

// determineSubmitStatusCode determines the HTTP status code based on the batch report.
//
// Status code logic:
//   - 200 OK: All submissions accepted (stored or replaced)
//   - 207 Multi-Status: Partial success (some accepted, some rejected)
//   - 422 Unprocessable Entity: All submissions failed validation
func determineSubmitStatusCode(report *ingestion.SubmitReport) int {
	if report.Rejected == 0 {
		return http.StatusOK
	} else if report.Accepted > 0 {
		return http.StatusMultiStatus
	}

	return http.StatusUnprocessableEntity
}
