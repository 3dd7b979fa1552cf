package api

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/plugtrack-io/plugtrack/internal/api/middleware"
	"github.com/plugtrack-io/plugtrack/internal/query"
)

type (
	// MatrixCell is one compatibility cell in the matrix response.
	MatrixCell struct {
		Env    string `json:"env"`
		Pytest string `json:"pytest"`
		Status string `json:"status"`
	}

	// MatrixResponse is the body for GET /api/v1/matrix: the full pivot of
	// every stored result, plugin -> version -> cells. Cells are sorted by
	// env then runner version so the rendered table is stable across
	// requests.
	MatrixResponse struct {
		Plugins             map[string]map[string][]MatrixCell `json:"plugins"`
		LatestRunnerVersion string                             `json:"latestRunnerVersion,omitempty"`
	}
)

// handleMatrix serves the full compatibility matrix.
// GET /api/v1/matrix
//
// The matrix is derived from stored results on every request, never stored.
// Absent cells simply do not appear: untested is distinct from a stored
// "fail". The response also carries the highest runner version seen, which
// the presentation side uses to pick its default column.
func (s *Server) handleMatrix(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	matrix, err := s.deps.Query.Matrix(r.Context())
	if err != nil {
		s.logger.Error("Failed to build compatibility matrix",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, ServiceUnavailable("Result storage is unavailable"))

		return
	}

	s.writeJSON(w, r, correlationID, http.StatusOK, shapeMatrix(matrix))
}

// shapeMatrix converts the domain matrix (struct-keyed cell maps) into the
// JSON-serializable response form with deterministically ordered cell lists.
func shapeMatrix(matrix query.Matrix) *MatrixResponse {
	response := &MatrixResponse{
		Plugins:             make(map[string]map[string][]MatrixCell, len(matrix)),
		LatestRunnerVersion: matrix.LatestRunnerVersion(),
	}

	for plugin, versions := range matrix {
		shaped := make(map[string][]MatrixCell, len(versions))

		for version, cells := range versions {
			list := make([]MatrixCell, 0, len(cells))

			for key, status := range cells {
				list = append(list, MatrixCell{
					Env:    key.Env,
					Pytest: key.RunnerVersion,
					Status: string(status),
				})
			}

			sort.Slice(list, func(i, j int) bool {
				if list[i].Env != list[j].Env {
					return list[i].Env < list[j].Env
				}

				return list[i].Pytest < list[j].Pytest
			})

			shaped[version] = list
		}

		response.Plugins[plugin] = shaped
	}

	return response
}
