// Package middleware provides HTTP middleware components for the plugtrack API.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// writeRFC7807Error writes an RFC 7807 compliant error response without importing the api package.
func writeRFC7807Error(
	w http.ResponseWriter,
	r *http.Request,
	statusCode int,
	title,
	detail,
	correlationID string,
) error {
	problem := map[string]interface{}{
		"type":          fmt.Sprintf("https://plugtrack.io/problems/%d", statusCode),
		"title":         title,
		"status":        statusCode,
		"detail":        detail,
		"instance":      r.URL.Path,
		"correlationId": correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(problem)
}
