package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ItalyPaleAle/rss-digest/models"
)

// Internal function used to return a HTTP error (formatted as JSON) in the response
func responseError(w http.ResponseWriter, errMsg string, statusCode int) {
	responseJSON(w, struct {
		Error string `json:"error"`
	}{
		Error: errMsg,
	}, statusCode)
}

// Writes the value as JSON in the response
func responseJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	j := json.NewEncoder(w)
	_ = j.Encode(v)
}

// Maps an error to the response
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		// Validation errors are returned as a map of field names to problems
		responseJSON(w, verr.Fields, http.StatusBadRequest)
	case errors.Is(err, models.ErrConflict):
		responseError(w, "Already exists", http.StatusBadRequest)
	case errors.Is(err, models.ErrAuth):
		responseError(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, models.ErrForbidden):
		responseError(w, "You do not have permission to perform this action", http.StatusForbidden)
	case errors.Is(err, models.ErrNotFound):
		responseError(w, "Not found", http.StatusNotFound)
	default:
		s.requestLog(r).Errorf("Internal error: %s", err)
		responseError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Parses the JSON body of the request into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return models.NewValidationError("body", "request body is empty")
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return models.NewValidationError("body", fmt.Sprintf("request body is larger than %d bytes", maxBodySize))
	}
	if err != nil {
		return models.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}
