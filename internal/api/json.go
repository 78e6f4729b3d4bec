package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"cvrpsolver/internal/opt"
	"cvrpsolver/internal/store"
	"cvrpsolver/internal/tsplib"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps domain and store errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	writeProblem(w, errorStatus(err), title, err.Error(), r.URL.Path)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, opt.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, opt.ErrCapacityViolation), errors.Is(err, opt.ErrInvalidInstance),
		errors.Is(err, opt.ErrInfeasibleInstance), errors.Is(err, tsplib.ErrSyntax),
		errors.Is(err, tsplib.ErrUnsupportedType), errors.Is(err, tsplib.ErrMissingSection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errQueueFull):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
