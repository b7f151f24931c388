package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	apierrors "github.com/ZanzyTHEbar/pitwall/pitwall/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *apierrors.APIError) {
	writeJSON(w, err.Status, err.Body())
}

// pathInt parses a positive integer path segment.
func pathInt(r *http.Request, name string) (int, *apierrors.APIError) {
	raw := r.PathValue(name)
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apierrors.NewInvalidRequest(name + " must be a positive integer, got " + strconv.Quote(raw))
	}
	return n, nil
}
