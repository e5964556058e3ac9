package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
)

// NewID returns a fresh video/job identifier.
func NewID() string {
	return uuid.NewString()
}

// WriteJSON writes v as a JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "write json error: %v", err)
	}
}

// WriteError writes an APIError in the standard wire shape.
func WriteError(w http.ResponseWriter, status int, apiErr *APIError) {
	WriteJSON(w, status, apiErr)
}
