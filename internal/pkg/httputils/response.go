package httputils

import (
	"encoding/json"
	"log"
	"net/http"
)

type ErrorResponse struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func ResponseError(w http.ResponseWriter, errorCode int, errorMessage string) {
	ResponseJSON(w, errorCode, ErrorResponse{
		Message: errorMessage,
	})
}

// ResponseFailure reports a pipeline failure with its retry hint, so the UI
// can decide whether to offer a retry button.
func ResponseFailure(w http.ResponseWriter, errorCode int, errorMessage string, retryable bool) {
	ResponseJSON(w, errorCode, ErrorResponse{
		Message:   errorMessage,
		Retryable: retryable,
	})
}

func ResponseJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
