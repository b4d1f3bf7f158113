package dbclient

import "fmt"

// APIError is a structured error returned by the metadata API.
// PostgREST error bodies carry a message plus optional detail and hint.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Detail     string `json:"details,omitempty"`
	Hint       string `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("metadata API error (status %d): %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("metadata API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsServerError reports whether the error is a 5xx. These are the transient
// failures the next scan or dequeue cycle reconciles.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}
