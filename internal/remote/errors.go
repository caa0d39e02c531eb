package remote

import (
	"fmt"
	"net/http"
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote: http %d", e.Code)
	}
	return fmt.Sprintf("remote: http %d: %s", e.Code, e.Body)
}

// Permanent reports whether resending the same request cannot succeed.
// Only rejections of the request body qualify. Auth failures, missing
// tables and server errors may clear up once the backend or the key is
// fixed, so they stay within the retry budget.
func (e *StatusError) Permanent() bool {
	switch e.Code {
	case http.StatusBadRequest,
		http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType,
		http.StatusUnprocessableEntity:
		return true
	}
	return false
}
