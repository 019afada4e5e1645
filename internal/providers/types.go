package providers

import (
	"errors"
	"fmt"
	"net/http"
)

// ChatMessage is one turn of a conversation sent to the generation backend.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ErrNoModels is returned when generation is attempted with an empty model
// list. This is a configuration error, not a backend failure.
var ErrNoModels = errors.New("no models configured")

// HTTPError is a non-2xx response from the generation backend.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Body)
}

// IsRateLimited reports whether err is a backend rate-limit response.
// Rate limits are distinguished for logging only — the fallback scan does
// not back off or retry a rate-limited model.
func IsRateLimited(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusTooManyRequests
}
