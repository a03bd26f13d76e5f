package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/genai"
)

var ErrUnavailable = errors.New("ai provider unavailable")

// StatusError is a non 2xx reply from a provider endpoint.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.Code, e.Body)
}

// IsTransient reports whether err is worth one more attempt: timeouts,
// rate limiting and server side failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return transientCode(se.Code)
	}
	var ae genai.APIError
	if errors.As(err, &ae) {
		return transientCode(ae.Code)
	}
	var aep *genai.APIError
	if errors.As(err, &aep) && aep != nil {
		return transientCode(aep.Code)
	}
	return false
}

func transientCode(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
