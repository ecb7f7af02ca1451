package vsapi

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrUnavailable marks transport-level failures: the peer is not listening
// (yet, or anymore). Predicates wrapped in polling treat it as "not yet";
// synchronous data-plane calls treat it as a hard failure.
var ErrUnavailable = errors.New("peer unavailable")

// RequestError is a non-200 response from the server. It is never retried by
// the client itself.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http request failed with status %d and no content", e.StatusCode)
	}
	return fmt.Sprintf("http request failed with status %d: %s", e.StatusCode, e.Body)
}

// IsUnavailable reports whether err is a transport-level connection failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRequestFailed reports whether err is a non-200 server response.
func IsRequestFailed(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr)
}
