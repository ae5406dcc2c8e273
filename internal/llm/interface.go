package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/comigor/chatwidget-go/internal/history"
)

// FallbackReply is returned in place of a reply when the vendor payload has no
// reply text.
const FallbackReply = "No response available."

// Client sends conversation turns to a hosted model and returns its reply. It is
// the only thing the conversation store needs from a vendor and is easy to mock
// in tests.
type Client interface {
	Generate(ctx context.Context, messages []history.Message) (string, error)
}

var (
	// ErrNetwork wraps transport failures (DNS, connection, timeouts).
	ErrNetwork = errors.New("network error")
	// ErrMalformedResponse means the vendor answered 2xx with a body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrMissingAPIKey is returned before any request is made when no key is configured.
	ErrMissingAPIKey = errors.New("missing api key")
)

// HTTPStatusError reports a non-success HTTP status from the vendor.
type HTTPStatusError struct {
	Code int
	Body string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}
