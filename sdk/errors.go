package resilios

import (
	"fmt"
	"net/url"

	"github.com/vango-go/resilios/pkg/core"
)

// Error is the canonical gateway error.
type Error = core.Error

const (
	ErrInvalidRequest  = core.ErrInvalidRequest
	ErrAuthentication  = core.ErrAuthentication
	ErrPermission      = core.ErrPermission
	ErrNotFound        = core.ErrNotFound
	ErrConflict        = core.ErrConflict
	ErrPaymentRequired = core.ErrPaymentRequired
	ErrRateLimit       = core.ErrRateLimit
	ErrNotConfigured   = core.ErrNotConfigured
	ErrAPI             = core.ErrAPI
	ErrProvider        = core.ErrProvider
)

// TransportError represents HTTP transport-level failures (DNS, timeouts,
// connection reset, TLS handshake, etc.) while talking to the gateway.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from canonical API errors (*core.Error).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURL(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// redactURL drops user info and the token query parameter.
func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	if q := parsed.Query(); q.Has("token") {
		q.Set("token", "REDACTED")
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}
