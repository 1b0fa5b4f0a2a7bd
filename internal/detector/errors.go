package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// Sentinel errors for detection service failures.
var (
	ErrServiceUnreachable = errors.New("detection service unreachable")
	ErrServiceTimeout     = errors.New("detection service timeout")
	ErrServiceRejected    = errors.New("detection service rejected request")
	ErrInvalidResponse    = errors.New("invalid detection service response")
)

// maxErrorBody caps how much of a non-2xx body is read for the message.
const maxErrorBody = 4 << 10

// ServiceError is a non-2xx answer from the detection service.
// It matches ErrServiceRejected with errors.Is.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("detection service returned %d: %s", e.StatusCode, e.Message)
}

func (e *ServiceError) Is(target error) bool {
	return target == ErrServiceRejected
}

// Message returns the human-readable text carried by err, suitable for
// showing to a user: the service's own message for a ServiceError,
// otherwise a short description of the failure class.
func Message(err error) string {
	var svcErr *ServiceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &svcErr):
		return svcErr.Message
	case errors.Is(err, ErrServiceTimeout):
		return "Detection service timed out"
	case errors.Is(err, ErrServiceUnreachable):
		return "Detection service unreachable"
	case errors.Is(err, ErrInvalidResponse):
		return "Detection service sent an invalid response"
	default:
		return err.Error()
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrServiceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrServiceTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
}

// newServiceError builds a ServiceError from a non-2xx response, pulling the
// message out of the usual "detail", "error" or "message" JSON fields.
func newServiceError(resp *http.Response) *ServiceError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &ServiceError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(resp.StatusCode, body),
	}
}

func errorMessage(status int, body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   json.RawMessage `json:"error"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, raw := range []json.RawMessage{payload.Detail, payload.Error, payload.Message} {
			var s string
			if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "<") {
		return text
	}
	return http.StatusText(status)
}
