package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
)

// statusClientClosedRequest follows the nginx convention for callers that
// went away before the response was ready.
const statusClientClosedRequest = 499

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNoResults):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorKind(err error) string {
	switch mapErrorToHTTPStatus(err) {
	case http.StatusBadRequest:
		return "invalid_input"
	case http.StatusNotFound:
		return "no_results"
	case http.StatusServiceUnavailable:
		return "temporary"
	case http.StatusGatewayTimeout:
		return "deadline_exceeded"
	case statusClientClosedRequest:
		return "canceled"
	default:
		return "internal"
	}
}
