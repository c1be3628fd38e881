package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/storefront/internal/core/domain"
)

// classify maps a service error to an HTTP status, a gRPC code and a message
// safe to show to the client.
func classify(err error) (int, codes.Code, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, codes.InvalidArgument, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, codes.NotFound, err.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, codes.FailedPrecondition, err.Error()
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, codes.AlreadyExists, "duplicate request"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, codes.FailedPrecondition, err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, codes.Aborted, err.Error()
	default:
		return http.StatusInternalServerError, codes.Internal, "internal error"
	}
}
