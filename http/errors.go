package http

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/remla25-team6/model-service/ml"
)

// ErrorKind decides the status code of an APIError.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindDependency
	KindInternal
)

// APIError carries a fixed client-facing message; Err is only logged.
type APIError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

func (k ErrorKind) status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

func validationError(message string) *APIError {
	return &APIError{Kind: KindValidation, Message: message}
}

// classify maps any error from the prediction path onto an APIError.
func classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, ml.ErrNoPipeline):
		return &APIError{Kind: KindDependency, Message: "model unavailable", Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &APIError{Kind: KindDependency, Message: "request canceled", Err: err}
	default:
		return &APIError{Kind: KindInternal, Message: "prediction failed", Err: err}
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := classify(err)
	fields := []zap.Field{
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.String("kind", apiErr.Kind.String()),
		zap.Error(err),
	}
	if apiErr.Kind == KindValidation {
		h.logger.Debug("rejected request", fields...)
	} else {
		h.logger.Error("request failed", fields...)
	}
	respondJSON(w, apiErr.Kind.status(), map[string]string{"error": apiErr.Message})
}
