package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/telemetry"
)

// errorBody is the uniform error envelope. Code is the error kind,
// Details carries machine-readable hints such as dispute ids.
type errorBody struct {
	Code          string            `json:"code"`
	Message       string            `json:"message"`
	Details       map[string]string `json:"details,omitempty"`
	CorrelationID string            `json:"correlationId"`
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrInvalidArgument:
		return http.StatusBadRequest
	case domain.ErrUnauthenticated:
		return http.StatusUnauthorized
	case domain.ErrPermissionDenied:
		return http.StatusForbidden
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrFailedPrecondition:
		return http.StatusPreconditionFailed
	case domain.ErrConflict, domain.ErrDisputed:
		return http.StatusConflict
	case domain.ErrTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			telemetry.Warnf("httpapi: encode response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	body := errorBody{
		Code:          string(kind),
		Message:       err.Error(),
		CorrelationID: correlationID(r),
	}
	var de *domain.Error
	if errors.As(err, &de) {
		body.Message = de.Message
		body.Details = de.Details
	}
	if kind == domain.ErrInternal {
		telemetry.Errorf("httpapi: %s %s: %v", r.Method, r.URL.Path, err)
		body.Message = "internal error"
	}
	writeJSON(w, statusFor(kind), body)
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Wrap(domain.ErrInvalidArgument, err, "malformed request body")
	}
	return nil
}
