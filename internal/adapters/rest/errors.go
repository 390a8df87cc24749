package rest

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/dradenvandewind/registration-api/internal/core/activation"
	"github.com/dradenvandewind/registration-api/internal/core/storage"
	"github.com/dradenvandewind/registration-api/internal/core/user"
)

// 安定したエラーコード文字列です。
const (
	codeValidation        = "validation_error"
	codeDuplicateEmail    = "duplicate_email"
	codeUnauthorized      = "unauthorized"
	codeInvalidCode       = "invalid_code"
	codeCodeExpired       = "code_expired"
	codeCodeAlreadyUsed   = "code_already_used"
	codeAlreadyActive     = "already_active"
	codeIssuanceExhausted = "issuance_exhausted"
	codeUnavailable       = "storage_unavailable"
	codeNotFound          = "not_found"
	codeInternal          = "internal_error"
)

var errMissingCredentials = errors.New("basic credentials are required")

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) writeValidation(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusUnprocessableEntity)
	render.JSON(w, r, errorResponse{Error: codeValidation, Message: msg})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	switch status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Basic realm="registration"`)
	case http.StatusInternalServerError:
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}

	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: code, Message: msg})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, errMissingCredentials):
		return http.StatusUnauthorized, codeUnauthorized, err.Error()
	case errors.Is(err, user.ErrInvalidEmail),
		errors.Is(err, user.ErrInvalidPassword),
		errors.Is(err, activation.ErrInvalidUserID):
		return http.StatusUnprocessableEntity, codeValidation, err.Error()
	case errors.Is(err, user.ErrEmailAlreadyExists):
		return http.StatusConflict, codeDuplicateEmail, err.Error()
	case errors.Is(err, user.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized, "invalid credentials"
	case errors.Is(err, activation.ErrInvalidCode):
		return http.StatusBadRequest, codeInvalidCode, err.Error()
	case errors.Is(err, activation.ErrCodeExpired):
		return http.StatusGone, codeCodeExpired, err.Error()
	case errors.Is(err, activation.ErrCodeAlreadyUsed):
		return http.StatusConflict, codeCodeAlreadyUsed, err.Error()
	case errors.Is(err, user.ErrAlreadyActive):
		return http.StatusConflict, codeAlreadyActive, err.Error()
	case errors.Is(err, activation.ErrIssuanceExhausted):
		return http.StatusServiceUnavailable, codeIssuanceExhausted, "could not issue an activation code, try again"
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable, codeUnavailable, "storage temporarily unavailable"
	case errors.Is(err, user.ErrUserNotFound):
		return http.StatusNotFound, codeNotFound, err.Error()
	default:
		return http.StatusInternalServerError, codeInternal, "internal error"
	}
}
