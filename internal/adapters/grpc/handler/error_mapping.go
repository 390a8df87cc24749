package handler

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dradenvandewind/registration-api/internal/core/activation"
	"github.com/dradenvandewind/registration-api/internal/core/storage"
	"github.com/dradenvandewind/registration-api/internal/core/user"
)

const errorDomain = "registration-api"

// エラー種別ごとの安定した理由コードです。同じ gRPC コードを共有する種別を区別します。
const (
	reasonValidation        = "VALIDATION_ERROR"
	reasonDuplicateEmail    = "DUPLICATE_EMAIL"
	reasonUnauthorized      = "UNAUTHORIZED"
	reasonInvalidCode       = "INVALID_CODE"
	reasonCodeExpired       = "CODE_EXPIRED"
	reasonCodeAlreadyUsed   = "CODE_ALREADY_USED"
	reasonAlreadyActive     = "ALREADY_ACTIVE"
	reasonIssuanceExhausted = "ISSUANCE_EXHAUSTED"
	reasonUnavailable       = "STORAGE_UNAVAILABLE"
	reasonNotFound          = "NOT_FOUND"
	reasonInternal          = "INTERNAL"
)

func toStatusError(err error) error {
	if err == nil {
		return nil
	}

	code, reason, msg := classify(err)
	st := status.New(code, msg)
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

func classify(err error) (codes.Code, string, string) {
	switch {
	case errors.Is(err, user.ErrInvalidEmail),
		errors.Is(err, user.ErrInvalidPassword),
		errors.Is(err, activation.ErrInvalidUserID):
		return codes.InvalidArgument, reasonValidation, err.Error()
	case errors.Is(err, user.ErrEmailAlreadyExists):
		return codes.AlreadyExists, reasonDuplicateEmail, err.Error()
	case errors.Is(err, user.ErrUnauthorized):
		return codes.Unauthenticated, reasonUnauthorized, err.Error()
	case errors.Is(err, activation.ErrInvalidCode):
		return codes.InvalidArgument, reasonInvalidCode, err.Error()
	case errors.Is(err, activation.ErrCodeExpired):
		return codes.FailedPrecondition, reasonCodeExpired, err.Error()
	case errors.Is(err, activation.ErrCodeAlreadyUsed):
		return codes.FailedPrecondition, reasonCodeAlreadyUsed, err.Error()
	case errors.Is(err, user.ErrAlreadyActive):
		return codes.FailedPrecondition, reasonAlreadyActive, err.Error()
	case errors.Is(err, activation.ErrIssuanceExhausted):
		return codes.Aborted, reasonIssuanceExhausted, err.Error()
	case errors.Is(err, storage.ErrUnavailable):
		return codes.Unavailable, reasonUnavailable, "storage temporarily unavailable"
	case errors.Is(err, user.ErrUserNotFound):
		return codes.NotFound, reasonNotFound, err.Error()
	default:
		// 内部エラーの詳細はクライアントに返しません。
		return codes.Internal, reasonInternal, "internal error"
	}
}
