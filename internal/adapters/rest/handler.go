package rest

import (
	"context"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/dradenvandewind/registration-api/internal/core/activation"
	"github.com/dradenvandewind/registration-api/internal/core/registration"
)

// MinPasswordLength は登録時に受け付けるパスワードの最小文字数です。
const MinPasswordLength = 8

const healthTimeout = 2 * time.Second

// Handler は HTTP API のハンドラー群です。
type Handler struct {
	registrations registration.UseCase
	activations   activation.UseCase
	health        Pinger
	logger        *zap.Logger
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type activateRequest struct {
	Code string `json:"code"`
}

type registrationResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	CodeExpiresAt time.Time `json:"code_expires_at"`
	Delivered     bool      `json:"delivered"`
}

type activationResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type statusResponse struct {
	UserID        string     `json:"user_id"`
	Email         string     `json:"email"`
	IsActive      bool       `json:"is_active"`
	CodeState     string     `json:"code_state"`
	CodeExpiresAt *time.Time `json:"code_expires_at,omitempty"`
}

// HandleRegister は POST /v1/registration を処理します。
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeValidation(w, r, "request body must be a JSON object with email and password")
		return
	}
	if req.Email == "" {
		h.writeValidation(w, r, "email is required")
		return
	}
	if utf8.RuneCountInString(req.Password) < MinPasswordLength {
		h.writeValidation(w, r, "password must be at least 8 characters")
		return
	}

	res, err := h.registrations.Register(r.Context(), registration.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toRegistrationResponse(res))
}

// HandleActivate は POST /v1/activation を処理します。資格情報は Basic 認証で受け取ります。
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		h.writeError(w, r, errMissingCredentials)
		return
	}

	var req activateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeValidation(w, r, "request body must be a JSON object with code")
		return
	}
	if !activation.ValidCodeFormat(req.Code) {
		h.writeValidation(w, r, "code must be exactly 4 digits")
		return
	}

	activated, err := h.activations.ActivateAccount(r.Context(), activation.ActivateAccountInput{
		Email:    email,
		Password: password,
		Code:     req.Code,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, activationResponse{Message: "account activated", UserID: activated.ID})
}

// HandleResend は POST /v1/activation/resend を処理します。
func (h *Handler) HandleResend(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		h.writeError(w, r, errMissingCredentials)
		return
	}

	res, err := h.registrations.ResendActivation(r.Context(), registration.ResendInput{
		Email:    email,
		Password: password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toRegistrationResponse(res))
}

// HandleStatus は GET /v1/activation/status を処理します。
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		h.writeError(w, r, errMissingCredentials)
		return
	}

	st, err := h.activations.Status(r.Context(), activation.StatusInput{
		Email:    email,
		Password: password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := statusResponse{
		UserID:    st.User.ID,
		Email:     st.User.Email,
		IsActive:  st.User.IsActive,
		CodeState: string(st.State),
	}
	if st.LatestCode != nil {
		expires := st.LatestCode.ExpiresAt.UTC()
		resp.CodeExpiresAt = &expires
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// HandleHealth は GET /health を処理します。
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "unavailable"})
			return
		}
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func toRegistrationResponse(res *registration.Result) registrationResponse {
	return registrationResponse{
		ID:            res.User.ID,
		Email:         res.User.Email,
		IsActive:      res.User.IsActive,
		CreatedAt:     res.User.CreatedAt.UTC(),
		CodeExpiresAt: res.CodeExpiresAt.UTC(),
		Delivered:     res.Delivered,
	}
}
