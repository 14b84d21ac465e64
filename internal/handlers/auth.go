package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gioia-jewelry/api/internal/platform/httpx"
	"github.com/gioia-jewelry/api/internal/services"
)

const maxAuthBodySize = 4 * 1024

// AuthHandlers exposes the passwordless login endpoints.
type AuthHandlers struct {
	login   services.LoginService
	limiter rateLimiter
}

// AuthOption customises AuthHandlers behaviour.
type AuthOption func(*AuthHandlers)

// WithAuthRateLimit throttles OTP requests per client IP.
func WithAuthRateLimit(limit int, window time.Duration) AuthOption {
	return func(h *AuthHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, time.Now)
	}
}

// NewAuthHandlers constructs handlers over the login service.
func NewAuthHandlers(login services.LoginService, opts ...AuthOption) *AuthHandlers {
	h := &AuthHandlers{login: login}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /auth endpoints onto the provided router.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/otp", h.requestOTP)
	r.Post("/otp/verify", h.verifyOTP)
}

func (h *AuthHandlers) requestOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.login == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "login service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many code requests; try again later", http.StatusTooManyRequests))
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSONBody(r, maxAuthBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	if err := h.login.RequestOTP(ctx, req.Email); err != nil {
		h.writeLoginError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusAccepted, map[string]any{"status": "sent"})
}

func (h *AuthHandlers) verifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.login == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_service_unavailable", "login service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSONBody(r, maxAuthBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code is required", http.StatusBadRequest))
		return
	}

	session, err := h.login.VerifyOTP(ctx, req.Email, req.Code)
	if err != nil {
		h.writeLoginError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, sessionResponse{
		Token:     session.Token,
		ExpiresAt: formatTime(session.ExpiresAt),
		User: sessionUserPayload{
			ID:    session.User.ID,
			Email: session.User.Email,
			Role:  session.User.Role,
		},
	})
}

func (h *AuthHandlers) writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrLoginInvalidEmail):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_email", "a valid email address is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrLoginCodeExpired):
		httpx.WriteError(ctx, w, httpx.NewError("code_expired", "the code has expired; request a new one", http.StatusUnauthorized))
	case errors.Is(err, services.ErrLoginInvalidCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_code", "the code is not valid", http.StatusUnauthorized))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("auth_error", "login failed", http.StatusInternalServerError))
	}
}

type sessionResponse struct {
	Token     string             `json:"token"`
	ExpiresAt string             `json:"expires_at"`
	User      sessionUserPayload `json:"user"`
}

type sessionUserPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
