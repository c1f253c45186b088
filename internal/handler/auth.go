package handler

import (
	"net/http"

	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/ctxkeys"
	"github.com/templui/habits/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SignUp handles POST /auth/v1/signup. Accounts are confirmed immediately,
// so the response is a session.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	session, err := h.authService.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, r, service.AuthError(err))
		return
	}

	WriteJSON(w, http.StatusOK, session)
}

// Token handles POST /auth/v1/token for the password and refresh_token
// grants.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	grantType := r.URL.Query().Get("grant_type")

	switch grantType {
	case "password":
		var req credentialsRequest
		if err := decodeBody(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		if req.Email == "" || req.Password == "" {
			WriteError(w, r, backend.NewError(http.StatusBadRequest, backend.CodeValidation, "email and password are required"))
			return
		}

		session, err := h.authService.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			WriteError(w, r, service.AuthError(err))
			return
		}
		WriteJSON(w, http.StatusOK, session)

	case "refresh_token":
		var req refreshRequest
		if err := decodeBody(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		if req.RefreshToken == "" {
			WriteError(w, r, backend.NewError(http.StatusBadRequest, backend.CodeValidation, "refresh_token is required"))
			return
		}

		session, err := h.authService.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			WriteError(w, r, service.AuthError(err))
			return
		}
		WriteJSON(w, http.StatusOK, session)

	default:
		WriteError(w, r, backend.NewError(http.StatusBadRequest, "unsupported_grant_type",
			"unsupported grant_type "+grantType))
	}
}

// Logout handles POST /auth/v1/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.authService.SignOut(r.Context(), ctxkeys.UserID(r.Context()))
	if err != nil {
		WriteError(w, r, service.AuthError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// User handles GET /auth/v1/user.
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.User(r.Context(), ctxkeys.UserID(r.Context()))
	if err != nil {
		WriteError(w, r, backend.NewError(http.StatusNotFound, "user_not_found", "User not found"))
		return
	}
	WriteJSON(w, http.StatusOK, user)
}
