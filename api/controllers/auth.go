package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brovar/digimarket-backend/api/middleware"
	"github.com/brovar/digimarket-backend/api/responses"
	"github.com/brovar/digimarket-backend/api/validators"
	authsvc "github.com/brovar/digimarket-backend/internal/auth"
	pkgauth "github.com/brovar/digimarket-backend/pkg/auth"
	"github.com/brovar/digimarket-backend/pkg/config"
	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	pkgerrors "github.com/brovar/digimarket-backend/pkg/errors"
	"github.com/brovar/digimarket-backend/pkg/logger"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=buyer seller"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Role:      string(user.Role),
		Status:    string(user.Status),
		CreatedAt: user.CreatedAt,
	}
}

func AuthRegister(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body registerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := enums.ParseUserRole(body.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer or seller"))
			return
		}

		ip := middleware.ClientIP(r)
		user, err := svc.Register(r.Context(), authsvc.RegisterInput{
			Email:    body.Email,
			Password: body.Password,
			Role:     role,
			ActorIP:  &ip,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toUserResponse(user))
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
}

func AuthLogin(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ip := middleware.ClientIP(r)
		result, err := svc.Login(r.Context(), authsvc.LoginInput{
			Email:    body.Email,
			Password: body.Password,
			ActorIP:  &ip,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loginResponse{
			Token:     result.Token,
			ExpiresAt: result.ExpiresAt,
			UserID:    result.UserID,
			Role:      string(result.Role),
		})
	}
}

// AuthLogout revokes the session behind the presented bearer token. An
// expired or malformed token is already logged out as far as the caller
// is concerned.
func AuthLogout(svc authsvc.Service, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			raw = strings.TrimSpace(raw[7:])
		}
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		claims, err := pkgauth.ParseAccessToken(cfg, raw)
		if err != nil || claims.ID == "" {
			responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
			return
		}
		if err := svc.Logout(r.Context(), claims.ID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}
