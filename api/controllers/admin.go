package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/brovar/digimarket-backend/api/middleware"
	"github.com/brovar/digimarket-backend/api/responses"
	"github.com/brovar/digimarket-backend/api/validators"
	"github.com/brovar/digimarket-backend/internal/admin"
	"github.com/brovar/digimarket-backend/internal/orders"
	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	pkgerrors "github.com/brovar/digimarket-backend/pkg/errors"
	"github.com/brovar/digimarket-backend/pkg/logger"
	"github.com/brovar/digimarket-backend/pkg/pagination"
	"github.com/brovar/digimarket-backend/pkg/types"
)

func AdminOrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := parseOrderListInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.ListAdminOrders(r.Context(), *input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOrderPage(w, rows, next)
	}
}

func AdminOrderCancel(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ip := middleware.ClientIP(r)
		detail, err := svc.CancelOrder(r.Context(), orders.AdminCancelInput{
			OrderID:     orderID,
			ActorUserID: middleware.UserIDFromContext(r.Context()),
			ActorRole:   middleware.RoleFromContext(r.Context()),
			ActorIP:     &ip,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(detail))
	}
}

func AdminUserBlock(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return adminUserAction(svc.BlockUser, logg)
}

func AdminUserUnblock(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return adminUserAction(svc.UnblockUser, logg)
}

func adminUserAction(
	op func(ctx context.Context, input admin.ActionInput) (*models.User, error),
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(chi.URLParam(r, "userId"), "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ip := middleware.ClientIP(r)
		user, err := op(r.Context(), admin.ActionInput{
			UserID:      userID,
			ActorUserID: middleware.UserIDFromContext(r.Context()),
			ActorRole:   middleware.RoleFromContext(r.Context()),
			ActorIP:     &ip,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toUserResponse(user))
	}
}

func AdminUserList(svc admin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := admin.ListInput{
			ActorRole: middleware.RoleFromContext(r.Context()),
			Limit:     limit,
			Cursor:    r.URL.Query().Get("cursor"),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
			role, err := enums.ParseUserRole(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown role"))
				return
			}
			input.Role = &role
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseUserStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown status"))
				return
			}
			input.Status = &status
		}

		rows, next, err := svc.ListUsers(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]userResponse, 0, len(rows))
		for i := range rows {
			items = append(items, toUserResponse(&rows[i]))
		}
		responses.WriteSuccess(w, types.Page{Items: items, NextCursor: next})
	}
}
