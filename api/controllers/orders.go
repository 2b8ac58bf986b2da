package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brovar/digimarket-backend/api/middleware"
	"github.com/brovar/digimarket-backend/api/responses"
	"github.com/brovar/digimarket-backend/api/validators"
	"github.com/brovar/digimarket-backend/internal/orders"
	"github.com/brovar/digimarket-backend/pkg/enums"
	pkgerrors "github.com/brovar/digimarket-backend/pkg/errors"
	"github.com/brovar/digimarket-backend/pkg/logger"
	"github.com/brovar/digimarket-backend/pkg/pagination"
	"github.com/brovar/digimarket-backend/pkg/types"
)

type orderLineRequest struct {
	OfferID  string `json:"offer_id" validate:"required,uuid4"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type orderCreateRequest struct {
	Items []orderLineRequest `json:"items" validate:"required,min=1,dive"`
}

type orderItemResponse struct {
	OfferID         uuid.UUID `json:"offer_id"`
	OfferTitle      string    `json:"offer_title"`
	Quantity        int       `json:"quantity"`
	PriceAtPurchase string    `json:"price_at_purchase"`
}

type orderResponse struct {
	ID        uuid.UUID           `json:"id"`
	BuyerID   uuid.UUID           `json:"buyer_id"`
	Status    string              `json:"status"`
	Total     string              `json:"total"`
	Items     []orderItemResponse `json:"items"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func toOrderResponse(detail *orders.Detail) orderResponse {
	items := make([]orderItemResponse, 0, len(detail.Order.Items))
	for _, item := range detail.Order.Items {
		items = append(items, orderItemResponse{
			OfferID:         item.OfferID,
			OfferTitle:      item.OfferTitle,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase.StringFixed(2),
		})
	}
	return orderResponse{
		ID:        detail.Order.ID,
		BuyerID:   detail.Order.BuyerID,
		Status:    string(detail.Order.Status),
		Total:     detail.Total.StringFixed(2),
		Items:     items,
		CreatedAt: detail.Order.CreatedAt,
		UpdatedAt: detail.Order.UpdatedAt,
	}
}

type orderCreatedResponse struct {
	OrderID    uuid.UUID `json:"order_id"`
	Status     string    `json:"status"`
	Total      string    `json:"total"`
	PaymentURL string    `json:"payment_url"`
	CreatedAt  time.Time `json:"created_at"`
}

func OrderCreate(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body orderCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]orders.LineInput, 0, len(body.Items))
		for _, item := range body.Items {
			offerID, err := validators.ParseUUIDParam(item.OfferID, "offer_id")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			lines = append(lines, orders.LineInput{OfferID: offerID, Quantity: item.Quantity})
		}

		ip := middleware.ClientIP(r)
		result, err := svc.CreateOrder(r.Context(), orders.CreateOrderInput{
			BuyerID:   middleware.UserIDFromContext(r.Context()),
			ActorRole: middleware.RoleFromContext(r.Context()),
			Items:     lines,
			ActorIP:   &ip,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, orderCreatedResponse{
			OrderID:    result.OrderID,
			Status:     string(result.Status),
			Total:      result.Total.StringFixed(2),
			PaymentURL: result.PaymentURL,
			CreatedAt:  result.CreatedAt,
		})
	}
}

func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.GetOrderDetails(r.Context(), orders.DetailInput{
			OrderID:     orderID,
			ActorUserID: middleware.UserIDFromContext(r.Context()),
			ActorRole:   middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(detail))
	}
}

func OrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := parseOrderListInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.ListBuyerOrders(r.Context(), middleware.UserIDFromContext(r.Context()), *input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOrderPage(w, rows, next)
	}
}

func parseOrderListInput(r *http.Request) (*orders.ListInput, error) {
	limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
	if err != nil {
		return nil, err
	}
	input := orders.ListInput{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
		}
		input.Status = &status
	}
	return &input, nil
}

func writeOrderPage(w http.ResponseWriter, rows []orders.Detail, next string) {
	items := make([]orderResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toOrderResponse(&rows[i]))
	}
	responses.WriteSuccess(w, types.Page{Items: items, NextCursor: next})
}
