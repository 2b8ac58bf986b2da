package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brovar/digimarket-backend/api/middleware"
	"github.com/brovar/digimarket-backend/api/responses"
	"github.com/brovar/digimarket-backend/api/validators"
	"github.com/brovar/digimarket-backend/internal/orders"
	"github.com/brovar/digimarket-backend/pkg/logger"
)

func SalesList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := parseOrderListInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.ListSellerSales(r.Context(), middleware.UserIDFromContext(r.Context()), *input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOrderPage(w, rows, next)
	}
}

func SalesShip(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return salesTransition(svc.ShipOrder, logg)
}

func SalesDeliver(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return salesTransition(svc.DeliverOrder, logg)
}

func salesTransition(
	op func(ctx context.Context, input orders.FulfillmentInput) (*orders.Detail, error),
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ip := middleware.ClientIP(r)
		detail, err := op(r.Context(), orders.FulfillmentInput{
			OrderID:  orderID,
			SellerID: middleware.UserIDFromContext(r.Context()),
			ActorIP:  &ip,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(detail))
	}
}
