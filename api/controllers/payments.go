package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/brovar/digimarket-backend/api/middleware"
	"github.com/brovar/digimarket-backend/api/responses"
	"github.com/brovar/digimarket-backend/api/validators"
	"github.com/brovar/digimarket-backend/internal/settlement"
	"github.com/brovar/digimarket-backend/pkg/enums"
	pkgerrors "github.com/brovar/digimarket-backend/pkg/errors"
	"github.com/brovar/digimarket-backend/pkg/logger"
)

type paymentCallbackRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,uuid4"`
	Status        string `json:"status" validate:"required,oneof=success fail cancelled"`
}

type paymentCallbackResponse struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderStatus string    `json:"order_status"`
}

// PaymentCallback receives the gateway's settlement report. The endpoint
// is unauthenticated; the transaction id acts as the shared secret.
func PaymentCallback(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body paymentCallbackRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transactionID, err := validators.ParseUUIDParam(body.TransactionID, "transaction_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseTransactionStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown transaction status"))
			return
		}

		ip := middleware.ClientIP(r)
		result, err := svc.ProcessCallback(r.Context(), settlement.CallbackInput{
			TransactionID: transactionID,
			Status:        status,
			SourceIP:      &ip,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, paymentCallbackResponse{
			OrderID:     result.OrderID,
			OrderStatus: string(result.OrderStatus),
		})
	}
}
