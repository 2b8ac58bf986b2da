package controllers

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brovar/digimarket-backend/api/middleware"
	"github.com/brovar/digimarket-backend/api/responses"
	"github.com/brovar/digimarket-backend/api/validators"
	"github.com/brovar/digimarket-backend/internal/offers"
	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	pkgerrors "github.com/brovar/digimarket-backend/pkg/errors"
	"github.com/brovar/digimarket-backend/pkg/logger"
	"github.com/brovar/digimarket-backend/pkg/pagination"
	"github.com/brovar/digimarket-backend/pkg/types"
)

const maxOfferUploadBytes = 10 << 20

type offerCreateRequest struct {
	CategoryID  string   `json:"category_id" validate:"required,uuid4"`
	Title       string   `json:"title" validate:"required,min=1,max=200"`
	Description *string  `json:"description,omitempty"`
	Price       string   `json:"price" validate:"required"`
	Quantity    int      `json:"quantity" validate:"gte=0"`
	Tags        []string `json:"tags,omitempty"`
}

type offerResponse struct {
	ID            uuid.UUID `json:"id"`
	SellerID      uuid.UUID `json:"seller_id"`
	CategoryID    uuid.UUID `json:"category_id"`
	Title         string    `json:"title"`
	Description   *string   `json:"description,omitempty"`
	Price         string    `json:"price"`
	Quantity      int       `json:"quantity"`
	Status        string    `json:"status"`
	ImageFilename *string   `json:"image_filename,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toOfferResponse(offer *models.Offer) offerResponse {
	return offerResponse{
		ID:            offer.ID,
		SellerID:      offer.SellerID,
		CategoryID:    offer.CategoryID,
		Title:         offer.Title,
		Description:   offer.Description,
		Price:         offer.Price.StringFixed(2),
		Quantity:      offer.Quantity,
		Status:        string(offer.Status),
		ImageFilename: offer.ImageFilename,
		Tags:          offer.Tags,
		CreatedAt:     offer.CreatedAt,
		UpdatedAt:     offer.UpdatedAt,
	}
}

// OfferCreate accepts either a JSON body or multipart/form-data with an
// optional image part.
func OfferCreate(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := decodeOfferCreate(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.SellerID = middleware.UserIDFromContext(r.Context())
		ip := middleware.ClientIP(r)
		input.ActorIP = &ip

		offer, err := svc.Create(r.Context(), *input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOfferResponse(offer))
	}
}

func decodeOfferCreate(r *http.Request) (*offers.CreateInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return decodeOfferCreateMultipart(r)
	}

	var body offerCreateRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		return nil, err
	}
	return offerCreateFromFields(body.CategoryID, body.Title, body.Description, body.Price, body.Quantity, body.Tags, "", nil)
}

func decodeOfferCreateMultipart(r *http.Request) (*offers.CreateInput, error) {
	if err := r.ParseMultipartForm(maxOfferUploadBytes); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}

	quantity := 0
	if raw := strings.TrimSpace(r.FormValue("quantity")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be numeric")
		}
		quantity = parsed
	}

	var description *string
	if raw := r.FormValue("description"); raw != "" {
		description = &raw
	}
	var tags []string
	if raw := strings.TrimSpace(r.FormValue("tags")); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	var image io.Reader
	imageName := ""
	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()
		image = file
		imageName = header.Filename
	}

	return offerCreateFromFields(
		r.FormValue("category_id"),
		r.FormValue("title"),
		description,
		r.FormValue("price"),
		quantity,
		tags,
		imageName,
		image,
	)
}

func offerCreateFromFields(categoryID, title string, description *string, price string, quantity int, tags []string, imageName string, image io.Reader) (*offers.CreateInput, error) {
	catID, err := validators.ParseUUIDParam(categoryID, "category_id")
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be a decimal number")
	}
	return &offers.CreateInput{
		CategoryID:  catID,
		Title:       title,
		Description: description,
		Price:       amount,
		Quantity:    quantity,
		Tags:        tags,
		ImageName:   imageName,
		Image:       image,
	}, nil
}

func OfferGet(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offerID, err := validators.ParseUUIDParam(chi.URLParam(r, "offerId"), "offerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.Get(r.Context(), offers.GetInput{
			OfferID:     offerID,
			ActorUserID: middleware.UserIDFromContext(r.Context()),
			ActorRole:   middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOfferResponse(offer))
	}
}

func OfferList(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := offers.ListInput{
			ActorUserID: middleware.UserIDFromContext(r.Context()),
			ActorRole:   middleware.RoleFromContext(r.Context()),
			Limit:       limit,
			Cursor:      r.URL.Query().Get("cursor"),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOfferStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown offer status"))
				return
			}
			input.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("seller_id")); raw != "" {
			sellerID, err := validators.ParseUUIDParam(raw, "seller_id")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.SellerID = &sellerID
		}

		rows, next, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]offerResponse, 0, len(rows))
		for i := range rows {
			items = append(items, toOfferResponse(&rows[i]))
		}
		responses.WriteSuccess(w, types.Page{Items: items, NextCursor: next})
	}
}

func OfferActivate(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return offerTransition(svc.Activate, logg)
}

func OfferDeactivate(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return offerTransition(svc.Deactivate, logg)
}

func OfferMarkSold(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return offerTransition(svc.MarkSold, logg)
}

func AdminOfferModerate(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return offerTransition(svc.Moderate, logg)
}

func AdminOfferUnmoderate(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return offerTransition(svc.Unmoderate, logg)
}

func offerTransition(
	op func(ctx context.Context, input offers.TransitionInput) (*models.Offer, error),
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offerID, err := validators.ParseUUIDParam(chi.URLParam(r, "offerId"), "offerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ip := middleware.ClientIP(r)
		offer, err := op(r.Context(), offers.TransitionInput{
			OfferID:     offerID,
			ActorUserID: middleware.UserIDFromContext(r.Context()),
			ActorRole:   middleware.RoleFromContext(r.Context()),
			ActorIP:     &ip,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOfferResponse(offer))
	}
}
