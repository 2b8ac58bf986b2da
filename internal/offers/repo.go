package offers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	"github.com/brovar/digimarket-backend/pkg/pagination"
)

// Repository is the persistence surface for offers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, offer *models.Offer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OfferStatus) error
	UpdateStatusAndZeroQuantity(ctx context.Context, id uuid.UUID, status enums.OfferStatus) error
	List(ctx context.Context, filter ListFilter) ([]models.Offer, error)
	CategoryExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ListFilter scopes an offer listing query.
type ListFilter struct {
	Status        *enums.OfferStatus
	SellerID      *uuid.UUID
	VisibleActive bool       // restrict to active offers
	OwnSellerID   *uuid.UUID // additionally include this seller's non-deleted offers
	Cursor        *pagination.Cursor
	Limit         int
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an offers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, offer *models.Offer) error {
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OfferStatus) error {
	return r.db.WithContext(ctx).Model(&models.Offer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) UpdateStatusAndZeroQuantity(ctx context.Context, id uuid.UUID, status enums.OfferStatus) error {
	return r.db.WithContext(ctx).Model(&models.Offer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"quantity":   0,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Offer, error) {
	query := r.db.WithContext(ctx).Model(&models.Offer{})

	if filter.VisibleActive {
		if filter.OwnSellerID != nil {
			query = query.Where(
				"status = ? OR (seller_id = ? AND status <> ?)",
				enums.OfferStatusActive, *filter.OwnSellerID, enums.OfferStatusDeleted,
			)
		} else {
			query = query.Where("status = ?", enums.OfferStatusActive)
		}
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.Cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID,
		)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.Offer
	err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}

func (r *repository) CategoryExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).
		Where("id = ?", id).
		Count(&count).Error
	return count > 0, err
}
