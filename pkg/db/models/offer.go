package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/enums"
)

// Offer represents a seller's listing of a digital good.
// Offers are never deleted, only status-transitioned; quantity must stay
// non-negative and is forced to zero whenever status lands on sold.
type Offer struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	SellerID      uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;index"`
	CategoryID    uuid.UUID         `gorm:"column:category_id;type:uuid;not null"`
	Title         string            `gorm:"column:title;type:text;not null"`
	Description   *string           `gorm:"column:description;type:text"`
	Price         decimal.Decimal   `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity      int               `gorm:"column:quantity;not null;default:0"`
	Status        enums.OfferStatus `gorm:"column:status;type:text;not null;default:'inactive'"`
	ImageFilename *string           `gorm:"column:image_filename"`
	Tags          pq.StringArray    `gorm:"column:tags;type:text[]"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Offer) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
