package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderItem captures a point-in-time snapshot of an offer line within an
// order. OfferTitle and PriceAtPurchase never change after creation, even
// when the referenced offer does.
type OrderItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	OfferID         uuid.UUID       `gorm:"column:offer_id;type:uuid;not null;index"`
	OfferTitle      string          `gorm:"column:offer_title;type:text;not null"`
	Quantity        int             `gorm:"column:quantity;not null"`
	PriceAtPurchase decimal.Decimal `gorm:"column:price_at_purchase;type:numeric(12,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// LineTotal derives quantity * price_at_purchase for this snapshot.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
