package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/enums"
)

// Order is a buyer's purchase tracked through the payment/fulfillment
// status machine. The total is never stored; it is derived from items.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID     uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status      enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending_payment'"`
	Items       []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Transaction *Transaction      `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
