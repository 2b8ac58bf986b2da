package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/enums"
)

// Transaction is the 1:1 payment record for an order. It is created as a
// fail placeholder alongside the order and overwritten exactly once by the
// settlement callback.
type Transaction struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Status    enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'fail'"`
	Amount    decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
