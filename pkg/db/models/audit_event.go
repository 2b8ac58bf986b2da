package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/enums"
)

// AuditEvent is an append-only record of who did what. Rows are written
// fire-and-forget; a failed insert never fails the operation it describes.
type AuditEvent struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Kind      enums.AuditEventKind `gorm:"column:kind;type:text;not null;index"`
	ActorID   *uuid.UUID           `gorm:"column:actor_id;type:uuid;index"`
	Message   string               `gorm:"column:message;type:text;not null"`
	IP        *string              `gorm:"column:ip"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (a *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
