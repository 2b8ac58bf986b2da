package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	"github.com/brovar/digimarket-backend/pkg/logger"
)

// Entry describes a single audit record.
type Entry struct {
	Kind    enums.AuditEventKind
	ActorID *uuid.UUID
	Message string
	IP      *string
}

// Recorder is the write surface services depend on.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Service persists audit entries on its own session, outside the caller's
// transaction. A failed insert is logged and swallowed: auditing never fails
// the operation it describes.
type Service struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewService(db *gorm.DB, logg *logger.Logger) *Service {
	return &Service{db: db, logg: logg}
}

func (s *Service) Record(ctx context.Context, entry Entry) {
	if s == nil || s.db == nil {
		return
	}
	row := models.AuditEvent{
		Kind:    entry.Kind,
		ActorID: entry.ActorID,
		Message: entry.Message,
		IP:      entry.IP,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil && s.logg != nil {
		logCtx := s.logg.WithField(ctx, "audit_kind", string(entry.Kind))
		s.logg.Warn(logCtx, "audit insert failed: "+err.Error())
	}
}

// NopRecorder discards all entries. Used in tests.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, entry Entry) {}
