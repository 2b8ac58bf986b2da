package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/db/models"
	pkgerrors "github.com/brovar/digimarket-backend/pkg/errors"
)

// Ledger owns offer stock mutation. All writes happen inside the caller's
// transaction so they commit or roll back with the surrounding operation.
type Ledger interface {
	Decrement(ctx context.Context, tx *gorm.DB, offerID uuid.UUID, qty int) error
}

type ledger struct {
	now func() time.Time
}

// NewLedger builds the stock ledger.
func NewLedger() Ledger {
	return &ledger{now: time.Now}
}

// Decrement subtracts qty from the offer's stock with a single conditional
// update. An offer that hits exactly zero while still active flips to sold in
// the same statement; a non-active offer keeps its status. Zero affected rows
// means the offer is missing or under-stocked, never a partial write.
func (l *ledger) Decrement(ctx context.Context, tx *gorm.DB, offerID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if offerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "offer id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	res := tx.WithContext(ctx).Exec(
		`UPDATE offers
		 SET quantity = quantity - ?,
		     status = CASE WHEN quantity - ? = 0 AND status = 'active' THEN 'sold' ELSE status END,
		     updated_at = ?
		 WHERE id = ? AND quantity >= ?`,
		qty, qty, l.now(), offerID, qty,
	)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement offer quantity")
	}
	if res.RowsAffected == 0 {
		var offer models.Offer
		err := tx.WithContext(ctx).Where("id = ?", offerID).First(&offer).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "insufficient offer quantity")
	}
	return nil
}
