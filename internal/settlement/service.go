package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/internal/inventory"
	"github.com/brovar/digimarket-backend/pkg/audit"
	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	pkgerrors "github.com/brovar/digimarket-backend/pkg/errors"
	"github.com/brovar/digimarket-backend/pkg/metrics"
	"github.com/brovar/digimarket-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service consumes payment gateway callbacks.
type Service interface {
	ProcessCallback(ctx context.Context, input CallbackInput) (*CallbackResult, error)
}

// CallbackInput is the gateway's settlement report for one transaction.
type CallbackInput struct {
	TransactionID uuid.UUID
	Status        enums.TransactionStatus
	SourceIP      *string
}

// CallbackResult tells the gateway what the callback resolved to.
type CallbackResult struct {
	OrderID     uuid.UUID
	OrderStatus enums.OrderStatus
}

type service struct {
	tx      txRunner
	ledger  inventory.Ledger
	audit   audit.Recorder
	outbox  outboxPublisher
	metrics *metrics.MarketplaceMetrics
	now     func() time.Time
}

// NewService builds the settlement service.
func NewService(
	tx txRunner,
	ledger inventory.Ledger,
	auditRec audit.Recorder,
	outboxPub outboxPublisher,
	m *metrics.MarketplaceMetrics,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if auditRec == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if outboxPub == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:      tx,
		ledger:  ledger,
		audit:   auditRec,
		outbox:  outboxPub,
		metrics: m,
		now:     time.Now,
	}, nil
}

// orderStatusFor maps the gateway outcome onto the order status machine.
func orderStatusFor(status enums.TransactionStatus) (enums.OrderStatus, error) {
	switch status {
	case enums.TransactionStatusSuccess:
		return enums.OrderStatusProcessing, nil
	case enums.TransactionStatusFail:
		return enums.OrderStatusFailed, nil
	case enums.TransactionStatusCancelled:
		return enums.OrderStatusCancelled, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown transaction status")
	}
}

// ProcessCallback applies a settlement exactly once. The order row is
// claimed with a conditional update against pending_payment; a second
// callback for the same transaction finds zero affected rows and is
// rejected as already processed, whatever the resolved order state is now.
func (s *service) ProcessCallback(ctx context.Context, input CallbackInput) (*CallbackResult, error) {
	if input.TransactionID == uuid.Nil {
		s.metrics.IncSettlementCallback(metrics.SettlementOutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	target, err := orderStatusFor(input.Status)
	if err != nil {
		s.metrics.IncSettlementCallback(metrics.SettlementOutcomeRejected)
		return nil, err
	}

	var result *CallbackResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txn models.Transaction
		if err := tx.WithContext(ctx).Where("id = ?", input.TransactionID).First(&txn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
		}

		claim := tx.WithContext(ctx).Exec(
			`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = 'pending_payment'`,
			target, s.now(), txn.OrderID,
		)
		if claim.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, claim.Error, "claim order for settlement")
		}
		if claim.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "transaction already processed")
		}

		if err := tx.WithContext(ctx).Model(&models.Transaction{}).
			Where("id = ?", txn.ID).
			Updates(map[string]any{"status": input.Status, "updated_at": s.now()}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update transaction status")
		}

		if input.Status == enums.TransactionStatusSuccess {
			var items []models.OrderItem
			if err := tx.WithContext(ctx).Where("order_id = ?", txn.OrderID).Find(&items).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
			}
			for _, item := range items {
				if err := s.ledger.Decrement(ctx, tx, item.OfferID, item.Quantity); err != nil {
					return err
				}
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   txn.OrderID,
			Version:       1,
			Data: map[string]any{
				"order_id":       txn.OrderID.String(),
				"transaction_id": txn.ID.String(),
				"status":         string(input.Status),
				"order_status":   string(target),
				"amount":         txn.Amount.StringFixed(2),
			},
		}); err != nil {
			return err
		}

		result = &CallbackResult{OrderID: txn.OrderID, OrderStatus: target}
		return nil
	})
	if err != nil {
		typed := pkgerrors.As(err)
		if typed != nil && typed.Code() == pkgerrors.CodeConflict {
			s.metrics.IncSettlementCallback(metrics.SettlementOutcomeDuplicate)
		} else {
			s.metrics.IncSettlementCallback(metrics.SettlementOutcomeRejected)
		}
		return nil, err
	}

	s.metrics.IncSettlementCallback(metrics.SettlementOutcomeAccepted)
	s.audit.Record(ctx, audit.Entry{
		Kind:    enums.AuditPaymentSettle,
		Message: fmt.Sprintf("transaction %s settled %s, order %s -> %s", input.TransactionID, input.Status, result.OrderID, result.OrderStatus),
		IP:      input.SourceIP,
	})
	return result, nil
}
