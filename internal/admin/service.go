package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/internal/users"
	"github.com/brovar/digimarket-backend/pkg/audit"
	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	pkgerrors "github.com/brovar/digimarket-backend/pkg/errors"
	"github.com/brovar/digimarket-backend/pkg/outbox"
	"github.com/brovar/digimarket-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service covers administrative user management.
type Service interface {
	BlockUser(ctx context.Context, input ActionInput) (*models.User, error)
	UnblockUser(ctx context.Context, input ActionInput) (*models.User, error)
	GetUser(ctx context.Context, input ActionInput) (*models.User, error)
	ListUsers(ctx context.Context, input ListInput) ([]models.User, string, error)
}

// ActionInput identifies a target user and the admin acting on it.
type ActionInput struct {
	UserID      uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
	ActorIP     *string
}

// ListInput scopes an administrative user listing.
type ListInput struct {
	ActorRole enums.UserRole
	Role      *enums.UserRole
	Status    *enums.UserStatus
	Limit     int
	Cursor    string
}

type service struct {
	repo   users.Repository
	tx     txRunner
	audit  audit.Recorder
	outbox outboxPublisher
	now    func() time.Time
}

// NewService builds the admin service.
func NewService(repo users.Repository, tx txRunner, auditRec audit.Recorder, outboxPub outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if auditRec == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if outboxPub == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, audit: auditRec, outbox: outboxPub, now: time.Now}, nil
}

// BlockUser deactivates an account. Blocking a seller also deactivates
// every active offer and cancels every unfinished order that carries one
// of the seller's items, all inside one transaction.
func (s *service) BlockUser(ctx context.Context, input ActionInput) (*models.User, error) {
	if err := requireAdmin(input.ActorRole); err != nil {
		return nil, err
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.UserID == input.ActorUserID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin cannot block own account")
	}

	var blocked *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := loadUser(ctx, repo, input.UserID)
		if err != nil {
			return err
		}
		if user.Status == enums.UserStatusInactive {
			return pkgerrors.New(pkgerrors.CodeConflict, "user already inactive")
		}

		if err := repo.UpdateStatus(ctx, user.ID, enums.UserStatusInactive); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user status")
		}
		user.Status = enums.UserStatusInactive

		if user.Role == enums.UserRoleSeller {
			if err := s.cascadeSellerBlock(ctx, tx, user.ID); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserBlocked,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: string(input.ActorRole)},
			Data: map[string]any{
				"user_id": user.ID.String(),
				"role":    string(user.Role),
			},
		}); err != nil {
			return err
		}

		blocked = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Kind:    enums.AuditUserBlock,
		ActorID: &input.ActorUserID,
		Message: fmt.Sprintf("user %s blocked", input.UserID),
		IP:      input.ActorIP,
	})
	return blocked, nil
}

func (s *service) cascadeSellerBlock(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID) error {
	now := s.now()
	if err := tx.WithContext(ctx).Exec(
		`UPDATE offers SET status = 'inactive', updated_at = ? WHERE seller_id = ? AND status = 'active'`,
		now, sellerID,
	).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate seller offers")
	}
	if err := tx.WithContext(ctx).Exec(
		`UPDATE orders SET status = 'cancelled', updated_at = ?
		 WHERE status IN ('pending_payment', 'processing', 'shipped')
		   AND id IN (
		       SELECT order_items.order_id FROM order_items
		       JOIN offers ON offers.id = order_items.offer_id
		       WHERE offers.seller_id = ?
		   )`,
		now, sellerID,
	).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel seller orders")
	}
	return nil
}

// UnblockUser reactivates the account only. Offers and orders touched by
// the block cascade stay as they are.
func (s *service) UnblockUser(ctx context.Context, input ActionInput) (*models.User, error) {
	if err := requireAdmin(input.ActorRole); err != nil {
		return nil, err
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	var unblocked *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := loadUser(ctx, repo, input.UserID)
		if err != nil {
			return err
		}
		if user.Status == enums.UserStatusActive {
			return pkgerrors.New(pkgerrors.CodeConflict, "user already active")
		}
		if err := repo.UpdateStatus(ctx, user.ID, enums.UserStatusActive); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user status")
		}
		user.Status = enums.UserStatusActive
		unblocked = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Kind:    enums.AuditUserUnblock,
		ActorID: &input.ActorUserID,
		Message: fmt.Sprintf("user %s unblocked", input.UserID),
		IP:      input.ActorIP,
	})
	return unblocked, nil
}

func (s *service) GetUser(ctx context.Context, input ActionInput) (*models.User, error) {
	if err := requireAdmin(input.ActorRole); err != nil {
		return nil, err
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return loadUser(ctx, s.repo, input.UserID)
}

func (s *service) ListUsers(ctx context.Context, input ListInput) ([]models.User, string, error) {
	if err := requireAdmin(input.ActorRole); err != nil {
		return nil, "", err
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(input.Limit)

	rows, err := s.repo.List(ctx, users.ListFilter{
		Role:   input.Role,
		Status: input.Status,
		Cursor: cursor,
		Limit:  limit + 1,
	})
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func requireAdmin(role enums.UserRole) error {
	if role != enums.UserRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}

func loadUser(ctx context.Context, repo users.Repository, id uuid.UUID) (*models.User, error) {
	user, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}
