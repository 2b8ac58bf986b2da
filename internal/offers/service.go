package offers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

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

// ImageStore attaches an uploaded image to an offer at creation time.
type ImageStore interface {
	Attach(ctx context.Context, offerID uuid.UUID, name string, r io.Reader) (string, error)
}

// Service defines offer lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Offer, error)
	Get(ctx context.Context, input GetInput) (*models.Offer, error)
	List(ctx context.Context, input ListInput) ([]models.Offer, string, error)
	Activate(ctx context.Context, input TransitionInput) (*models.Offer, error)
	Deactivate(ctx context.Context, input TransitionInput) (*models.Offer, error)
	MarkSold(ctx context.Context, input TransitionInput) (*models.Offer, error)
	Moderate(ctx context.Context, input TransitionInput) (*models.Offer, error)
	Unmoderate(ctx context.Context, input TransitionInput) (*models.Offer, error)
}

// CreateInput carries everything needed to list a new offer.
type CreateInput struct {
	SellerID    uuid.UUID
	CategoryID  uuid.UUID
	Title       string
	Description *string
	Price       decimal.Decimal
	Quantity    int
	Tags        []string
	ImageName   string
	Image       io.Reader
	ActorIP     *string
}

// GetInput identifies an offer read scoped to the requesting principal.
type GetInput struct {
	OfferID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
}

// ListInput scopes an offer listing.
type ListInput struct {
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
	Status      *enums.OfferStatus
	SellerID    *uuid.UUID
	Limit       int
	Cursor      string
}

// TransitionInput carries the actor context for a status transition.
type TransitionInput struct {
	OfferID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
	ActorIP     *string
}

type service struct {
	repo   Repository
	tx     txRunner
	audit  audit.Recorder
	outbox outboxPublisher
	images ImageStore
}

// NewService builds an offer service with the required dependencies.
func NewService(repo Repository, tx txRunner, auditRec audit.Recorder, outboxPub outboxPublisher, images ImageStore) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("offers repository required")
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
	if images == nil {
		return nil, fmt.Errorf("image store required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		audit:  auditRec,
		outbox: outboxPub,
		images: images,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Offer, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer title required")
	}
	if input.CategoryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category id required")
	}
	if !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be non-negative")
	}

	offer := &models.Offer{
		SellerID:    input.SellerID,
		CategoryID:  input.CategoryID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Price:       input.Price,
		Quantity:    input.Quantity,
		Status:      enums.OfferStatusInactive,
		Tags:        input.Tags,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		exists, err := repo.CategoryExists(ctx, input.CategoryID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check category")
		}
		if !exists {
			return pkgerrors.New(pkgerrors.CodeValidation, "category not found")
		}

		if err := repo.Create(ctx, offer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create offer")
		}

		if input.Image != nil {
			filename, err := s.images.Attach(ctx, offer.ID, input.ImageName, input.Image)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach offer image")
			}
			offer.ImageFilename = &filename
			if err := tx.WithContext(ctx).Model(&models.Offer{}).
				Where("id = ?", offer.ID).
				Update("image_filename", filename).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store image filename")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

func (s *service) Get(ctx context.Context, input GetInput) (*models.Offer, error) {
	if input.OfferID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id required")
	}
	offer, err := s.repo.FindByID(ctx, input.OfferID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}
	if !visibleTo(offer, input.ActorUserID, input.ActorRole) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
	}
	return offer, nil
}

// visibleTo applies listing visibility: buyers see active offers only,
// sellers additionally see their own non-deleted offers, admins see all.
func visibleTo(offer *models.Offer, userID uuid.UUID, role enums.UserRole) bool {
	switch role {
	case enums.UserRoleAdmin:
		return true
	case enums.UserRoleSeller:
		if offer.SellerID == userID {
			return offer.Status != enums.OfferStatusDeleted
		}
		return offer.Status == enums.OfferStatusActive
	default:
		return offer.Status == enums.OfferStatusActive
	}
}

func (s *service) List(ctx context.Context, input ListInput) ([]models.Offer, string, error) {
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(input.Limit)

	filter := ListFilter{
		Status:   input.Status,
		SellerID: input.SellerID,
		Cursor:   cursor,
		Limit:    limit + 1,
	}
	switch input.ActorRole {
	case enums.UserRoleAdmin:
	case enums.UserRoleSeller:
		filter.VisibleActive = true
		own := input.ActorUserID
		filter.OwnSellerID = &own
	default:
		filter.VisibleActive = true
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list offers")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) Activate(ctx context.Context, input TransitionInput) (*models.Offer, error) {
	return s.sellerTransition(ctx, input, enums.AuditOfferActivate, func(offer *models.Offer) (enums.OfferStatus, bool, error) {
		switch offer.Status {
		case enums.OfferStatusInactive:
			return enums.OfferStatusActive, false, nil
		case enums.OfferStatusActive:
			return "", false, pkgerrors.New(pkgerrors.CodeConflict, "offer already active")
		default:
			return "", false, pkgerrors.New(pkgerrors.CodeStateConflict, "offer cannot be activated in current state")
		}
	})
}

func (s *service) Deactivate(ctx context.Context, input TransitionInput) (*models.Offer, error) {
	return s.sellerTransition(ctx, input, enums.AuditOfferDeactivate, func(offer *models.Offer) (enums.OfferStatus, bool, error) {
		switch offer.Status {
		case enums.OfferStatusActive:
			return enums.OfferStatusInactive, false, nil
		case enums.OfferStatusInactive:
			return "", false, pkgerrors.New(pkgerrors.CodeConflict, "offer already inactive")
		default:
			return "", false, pkgerrors.New(pkgerrors.CodeStateConflict, "offer cannot be deactivated in current state")
		}
	})
}

// MarkSold is a manual override: it forces quantity to zero regardless of
// remaining stock, unlike the ledger's earned decrement-to-zero path.
func (s *service) MarkSold(ctx context.Context, input TransitionInput) (*models.Offer, error) {
	return s.sellerTransition(ctx, input, enums.AuditOfferMarkSold, func(offer *models.Offer) (enums.OfferStatus, bool, error) {
		switch offer.Status {
		case enums.OfferStatusSold:
			return "", false, pkgerrors.New(pkgerrors.CodeConflict, "offer already sold")
		case enums.OfferStatusArchived, enums.OfferStatusDeleted:
			return "", false, pkgerrors.New(pkgerrors.CodeStateConflict, "offer cannot be marked sold in current state")
		default:
			return enums.OfferStatusSold, true, nil
		}
	})
}

func (s *service) Moderate(ctx context.Context, input TransitionInput) (*models.Offer, error) {
	return s.adminTransition(ctx, input, enums.AuditOfferModerate, func(offer *models.Offer) (enums.OfferStatus, error) {
		if offer.Status == enums.OfferStatusModerated {
			return "", pkgerrors.New(pkgerrors.CodeConflict, "offer already moderated")
		}
		return enums.OfferStatusModerated, nil
	})
}

// Unmoderate always lands on inactive; the pre-moderation status is not kept.
func (s *service) Unmoderate(ctx context.Context, input TransitionInput) (*models.Offer, error) {
	return s.adminTransition(ctx, input, enums.AuditOfferUnmoderate, func(offer *models.Offer) (enums.OfferStatus, error) {
		if offer.Status != enums.OfferStatusModerated {
			return "", pkgerrors.New(pkgerrors.CodeConflict, "offer is not moderated")
		}
		return enums.OfferStatusInactive, nil
	})
}

func (s *service) sellerTransition(
	ctx context.Context,
	input TransitionInput,
	kind enums.AuditEventKind,
	decide func(offer *models.Offer) (enums.OfferStatus, bool, error),
) (*models.Offer, error) {
	if input.OfferID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var updated *models.Offer
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		offer, err := loadOffer(ctx, repo, input.OfferID)
		if err != nil {
			return err
		}
		if offer.SellerID != input.ActorUserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "offer does not belong to seller")
		}

		target, zeroQuantity, err := decide(offer)
		if err != nil {
			return err
		}

		if zeroQuantity {
			if err := repo.UpdateStatusAndZeroQuantity(ctx, offer.ID, target); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update offer status")
			}
			offer.Quantity = 0
		} else {
			if err := repo.UpdateStatus(ctx, offer.ID, target); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update offer status")
			}
		}
		offer.Status = target
		updated = offer

		if target == enums.OfferStatusSold {
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOfferSold,
				AggregateType: enums.AggregateOffer,
				AggregateID:   offer.ID,
				Version:       1,
				Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: string(input.ActorRole)},
				Data: map[string]any{
					"offer_id":  offer.ID.String(),
					"seller_id": offer.SellerID.String(),
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Kind:    kind,
		ActorID: &input.ActorUserID,
		Message: fmt.Sprintf("offer %s -> %s", input.OfferID, updated.Status),
		IP:      input.ActorIP,
	})
	return updated, nil
}

func (s *service) adminTransition(
	ctx context.Context,
	input TransitionInput,
	kind enums.AuditEventKind,
	decide func(offer *models.Offer) (enums.OfferStatus, error),
) (*models.Offer, error) {
	if input.OfferID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ActorRole != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}

	var updated *models.Offer
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		offer, err := loadOffer(ctx, repo, input.OfferID)
		if err != nil {
			return err
		}

		target, err := decide(offer)
		if err != nil {
			return err
		}

		if err := repo.UpdateStatus(ctx, offer.ID, target); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update offer status")
		}
		offer.Status = target
		updated = offer
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Kind:    kind,
		ActorID: &input.ActorUserID,
		Message: fmt.Sprintf("offer %s -> %s", input.OfferID, updated.Status),
		IP:      input.ActorIP,
	})
	return updated, nil
}

func loadOffer(ctx context.Context, repo Repository, id uuid.UUID) (*models.Offer, error) {
	offer, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}
	return offer, nil
}
