package orders

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/audit"
	"github.com/brovar/digimarket-backend/pkg/config"
	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	pkgerrors "github.com/brovar/digimarket-backend/pkg/errors"
	"github.com/brovar/digimarket-backend/pkg/metrics"
	"github.com/brovar/digimarket-backend/pkg/outbox"
	"github.com/brovar/digimarket-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines order lifecycle operations.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	GetOrderDetails(ctx context.Context, input DetailInput) (*Detail, error)
	ShipOrder(ctx context.Context, input FulfillmentInput) (*Detail, error)
	DeliverOrder(ctx context.Context, input FulfillmentInput) (*Detail, error)
	CancelOrder(ctx context.Context, input AdminCancelInput) (*Detail, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, input ListInput) ([]Detail, string, error)
	ListSellerSales(ctx context.Context, sellerID uuid.UUID, input ListInput) ([]Detail, string, error)
	ListAdminOrders(ctx context.Context, input ListInput) ([]Detail, string, error)
}

// LineInput is one requested order line.
type LineInput struct {
	OfferID  uuid.UUID
	Quantity int
}

// CreateOrderInput carries a buyer's purchase request.
type CreateOrderInput struct {
	BuyerID   uuid.UUID
	ActorRole enums.UserRole
	Items     []LineInput
	ActorIP   *string
}

// CreateOrderResult is returned to the buyer after a successful creation.
type CreateOrderResult struct {
	OrderID    uuid.UUID
	Status     enums.OrderStatus
	Total      decimal.Decimal
	PaymentURL string
	CreatedAt  time.Time
}

// DetailInput identifies a role-gated order read.
type DetailInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
}

// FulfillmentInput carries a seller's ship/deliver request.
type FulfillmentInput struct {
	OrderID  uuid.UUID
	SellerID uuid.UUID
	ActorIP  *string
}

// AdminCancelInput carries an administrative cancellation.
type AdminCancelInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
	ActorIP     *string
}

// ListInput scopes an order listing.
type ListInput struct {
	Status *enums.OrderStatus
	Limit  int
	Cursor string
}

// Detail is an order with its derived total. The total is never stored,
// always recomputed from item snapshots.
type Detail struct {
	Order models.Order
	Total decimal.Decimal
}

// DerivedTotal sums quantity * price_at_purchase over the order's items.
func DerivedTotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

type service struct {
	repo    Repository
	tx      txRunner
	audit   audit.Recorder
	outbox  outboxPublisher
	metrics *metrics.MarketplaceMetrics
	payment config.PaymentConfig
}

// NewService builds an order service with the required dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	auditRec audit.Recorder,
	outboxPub outboxPublisher,
	m *metrics.MarketplaceMetrics,
	payment config.PaymentConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
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
	return &service{
		repo:    repo,
		tx:      tx,
		audit:   auditRec,
		outbox:  outboxPub,
		metrics: m,
		payment: payment,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ActorRole != enums.UserRoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "buyer role required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order items required")
	}
	for _, line := range input.Items {
		if line.OfferID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
	}

	s.audit.Record(ctx, audit.Entry{
		Kind:    enums.AuditOrderCreateStart,
		ActorID: &input.BuyerID,
		Message: fmt.Sprintf("order creation started, %d lines", len(input.Items)),
		IP:      input.ActorIP,
	})

	var result *CreateOrderResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		offerIDs := make([]uuid.UUID, 0, len(input.Items))
		for _, line := range input.Items {
			offerIDs = append(offerIDs, line.OfferID)
		}
		offers, err := repo.FindOffersByIDs(ctx, offerIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offers")
		}
		byID := make(map[uuid.UUID]models.Offer, len(offers))
		for _, offer := range offers {
			byID[offer.ID] = offer
		}

		// all validations run before any write
		for _, line := range input.Items {
			offer, ok := byID[line.OfferID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
			}
			if offer.Status != enums.OfferStatusActive {
				return pkgerrors.New(pkgerrors.CodeValidation, "offer not available")
			}
			if offer.Quantity < line.Quantity {
				return pkgerrors.New(pkgerrors.CodeValidation, "insufficient offer quantity")
			}
		}

		order := &models.Order{
			BuyerID: input.BuyerID,
			Status:  enums.OrderStatusPendingPayment,
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		items := make([]models.OrderItem, 0, len(input.Items))
		total := decimal.Zero
		for _, line := range input.Items {
			offer := byID[line.OfferID]
			item := models.OrderItem{
				OrderID:         order.ID,
				OfferID:         offer.ID,
				OfferTitle:      offer.Title,
				Quantity:        line.Quantity,
				PriceAtPurchase: offer.Price,
			}
			total = total.Add(item.LineTotal())
			items = append(items, item)
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		// placeholder transaction; the settlement callback overwrites it once
		txn := &models.Transaction{
			OrderID: order.ID,
			Status:  enums.TransactionStatusFail,
			Amount:  total,
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: string(input.ActorRole)},
			Data: map[string]any{
				"order_id": order.ID.String(),
				"buyer_id": input.BuyerID.String(),
				"total":    total.StringFixed(2),
			},
		}); err != nil {
			return err
		}

		result = &CreateOrderResult{
			OrderID:    order.ID,
			Status:     order.Status,
			Total:      total,
			PaymentURL: s.buildPaymentURL(txn.ID),
			CreatedAt:  order.CreatedAt,
		}
		return nil
	})
	if err != nil {
		s.audit.Record(ctx, audit.Entry{
			Kind:    enums.AuditOrderCreateFail,
			ActorID: &input.BuyerID,
			Message: "order creation failed: " + err.Error(),
			IP:      input.ActorIP,
		})
		return nil, err
	}

	s.metrics.IncOrdersCreated()
	s.audit.Record(ctx, audit.Entry{
		Kind:    enums.AuditOrderCreateSuccess,
		ActorID: &input.BuyerID,
		Message: fmt.Sprintf("order %s created, total %s", result.OrderID, result.Total.StringFixed(2)),
		IP:      input.ActorIP,
	})
	return result, nil
}

func (s *service) buildPaymentURL(transactionID uuid.UUID) string {
	values := url.Values{}
	values.Set("transaction_id", transactionID.String())
	values.Set("callback_url", s.payment.CallbackURL)
	return s.payment.GatewayBaseURL + "?" + values.Encode()
}

func (s *service) GetOrderDetails(ctx context.Context, input DetailInput) (*Detail, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.loadOrder(ctx, s.repo, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, s.repo, order, input.ActorUserID, input.ActorRole); err != nil {
		return nil, err
	}
	return &Detail{Order: *order, Total: DerivedTotal(order.Items)}, nil
}

func (s *service) authorizeRead(ctx context.Context, repo Repository, order *models.Order, userID uuid.UUID, role enums.UserRole) error {
	switch role {
	case enums.UserRoleAdmin:
		return nil
	case enums.UserRoleBuyer:
		if order.BuyerID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
		}
		return nil
	case enums.UserRoleSeller:
		owns, err := repo.SellerOwnsItems(ctx, order.ID, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check seller ownership")
		}
		if !owns {
			return pkgerrors.New(pkgerrors.CodeForbidden, "seller owns no items in order")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}
}

func (s *service) ShipOrder(ctx context.Context, input FulfillmentInput) (*Detail, error) {
	return s.fulfillmentTransition(ctx, input, enums.OrderStatusProcessing, enums.OrderStatusShipped,
		enums.AuditOrderShip, enums.EventOrderShipped, "order cannot be shipped in current state")
}

func (s *service) DeliverOrder(ctx context.Context, input FulfillmentInput) (*Detail, error) {
	return s.fulfillmentTransition(ctx, input, enums.OrderStatusShipped, enums.OrderStatusDelivered,
		enums.AuditOrderDeliver, enums.EventOrderDelivered, "order cannot be delivered in current state")
}

func (s *service) fulfillmentTransition(
	ctx context.Context,
	input FulfillmentInput,
	source, target enums.OrderStatus,
	auditKind enums.AuditEventKind,
	eventType enums.OutboxEventType,
	conflictMsg string,
) (*Detail, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var detail *Detail
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}

		owns, err := repo.SellerOwnsItems(ctx, order.ID, input.SellerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check seller ownership")
		}
		if !owns {
			return pkgerrors.New(pkgerrors.CodeForbidden, "seller owns no items in order")
		}

		if order.Status != source {
			return pkgerrors.New(pkgerrors.CodeStateConflict, conflictMsg)
		}

		if err := repo.UpdateOrderStatus(ctx, order.ID, target); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = target

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.SellerID, Role: string(enums.UserRoleSeller)},
			Data: map[string]any{
				"order_id": order.ID.String(),
				"status":   string(target),
			},
		}); err != nil {
			return err
		}

		detail = &Detail{Order: *order, Total: DerivedTotal(order.Items)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Kind:    auditKind,
		ActorID: &input.SellerID,
		Message: fmt.Sprintf("order %s -> %s", input.OrderID, target),
		IP:      input.ActorIP,
	})
	return detail, nil
}

func (s *service) CancelOrder(ctx context.Context, input AdminCancelInput) (*Detail, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorRole != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}

	var detail *Detail
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case enums.OrderStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeConflict, "order already cancelled")
		case enums.OrderStatusDelivered:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "delivered order cannot be cancelled")
		}

		if err := repo.UpdateOrderStatus(ctx, order.ID, enums.OrderStatusCancelled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = enums.OrderStatusCancelled

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: string(input.ActorRole)},
			Data: map[string]any{
				"order_id": order.ID.String(),
			},
		}); err != nil {
			return err
		}

		detail = &Detail{Order: *order, Total: DerivedTotal(order.Items)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Kind:    enums.AuditOrderCancel,
		ActorID: &input.ActorUserID,
		Message: fmt.Sprintf("order %s cancelled", input.OrderID),
		IP:      input.ActorIP,
	})
	return detail, nil
}

func (s *service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, input ListInput) ([]Detail, string, error) {
	return s.list(ctx, input, func(filter ListFilter) ([]models.Order, error) {
		return s.repo.ListByBuyer(ctx, buyerID, filter)
	})
}

func (s *service) ListSellerSales(ctx context.Context, sellerID uuid.UUID, input ListInput) ([]Detail, string, error) {
	return s.list(ctx, input, func(filter ListFilter) ([]models.Order, error) {
		return s.repo.ListBySeller(ctx, sellerID, filter)
	})
}

func (s *service) ListAdminOrders(ctx context.Context, input ListInput) ([]Detail, string, error) {
	return s.list(ctx, input, func(filter ListFilter) ([]models.Order, error) {
		return s.repo.ListAll(ctx, filter)
	})
}

func (s *service) list(ctx context.Context, input ListInput, query func(ListFilter) ([]models.Order, error)) ([]Detail, string, error) {
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(input.Limit)

	rows, err := query(ListFilter{Status: input.Status, Cursor: cursor, Limit: limit + 1})
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	details := make([]Detail, 0, len(rows))
	for _, order := range rows {
		details = append(details, Detail{Order: order, Total: DerivedTotal(order.Items)})
	}
	return details, next, nil
}

func (s *service) loadOrder(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}
