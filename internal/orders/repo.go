package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	"github.com/brovar/digimarket-backend/pkg/pagination"
)

// Repository is the persistence surface for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOffersByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Offer, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error
	SellerOwnsItems(ctx context.Context, orderID, sellerID uuid.UUID) (bool, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, filter ListFilter) ([]models.Order, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, filter ListFilter) ([]models.Order, error)
	ListAll(ctx context.Context, filter ListFilter) ([]models.Order, error)
}

// ListFilter scopes an order listing query.
type ListFilter struct {
	Status *enums.OrderStatus
	Cursor *pagination.Cursor
	Limit  int
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Items", "Transaction").Create(order).Error
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Transaction").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOffersByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Offer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var offers []models.Offer
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&offers).Error
	return offers, err
}

func (r *repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) SellerOwnsItems(ctx context.Context, orderID, sellerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OrderItem{}).
		Joins("JOIN offers ON offers.id = order_items.offer_id").
		Where("order_items.order_id = ?", orderID).
		Where("offers.seller_id = ?", sellerID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, filter ListFilter) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).
		Preload("Items").
		Preload("Transaction").
		Where("buyer_id = ?", buyerID)
	return listOrders(applyFilter(query, filter))
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID, filter ListFilter) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).
		Preload("Items").
		Preload("Transaction").
		Where(`orders.id IN (
			SELECT order_items.order_id FROM order_items
			JOIN offers ON offers.id = order_items.offer_id
			WHERE offers.seller_id = ?
		)`, sellerID)
	return listOrders(applyFilter(query, filter))
}

func (r *repository) ListAll(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).
		Preload("Items").
		Preload("Transaction")
	return listOrders(applyFilter(query, filter))
}

func applyFilter(query *gorm.DB, filter ListFilter) *gorm.DB {
	if filter.Status != nil {
		query = query.Where("orders.status = ?", *filter.Status)
	}
	if filter.Cursor != nil {
		query = query.Where(
			"orders.created_at < ? OR (orders.created_at = ? AND orders.id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID,
		)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	return query
}

func listOrders(query *gorm.DB) ([]models.Order, error) {
	var rows []models.Order
	err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}
