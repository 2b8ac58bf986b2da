package admin

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/internal/users"
	"github.com/brovar/digimarket-backend/pkg/audit"
	"github.com/brovar/digimarket-backend/pkg/db"
	"github.com/brovar/digimarket-backend/pkg/db/models"
	"github.com/brovar/digimarket-backend/pkg/enums"
	pkgerrors "github.com/brovar/digimarket-backend/pkg/errors"
	"github.com/brovar/digimarket-backend/pkg/outbox"
)

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		panic("emit outside transaction")
	}
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	conn   *gorm.DB
	svc    Service
	outbox *stubOutbox
	admin  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}, &models.Offer{}, &models.Order{}, &models.OrderItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ob := &stubOutbox{}
	svc, err := NewService(users.NewRepository(conn), db.NewWithConn(conn), audit.NopRecorder{}, ob)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return &fixture{conn: conn, svc: svc, outbox: ob, admin: uuid.New()}
}

func (f *fixture) seedUser(t *testing.T, role enums.UserRole, status enums.UserStatus) models.User {
	t.Helper()
	user := models.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		Role:         role,
		Status:       status,
	}
	if err := f.conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (f *fixture) seedOffer(t *testing.T, sellerID uuid.UUID, status enums.OfferStatus) models.Offer {
	t.Helper()
	offer := models.Offer{
		SellerID:   sellerID,
		CategoryID: uuid.New(),
		Title:      "Sample Pack",
		Price:      decimal.RequireFromString("9.99"),
		Quantity:   3,
		Status:     status,
	}
	if err := f.conn.Create(&offer).Error; err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	return offer
}

func (f *fixture) seedOrderWithItem(t *testing.T, offerID uuid.UUID, status enums.OrderStatus) models.Order {
	t.Helper()
	order := models.Order{BuyerID: uuid.New(), Status: status}
	if err := f.conn.Omit("Items", "Transaction").Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	item := models.OrderItem{
		OrderID:         order.ID,
		OfferID:         offerID,
		OfferTitle:      "Sample Pack",
		Quantity:        1,
		PriceAtPurchase: decimal.RequireFromString("9.99"),
	}
	if err := f.conn.Create(&item).Error; err != nil {
		t.Fatalf("seed order item: %v", err)
	}
	return order
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	if typed.Code() != code {
		t.Fatalf("expected code %s, got %s (%s)", code, typed.Code(), typed.Message())
	}
}

func TestBlockBuyer(t *testing.T) {
	f := newFixture(t)
	buyer := f.seedUser(t, enums.UserRoleBuyer, enums.UserStatusActive)

	blocked, err := f.svc.BlockUser(context.Background(), ActionInput{
		UserID: buyer.ID, ActorUserID: f.admin, ActorRole: enums.UserRoleAdmin,
	})
	if err != nil {
		t.Fatalf("block user: %v", err)
	}
	if blocked.Status != enums.UserStatusInactive {
		t.Fatalf("expected inactive, got %s", blocked.Status)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventUserBlocked {
		t.Fatalf("expected user.blocked event, got %+v", f.outbox.events)
	}
}

func TestBlockSellerCascades(t *testing.T) {
	f := newFixture(t)
	seller := f.seedUser(t, enums.UserRoleSeller, enums.UserStatusActive)
	active := f.seedOffer(t, seller.ID, enums.OfferStatusActive)
	sold := f.seedOffer(t, seller.ID, enums.OfferStatusSold)
	otherSellers := f.seedOffer(t, uuid.New(), enums.OfferStatusActive)

	pending := f.seedOrderWithItem(t, active.ID, enums.OrderStatusPendingPayment)
	shipped := f.seedOrderWithItem(t, active.ID, enums.OrderStatusShipped)
	delivered := f.seedOrderWithItem(t, active.ID, enums.OrderStatusDelivered)
	unrelated := f.seedOrderWithItem(t, otherSellers.ID, enums.OrderStatusProcessing)

	if _, err := f.svc.BlockUser(context.Background(), ActionInput{
		UserID: seller.ID, ActorUserID: f.admin, ActorRole: enums.UserRoleAdmin,
	}); err != nil {
		t.Fatalf("block seller: %v", err)
	}

	assertOfferStatus(t, f.conn, active.ID, enums.OfferStatusInactive)
	assertOfferStatus(t, f.conn, sold.ID, enums.OfferStatusSold)
	assertOfferStatus(t, f.conn, otherSellers.ID, enums.OfferStatusActive)

	assertOrderStatus(t, f.conn, pending.ID, enums.OrderStatusCancelled)
	assertOrderStatus(t, f.conn, shipped.ID, enums.OrderStatusCancelled)
	assertOrderStatus(t, f.conn, delivered.ID, enums.OrderStatusDelivered)
	assertOrderStatus(t, f.conn, unrelated.ID, enums.OrderStatusProcessing)
}

func assertOfferStatus(t *testing.T, conn *gorm.DB, id uuid.UUID, want enums.OfferStatus) {
	t.Helper()
	var offer models.Offer
	if err := conn.First(&offer, "id = ?", id).Error; err != nil {
		t.Fatalf("load offer: %v", err)
	}
	if offer.Status != want {
		t.Fatalf("offer %s: expected %s, got %s", id, want, offer.Status)
	}
}

func assertOrderStatus(t *testing.T, conn *gorm.DB, id uuid.UUID, want enums.OrderStatus) {
	t.Helper()
	var order models.Order
	if err := conn.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != want {
		t.Fatalf("order %s: expected %s, got %s", id, want, order.Status)
	}
}

func TestBlockUserGuards(t *testing.T) {
	f := newFixture(t)
	buyer := f.seedUser(t, enums.UserRoleBuyer, enums.UserStatusActive)

	_, err := f.svc.BlockUser(context.Background(), ActionInput{
		UserID: buyer.ID, ActorUserID: buyer.ID, ActorRole: enums.UserRoleBuyer,
	})
	assertCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.BlockUser(context.Background(), ActionInput{
		UserID: f.admin, ActorUserID: f.admin, ActorRole: enums.UserRoleAdmin,
	})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.BlockUser(context.Background(), ActionInput{
		UserID: uuid.New(), ActorUserID: f.admin, ActorRole: enums.UserRoleAdmin,
	})
	assertCode(t, err, pkgerrors.CodeNotFound)

	inactive := f.seedUser(t, enums.UserRoleBuyer, enums.UserStatusInactive)
	_, err = f.svc.BlockUser(context.Background(), ActionInput{
		UserID: inactive.ID, ActorUserID: f.admin, ActorRole: enums.UserRoleAdmin,
	})
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestUnblockUser(t *testing.T) {
	f := newFixture(t)
	seller := f.seedUser(t, enums.UserRoleSeller, enums.UserStatusInactive)
	offer := f.seedOffer(t, seller.ID, enums.OfferStatusInactive)

	unblocked, err := f.svc.UnblockUser(context.Background(), ActionInput{
		UserID: seller.ID, ActorUserID: f.admin, ActorRole: enums.UserRoleAdmin,
	})
	if err != nil {
		t.Fatalf("unblock user: %v", err)
	}
	if unblocked.Status != enums.UserStatusActive {
		t.Fatalf("expected active, got %s", unblocked.Status)
	}

	// the block cascade is not reversed
	assertOfferStatus(t, f.conn, offer.ID, enums.OfferStatusInactive)

	_, err = f.svc.UnblockUser(context.Background(), ActionInput{
		UserID: seller.ID, ActorUserID: f.admin, ActorRole: enums.UserRoleAdmin,
	})
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, enums.UserRoleBuyer, enums.UserStatusActive)
	f.seedUser(t, enums.UserRoleSeller, enums.UserStatusActive)
	f.seedUser(t, enums.UserRoleSeller, enums.UserStatusInactive)

	all, _, err := f.svc.ListUsers(context.Background(), ListInput{ActorRole: enums.UserRoleAdmin})
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 users, got %d", len(all))
	}

	sellerRole := enums.UserRoleSeller
	sellers, _, err := f.svc.ListUsers(context.Background(), ListInput{ActorRole: enums.UserRoleAdmin, Role: &sellerRole})
	if err != nil {
		t.Fatalf("list sellers: %v", err)
	}
	if len(sellers) != 2 {
		t.Fatalf("expected 2 sellers, got %d", len(sellers))
	}

	inactive := enums.UserStatusInactive
	blocked, _, err := f.svc.ListUsers(context.Background(), ListInput{
		ActorRole: enums.UserRoleAdmin, Role: &sellerRole, Status: &inactive,
	})
	if err != nil {
		t.Fatalf("list blocked sellers: %v", err)
	}
	if len(blocked) != 1 {
		t.Fatalf("expected 1 blocked seller, got %d", len(blocked))
	}

	_, _, err = f.svc.ListUsers(context.Background(), ListInput{ActorRole: enums.UserRoleSeller})
	assertCode(t, err, pkgerrors.CodeForbidden)
}
