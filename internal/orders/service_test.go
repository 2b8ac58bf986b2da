package orders

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/brovar/digimarket-backend/pkg/audit"
	"github.com/brovar/digimarket-backend/pkg/config"
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
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Offer{}, &models.Order{}, &models.OrderItem{}, &models.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ob := &stubOutbox{}
	svc, err := NewService(
		NewRepository(conn),
		db.NewWithConn(conn),
		audit.NopRecorder{},
		ob,
		nil,
		config.PaymentConfig{
			GatewayBaseURL: "https://gateway.test/pay",
			CallbackURL:    "http://localhost:8080/api/v1/payments/callback",
		},
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return &fixture{conn: conn, svc: svc, outbox: ob}
}

func (f *fixture) seedOffer(t *testing.T, sellerID uuid.UUID, price string, quantity int, status enums.OfferStatus) models.Offer {
	t.Helper()
	offer := models.Offer{
		SellerID:   sellerID,
		CategoryID: uuid.New(),
		Title:      "Retro Asset Pack",
		Price:      decimal.RequireFromString(price),
		Quantity:   quantity,
		Status:     status,
	}
	if err := f.conn.Create(&offer).Error; err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	return offer
}

func (f *fixture) seedOrder(t *testing.T, buyerID uuid.UUID, offer models.Offer, quantity int, status enums.OrderStatus) models.Order {
	t.Helper()
	order := models.Order{BuyerID: buyerID, Status: status}
	if err := f.conn.Omit("Items", "Transaction").Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	item := models.OrderItem{
		OrderID:         order.ID,
		OfferID:         offer.ID,
		OfferTitle:      offer.Title,
		Quantity:        quantity,
		PriceAtPurchase: offer.Price,
	}
	if err := f.conn.Create(&item).Error; err != nil {
		t.Fatalf("seed order item: %v", err)
	}
	txn := models.Transaction{
		OrderID: order.ID,
		Status:  enums.TransactionStatusFail,
		Amount:  item.LineTotal(),
	}
	if err := f.conn.Create(&txn).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return order
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
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
	return typed
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	seller := uuid.New()
	first := f.seedOffer(t, seller, "10.00", 5, enums.OfferStatusActive)
	second := f.seedOffer(t, seller, "15.00", 3, enums.OfferStatusActive)

	result, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID:   buyer,
		ActorRole: enums.UserRoleBuyer,
		Items: []LineInput{
			{OfferID: first.ID, Quantity: 2},
			{OfferID: second.ID, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if result.Status != enums.OrderStatusPendingPayment {
		t.Fatalf("expected pending_payment, got %s", result.Status)
	}
	if result.Total.StringFixed(2) != "50.00" {
		t.Fatalf("expected total 50.00, got %s", result.Total.StringFixed(2))
	}
	if !strings.HasPrefix(result.PaymentURL, "https://gateway.test/pay?") {
		t.Fatalf("unexpected payment url %s", result.PaymentURL)
	}
	if !strings.Contains(result.PaymentURL, "callback_url=") || !strings.Contains(result.PaymentURL, "transaction_id=") {
		t.Fatalf("payment url missing parameters: %s", result.PaymentURL)
	}

	var stored models.Order
	if err := f.conn.Preload("Items").Preload("Transaction").First(&stored, "id = ?", result.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if len(stored.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(stored.Items))
	}
	for _, item := range stored.Items {
		if item.OfferTitle == "" {
			t.Fatal("item title snapshot missing")
		}
	}
	if stored.Transaction == nil {
		t.Fatal("placeholder transaction missing")
	}
	if stored.Transaction.Status != enums.TransactionStatusFail {
		t.Fatalf("expected placeholder status fail, got %s", stored.Transaction.Status)
	}
	if stored.Transaction.Amount.StringFixed(2) != "50.00" {
		t.Fatalf("expected transaction amount 50.00, got %s", stored.Transaction.Amount.StringFixed(2))
	}
	if !strings.Contains(result.PaymentURL, stored.Transaction.ID.String()) {
		t.Fatal("payment url must carry the transaction id")
	}

	// quantity is untouched until the payment settles
	var offer models.Offer
	if err := f.conn.First(&offer, "id = ?", first.ID).Error; err != nil {
		t.Fatalf("load offer: %v", err)
	}
	if offer.Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", offer.Quantity)
	}

	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventOrderCreated {
		t.Fatalf("expected one order.created event, got %+v", f.outbox.events)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	seller := uuid.New()
	inactive := f.seedOffer(t, seller, "10.00", 5, enums.OfferStatusInactive)
	scarce := f.seedOffer(t, seller, "10.00", 1, enums.OfferStatusActive)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: buyer, ActorRole: enums.UserRoleBuyer,
	})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: buyer, ActorRole: enums.UserRoleSeller,
		Items: []LineInput{{OfferID: scarce.ID, Quantity: 1}},
	})
	assertCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: buyer, ActorRole: enums.UserRoleBuyer,
		Items: []LineInput{{OfferID: uuid.New(), Quantity: 1}},
	})
	assertCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: buyer, ActorRole: enums.UserRoleBuyer,
		Items: []LineInput{{OfferID: inactive.ID, Quantity: 1}},
	})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: buyer, ActorRole: enums.UserRoleBuyer,
		Items: []LineInput{{OfferID: scarce.ID, Quantity: 2}},
	})
	assertCode(t, err, pkgerrors.CodeValidation)

	// a failing line aborts the whole order
	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: buyer, ActorRole: enums.UserRoleBuyer,
		Items: []LineInput{
			{OfferID: scarce.ID, Quantity: 1},
			{OfferID: inactive.ID, Quantity: 1},
		},
	})
	assertCode(t, err, pkgerrors.CodeValidation)

	var count int64
	if err := f.conn.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted orders, got %d", count)
	}
	if len(f.outbox.events) != 0 {
		t.Fatalf("expected no events, got %d", len(f.outbox.events))
	}
}

func TestShipOrder(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	seller := uuid.New()
	offer := f.seedOffer(t, seller, "10.00", 5, enums.OfferStatusActive)
	order := f.seedOrder(t, buyer, offer, 2, enums.OrderStatusProcessing)

	detail, err := f.svc.ShipOrder(context.Background(), FulfillmentInput{OrderID: order.ID, SellerID: seller})
	if err != nil {
		t.Fatalf("ship order: %v", err)
	}
	if detail.Order.Status != enums.OrderStatusShipped {
		t.Fatalf("expected shipped, got %s", detail.Order.Status)
	}
	if detail.Total.StringFixed(2) != "20.00" {
		t.Fatalf("expected total 20.00, got %s", detail.Total.StringFixed(2))
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventOrderShipped {
		t.Fatalf("expected order.shipped event, got %+v", f.outbox.events)
	}
}

func TestShipOrderRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	seller := uuid.New()
	offer := f.seedOffer(t, seller, "10.00", 5, enums.OfferStatusActive)
	order := f.seedOrder(t, buyer, offer, 1, enums.OrderStatusProcessing)

	_, err := f.svc.ShipOrder(context.Background(), FulfillmentInput{OrderID: order.ID, SellerID: uuid.New()})
	assertCode(t, err, pkgerrors.CodeForbidden)

	var stored models.Order
	if err := f.conn.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.Status != enums.OrderStatusProcessing {
		t.Fatalf("status must be unchanged, got %s", stored.Status)
	}
}

func TestShipOrderWrongState(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	seller := uuid.New()
	offer := f.seedOffer(t, seller, "10.00", 5, enums.OfferStatusActive)
	order := f.seedOrder(t, buyer, offer, 1, enums.OrderStatusPendingPayment)

	_, err := f.svc.ShipOrder(context.Background(), FulfillmentInput{OrderID: order.ID, SellerID: seller})
	assertCode(t, err, pkgerrors.CodeStateConflict)

	_, err = f.svc.ShipOrder(context.Background(), FulfillmentInput{OrderID: uuid.New(), SellerID: seller})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestDeliverOrder(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	seller := uuid.New()
	offer := f.seedOffer(t, seller, "10.00", 5, enums.OfferStatusActive)
	order := f.seedOrder(t, buyer, offer, 1, enums.OrderStatusShipped)

	detail, err := f.svc.DeliverOrder(context.Background(), FulfillmentInput{OrderID: order.ID, SellerID: seller})
	if err != nil {
		t.Fatalf("deliver order: %v", err)
	}
	if detail.Order.Status != enums.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %s", detail.Order.Status)
	}

	processing := f.seedOrder(t, buyer, offer, 1, enums.OrderStatusProcessing)
	_, err = f.svc.DeliverOrder(context.Background(), FulfillmentInput{OrderID: processing.ID, SellerID: seller})
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	seller := uuid.New()
	admin := uuid.New()
	offer := f.seedOffer(t, seller, "10.00", 5, enums.OfferStatusActive)
	order := f.seedOrder(t, buyer, offer, 1, enums.OrderStatusProcessing)

	_, err := f.svc.CancelOrder(context.Background(), AdminCancelInput{
		OrderID: order.ID, ActorUserID: buyer, ActorRole: enums.UserRoleBuyer,
	})
	assertCode(t, err, pkgerrors.CodeForbidden)

	detail, err := f.svc.CancelOrder(context.Background(), AdminCancelInput{
		OrderID: order.ID, ActorUserID: admin, ActorRole: enums.UserRoleAdmin,
	})
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if detail.Order.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", detail.Order.Status)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventOrderCancelled {
		t.Fatalf("expected order.cancelled event, got %+v", f.outbox.events)
	}

	_, err = f.svc.CancelOrder(context.Background(), AdminCancelInput{
		OrderID: order.ID, ActorUserID: admin, ActorRole: enums.UserRoleAdmin,
	})
	typed := assertCode(t, err, pkgerrors.CodeConflict)
	if typed.Message() != "order already cancelled" {
		t.Fatalf("unexpected message %q", typed.Message())
	}

	delivered := f.seedOrder(t, buyer, offer, 1, enums.OrderStatusDelivered)
	_, err = f.svc.CancelOrder(context.Background(), AdminCancelInput{
		OrderID: delivered.ID, ActorUserID: admin, ActorRole: enums.UserRoleAdmin,
	})
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestGetOrderDetails(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	seller := uuid.New()
	offer := f.seedOffer(t, seller, "12.50", 5, enums.OfferStatusActive)
	order := f.seedOrder(t, buyer, offer, 2, enums.OrderStatusProcessing)

	detail, err := f.svc.GetOrderDetails(context.Background(), DetailInput{
		OrderID: order.ID, ActorUserID: buyer, ActorRole: enums.UserRoleBuyer,
	})
	if err != nil {
		t.Fatalf("buyer read: %v", err)
	}
	if detail.Total.StringFixed(2) != "25.00" {
		t.Fatalf("expected derived total 25.00, got %s", detail.Total.StringFixed(2))
	}

	_, err = f.svc.GetOrderDetails(context.Background(), DetailInput{
		OrderID: order.ID, ActorUserID: uuid.New(), ActorRole: enums.UserRoleBuyer,
	})
	assertCode(t, err, pkgerrors.CodeForbidden)

	if _, err := f.svc.GetOrderDetails(context.Background(), DetailInput{
		OrderID: order.ID, ActorUserID: seller, ActorRole: enums.UserRoleSeller,
	}); err != nil {
		t.Fatalf("selling seller read: %v", err)
	}

	_, err = f.svc.GetOrderDetails(context.Background(), DetailInput{
		OrderID: order.ID, ActorUserID: uuid.New(), ActorRole: enums.UserRoleSeller,
	})
	assertCode(t, err, pkgerrors.CodeForbidden)

	if _, err := f.svc.GetOrderDetails(context.Background(), DetailInput{
		OrderID: order.ID, ActorUserID: uuid.New(), ActorRole: enums.UserRoleAdmin,
	}); err != nil {
		t.Fatalf("admin read: %v", err)
	}

	_, err = f.svc.GetOrderDetails(context.Background(), DetailInput{
		OrderID: uuid.New(), ActorUserID: buyer, ActorRole: enums.UserRoleBuyer,
	})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	otherBuyer := uuid.New()
	seller := uuid.New()
	otherSeller := uuid.New()
	offer := f.seedOffer(t, seller, "10.00", 9, enums.OfferStatusActive)
	otherOffer := f.seedOffer(t, otherSeller, "20.00", 9, enums.OfferStatusActive)

	f.seedOrder(t, buyer, offer, 1, enums.OrderStatusProcessing)
	f.seedOrder(t, buyer, otherOffer, 1, enums.OrderStatusShipped)
	f.seedOrder(t, otherBuyer, otherOffer, 1, enums.OrderStatusProcessing)

	mine, next, err := f.svc.ListBuyerOrders(context.Background(), buyer, ListInput{})
	if err != nil {
		t.Fatalf("list buyer orders: %v", err)
	}
	if len(mine) != 2 || next != "" {
		t.Fatalf("expected 2 buyer orders without cursor, got %d (%q)", len(mine), next)
	}

	sales, _, err := f.svc.ListSellerSales(context.Background(), seller, ListInput{})
	if err != nil {
		t.Fatalf("list seller sales: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("expected 1 sale, got %d", len(sales))
	}

	shipped := enums.OrderStatusShipped
	filtered, _, err := f.svc.ListAdminOrders(context.Background(), ListInput{Status: &shipped})
	if err != nil {
		t.Fatalf("list admin filtered: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 shipped order, got %d", len(filtered))
	}

	firstPage, cursor, err := f.svc.ListAdminOrders(context.Background(), ListInput{Limit: 2})
	if err != nil {
		t.Fatalf("list admin first page: %v", err)
	}
	if len(firstPage) != 2 || cursor == "" {
		t.Fatalf("expected full first page with cursor, got %d (%q)", len(firstPage), cursor)
	}
	secondPage, last, err := f.svc.ListAdminOrders(context.Background(), ListInput{Limit: 2, Cursor: cursor})
	if err != nil {
		t.Fatalf("list admin second page: %v", err)
	}
	if len(secondPage) != 1 || last != "" {
		t.Fatalf("expected final page of 1, got %d (%q)", len(secondPage), last)
	}

	_, _, err = f.svc.ListAdminOrders(context.Background(), ListInput{Cursor: "not-base64"})
	assertCode(t, err, pkgerrors.CodeValidation)
}
