package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/events"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/utils"
)

// CheckoutService drives a cart through PayPal order creation, capture and
// final order persistence.
type CheckoutService struct {
	db        *gorm.DB
	gateway   PaymentGateway
	publisher events.Publisher
	notifier  OrderNotifier
	currency  string
	logger    *slog.Logger
	now       func() time.Time

	// announcing tracks post-commit event and notification deliveries.
	announcing sync.WaitGroup

	// afterStock runs inside the finalize transaction once stock is
	// decremented; tests use it to inject failures.
	afterStock func(tx *gorm.DB) error
}

func NewCheckoutService(db *gorm.DB, gateway PaymentGateway, publisher events.Publisher, notifier OrderNotifier, currency string, logger *slog.Logger) *CheckoutService {
	if currency == "" {
		currency = "USD"
	}
	return &CheckoutService{
		db:        db,
		gateway:   gateway,
		publisher: publisher,
		notifier:  notifier,
		currency:  currency,
		logger:    logger,
		now:       time.Now,
	}
}

type CreatePaymentInput struct {
	UserID     uuid.UUID
	Email      string
	AddressID  uuid.UUID
	CouponCode string
}

// Quote is the priced content of a cart.
type Quote struct {
	Items    []models.CheckoutSessionItem
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	Coupon   *models.Coupon
}

// LoadCart returns the user's cart with items and products, or nil when the
// user has none.
func LoadCart(db *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := db.Preload("Items", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at asc")
	}).Preload("Items.Product").
		Where("user_id = ?", userID).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindCoupon looks a coupon up by its case-insensitive code.
func FindCoupon(db *gorm.DB, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := db.Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// PriceCart validates the cart against current stock and applies the coupon.
func (s *CheckoutService) PriceCart(userID uuid.UUID, couponCode string) (*Quote, error) {
	cart, err := LoadCart(s.db, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, ErrCartEmpty
	}

	quote := &Quote{Subtotal: decimal.Zero, Discount: decimal.Zero}
	for _, item := range cart.Items {
		p := item.Product
		if p == nil {
			return nil, ErrProductUnavailable
		}
		if item.Quantity > p.Stock {
			return nil, fmt.Errorf("%w: only %d of %s left", ErrInsufficientStock, p.Stock, p.Name)
		}
		image := ""
		if len(p.Images) > 0 {
			image = p.Images[0]
		}
		quote.Items = append(quote.Items, models.CheckoutSessionItem{
			ProductID:       p.ID,
			ProductName:     p.Name,
			ProductCategory: p.Category,
			ProductImage:    image,
			Size:            item.Size,
			Color:           item.Color,
			Price:           p.Price,
			Quantity:        item.Quantity,
		})
		quote.Subtotal = quote.Subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	if strings.TrimSpace(couponCode) != "" {
		coupon, err := FindCoupon(s.db, couponCode)
		if err != nil {
			return nil, err
		}
		if err := ValidateCoupon(coupon, s.now()); err != nil {
			return nil, err
		}
		quote.Coupon = coupon
		quote.Discount = CouponDiscount(quote.Subtotal, coupon.DiscountPercent)
	}

	quote.Total = quote.Subtotal.Sub(quote.Discount)
	return quote, nil
}

// CreatePaymentOrder prices the cart, opens a PayPal order and records a
// checkout session holding the item snapshot.
func (s *CheckoutService) CreatePaymentOrder(ctx context.Context, in CreatePaymentInput) (*models.CheckoutSession, error) {
	if !utils.IsValidEmail(in.Email) {
		return nil, ErrInvalidEmail
	}

	var address models.Address
	if err := s.db.First(&address, "id = ? AND user_id = ?", in.AddressID, in.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}

	quote, err := s.PriceCart(in.UserID, in.CouponCode)
	if err != nil {
		return nil, err
	}
	if !quote.Total.IsPositive() {
		return nil, ErrInvalidTotal
	}

	sessionID := uuid.New()
	req := PaymentOrderRequest{
		ReferenceID: sessionID.String(),
		Currency:    s.currency,
		ItemTotal:   quote.Subtotal,
		Discount:    quote.Discount,
		Total:       quote.Total,
	}
	for _, it := range quote.Items {
		req.Items = append(req.Items, PaymentItem{
			Name:       it.ProductName,
			SKU:        it.ProductID.String(),
			UnitAmount: it.Price,
			Quantity:   it.Quantity,
		})
	}

	order, err := s.gateway.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	session := models.CheckoutSession{
		UserID:          in.UserID,
		ProviderOrderID: order.ID,
		AddressID:       address.ID,
		Subtotal:        quote.Subtotal,
		Discount:        quote.Discount,
		Total:           quote.Total,
		Currency:        s.currency,
		Status:          models.CheckoutCreated,
		Items:           quote.Items,
	}
	session.ID = sessionID
	if quote.Coupon != nil {
		session.CouponID = &quote.Coupon.ID
		session.CouponCode = quote.Coupon.Code
	}

	if err := s.db.Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *CheckoutService) findSession(userID uuid.UUID, providerOrderID string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := s.db.Preload("Items").
		First(&session, "provider_order_id = ? AND user_id = ?", providerOrderID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCheckoutNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CapturePayment captures the PayPal order. A provider failure leaves the
// session untouched so the user can retry.
func (s *CheckoutService) CapturePayment(ctx context.Context, userID uuid.UUID, providerOrderID string) (*models.CheckoutSession, error) {
	session, err := s.findSession(userID, providerOrderID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case models.CheckoutCaptured, models.CheckoutFinalized:
		return session, nil
	case models.CheckoutRefunded:
		return nil, ErrCheckoutRefunded
	case models.CheckoutCreated:
	default:
		return nil, ErrCheckoutState
	}

	capture, err := s.gateway.CaptureOrder(ctx, providerOrderID)
	if err != nil {
		return nil, err
	}

	if err := s.db.Model(session).Updates(map[string]interface{}{
		"status":         models.CheckoutCaptured,
		"payment_id":     capture.PaymentID,
		"payment_status": capture.Status,
	}).Error; err != nil {
		s.logger.Error("payment captured but session update failed",
			"provider_order_id", providerOrderID, "payment_id", capture.PaymentID, "error", err)
		return nil, err
	}
	if capture.Status == models.PaymentStatusPending {
		s.logger.Warn("paypal capture pending, funds held by provider",
			"provider_order_id", providerOrderID, "payment_id", capture.PaymentID)
	}
	session.Status = models.CheckoutCaptured
	session.PaymentID = capture.PaymentID
	session.PaymentStatus = capture.Status
	return session, nil
}

// FinalizeOrder persists the order for a captured payment. Replaying it for
// the same payment returns the existing order with created=false.
func (s *CheckoutService) FinalizeOrder(ctx context.Context, userID uuid.UUID, providerOrderID string) (*models.Order, bool, error) {
	session, err := s.findSession(userID, providerOrderID)
	if err != nil {
		return nil, false, err
	}

	switch session.Status {
	case models.CheckoutFinalized:
		order, err := s.orderByPayment(session.PaymentID)
		return order, false, err
	case models.CheckoutRefunded:
		return nil, false, ErrCheckoutRefunded
	case models.CheckoutCaptured:
	default:
		return nil, false, ErrPaymentNotCaptured
	}

	return s.finalize(ctx, session)
}

func (s *CheckoutService) orderByPayment(paymentID string) (*models.Order, error) {
	var order models.Order
	if err := s.db.Preload("Items").First(&order, "payment_id = ?", paymentID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *CheckoutService) finalize(ctx context.Context, session *models.CheckoutSession) (*models.Order, bool, error) {
	if existing, err := s.orderByPayment(session.PaymentID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	order := models.Order{
		UserID:          session.UserID,
		Subtotal:        session.Subtotal,
		Discount:        session.Discount,
		Total:           session.Total,
		Currency:        session.Currency,
		CouponCode:      session.CouponCode,
		Status:          models.OrderStatusPending,
		PaymentMethod:   models.PaymentMethodPayPal,
		PaymentStatus:   models.PaymentStatusCompleted,
		PaymentID:       session.PaymentID,
		ProviderOrderID: session.ProviderOrderID,
		PlacedAt:        s.now(),
	}
	if session.PaymentStatus == models.PaymentStatusPending {
		order.PaymentStatus = models.PaymentStatusPending
	}

	var address models.Address
	if err := s.db.First(&address, "id = ?", session.AddressID).Error; err == nil {
		order.AddressID = &address.ID
		order.ShipFullName = address.FullName
		order.ShipAddressLine = address.AddressLine
		order.ShipCity = address.City
		order.ShipPostalCode = address.PostalCode
		order.ShipCountry = address.Country
		order.ShipPhone = address.Phone
	}

	for _, it := range session.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			ProductCategory: it.ProductCategory,
			ProductImage:    it.ProductImage,
			Size:            it.Size,
			Color:           it.Color,
			Price:           it.Price,
			Quantity:        it.Quantity,
			LineTotal:       it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for _, it := range session.Items {
			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", it.ProductID, it.Quantity).
				Updates(map[string]interface{}{
					"stock":      gorm.Expr("stock - ?", it.Quantity),
					"sold_count": gorm.Expr("sold_count + ?", it.Quantity),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", ErrInsufficientStock, it.ProductName)
			}
		}

		if s.afterStock != nil {
			if err := s.afterStock(tx); err != nil {
				return err
			}
		}

		var cart models.Cart
		err := tx.Where("user_id = ?", session.UserID).First(&cart).Error
		switch {
		case err == nil:
			if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
				return err
			}
			if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartMergeReceipt{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&cart).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if session.CouponID != nil {
			res := tx.Model(&models.Coupon{}).
				Where("id = ? AND usage_count < usage_limit", *session.CouponID).
				Update("usage_count", gorm.Expr("usage_count + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrCouponExhausted
			}
		}

		return tx.Model(&models.CheckoutSession{}).
			Where("id = ?", session.ID).
			Updates(map[string]interface{}{
				"status":     models.CheckoutFinalized,
				"order_id":   order.ID,
				"last_error": "",
			}).Error
	})
	if err != nil {
		// A concurrent finalize for the same payment may have won the unique index.
		if existing, ferr := s.orderByPayment(session.PaymentID); ferr == nil {
			return existing, false, nil
		}
		s.logger.Error("order finalization rolled back after payment capture, needs reconciliation",
			"provider_order_id", session.ProviderOrderID,
			"payment_id", session.PaymentID,
			"error", err)
		if uerr := s.db.Model(&models.CheckoutSession{}).
			Where("id = ?", session.ID).
			Updates(map[string]interface{}{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": truncate(err.Error(), 1024),
			}).Error; uerr != nil {
			s.logger.Error("failed to record finalization attempt", "session_id", session.ID, "error", uerr)
		}
		return nil, false, err
	}

	s.logger.Info("order finalized", "order_id", order.ID, "payment_id", order.PaymentID, "total", order.Total.StringFixed(2))
	s.announcing.Add(1)
	go func() {
		defer s.announcing.Done()
		s.announce(order)
	}()
	return &order, true, nil
}

// Wait blocks until every pending order announcement has been delivered or
// has failed. Call it on shutdown before closing the publisher.
func (s *CheckoutService) Wait() {
	s.announcing.Wait()
}

// announce publishes the order event and notifies staff; failures are logged only.
func (s *CheckoutService) announce(order models.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	evt := events.OrderCreated{
		OrderID:    order.ID,
		UserID:     order.UserID,
		PaymentID:  order.PaymentID,
		Total:      order.Total,
		Currency:   order.Currency,
		CouponCode: order.CouponCode,
		PlacedAt:   order.PlacedAt,
	}
	for _, it := range order.Items {
		evt.Items = append(evt.Items, events.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if err := s.publisher.Publish(ctx, events.TopicOrderCreated, order.ID.String(), evt); err != nil {
		s.logger.Warn("publish order created failed", "order_id", order.ID, "error", err)
	}

	if s.notifier == nil {
		return
	}
	var user models.User
	if err := s.db.Select("name", "email").First(&user, "id = ?", order.UserID).Error; err != nil {
		s.logger.Warn("order customer lookup failed", "order_id", order.ID, "user_id", order.UserID, "error", err)
	}

	note := OrderNotification{
		OrderID:    order.ID.String(),
		Customer:   user.Name,
		Email:      user.Email,
		Discount:   order.Discount,
		Total:      order.Total,
		Currency:   order.Currency,
		CouponCode: order.CouponCode,
		ShipTo:     strings.Trim(strings.Join([]string{order.ShipAddressLine, order.ShipCity, order.ShipCountry}, ", "), ", "),
	}
	for _, it := range order.Items {
		note.Items = append(note.Items, OrderItemNotification{
			Name:     it.ProductName,
			Size:     it.Size,
			Color:    it.Color,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}
	if err := s.notifier.NotifyNewOrder(ctx, note); err != nil {
		s.logger.Warn("order notification failed", "order_id", order.ID, "error", err)
	}
}

// truncate caps s at n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
