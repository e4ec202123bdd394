package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

var ErrOutOfCoverage = errors.New("la dirección está fuera del área de cobertura")

// CheckoutInput carries everything needed to turn a cart into an order.
type CheckoutInput struct {
	Cart CartRef

	// Guest buyer identity; ignored when Cart.UserID is set.
	BuyerName  string
	BuyerEmail string
	BuyerPhone string

	RecipientName    string
	RecipientPhone   string
	RecipientAddress string

	DeliveryDate   time.Time
	DeliveryWindow string
	ShippingMethod string
	DistanceKm     float64
	PaymentMethod  string

	GiftMessage   string
	AnonymousGift bool

	// Optional client-generated key making order creation exactly-once:
	// a retried checkout with the same key returns the first order.
	IdempotencyKey string
}

// CheckoutService is the only place allowed to turn a cart into an
// order. It enforces stock and atomicity: order, order items and stock
// decrements commit together or not at all.
type CheckoutService struct {
	db       *gorm.DB
	carts    *CartService
	shipping *ShippingService
	notifier OrderNotifier
}

func NewCheckoutService(db *gorm.DB, carts *CartService, shipping *ShippingService, notifier OrderNotifier) *CheckoutService {
	return &CheckoutService{db: db, carts: carts, shipping: shipping, notifier: notifier}
}

// Checkout validates the cart against live stock and atomically creates
// the order. The order-created notification fires only after the
// transaction commits.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (*models.Order, error) {
	if err := validateCheckoutInput(in); err != nil {
		return nil, err
	}

	if in.IdempotencyKey != "" {
		var existing models.Order
		err := s.db.WithContext(ctx).
			Preload("Items").
			Where("idempotency_key = ?", in.IdempotencyKey).
			First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	lines, err := s.carts.Items(ctx, in.Cart)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	// Lock product rows in a stable order so concurrent checkouts
	// sharing products cannot deadlock on each other.
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ProductID.String() < lines[j].ProductID.String()
	})

	var subtotal float64
	for _, line := range lines {
		subtotal += line.UnitPrice * float64(line.Quantity)
	}
	subtotal = Round2(subtotal)

	allFree, err := s.carts.AllItemsFreeShipping(ctx, in.Cart)
	if err != nil {
		return nil, err
	}

	quote, err := s.shipping.Quote(ctx, QuoteInput{
		ShippingMethod:   in.ShippingMethod,
		DistanceKm:       in.DistanceKm,
		OrderAmount:      subtotal,
		AllItemsFreeShip: allFree,
	})
	if err != nil {
		return nil, err
	}
	if quote.OutOfCoverage {
		return nil, ErrOutOfCoverage
	}

	order := &models.Order{
		OrderNumber:      generateOrderNumber(),
		UserID:           in.Cart.UserID,
		BuyerName:        in.BuyerName,
		BuyerEmail:       in.BuyerEmail,
		BuyerPhone:       in.BuyerPhone,
		RecipientName:    in.RecipientName,
		RecipientPhone:   in.RecipientPhone,
		RecipientAddress: in.RecipientAddress,
		DeliveryDate:     in.DeliveryDate,
		DeliveryWindow:   in.DeliveryWindow,
		ShippingMethod:   in.ShippingMethod,
		ShippingCost:     quote.Cost,
		PaymentMethod:    in.PaymentMethod,
		Status:           models.OrderStatusRecibido,
		PaymentStatus:    models.PaymentStatusPendiente,
		GiftMessage:      in.GiftMessage,
		AnonymousGift:    in.AnonymousGift,
		Total:            Round2(subtotal + quote.Cost),
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		order.IdempotencyKey = &key
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range lines {
			var product models.Product
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", line.ProductID).
				First(&product).Error; err != nil {
				return err
			}

			if !product.IsActive {
				return &ProductInactiveError{ProductID: product.ID, ProductName: product.Name}
			}
			if product.Stock < line.Quantity {
				return &InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Requested:   line.Quantity,
					Available:   product.Stock,
				}
			}

			if err := tx.Model(&models.Product{}).
				Where("id = ?", product.ID).
				UpdateColumn("stock", gorm.Expr("stock - ?", line.Quantity)).Error; err != nil {
				return err
			}

			order.Items = append(order.Items, models.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				LineTotal:   Round2(line.UnitPrice * float64(line.Quantity)),
			})
		}

		if err := tx.Create(order).Error; err != nil {
			return err
		}

		// DB-backed carts are emptied in the same transaction as the
		// order insert; session carts have no transactional backing and
		// are torn down after commit.
		return s.carts.ClearWithTx(ctx, tx, in.Cart)
	})
	if err != nil {
		// A concurrent retry with the same idempotency key may have won
		// the conditional insert; return that order instead of failing.
		if in.IdempotencyKey != "" && isUniqueViolation(err) {
			var existing models.Order
			if lookupErr := s.db.WithContext(ctx).
				Preload("Items").
				Where("idempotency_key = ?", in.IdempotencyKey).
				First(&existing).Error; lookupErr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}

	if in.Cart.UserID == nil {
		if err := s.carts.Clear(ctx, in.Cart); err != nil {
			log.Printf("[Checkout] failed to clear session cart after order %s: %v", order.OrderNumber, err)
		}
	}

	if s.notifier != nil {
		o := *order
		go s.notifier.NotifyOrderCreated(o)
	}

	return order, nil
}

func validateCheckoutInput(in CheckoutInput) error {
	switch in.PaymentMethod {
	case models.PaymentMercadoPago, models.PaymentPayPal, models.PaymentTransferencia:
	default:
		return &ValidationError{Msg: fmt.Sprintf("método de pago inválido: %q", in.PaymentMethod)}
	}

	switch in.ShippingMethod {
	case models.ShippingRetiro, models.ShippingExpress, models.ShippingProgramado:
	default:
		return ErrInvalidShippingMethod
	}

	if in.Cart.UserID == nil {
		if strings.TrimSpace(in.BuyerName) == "" || strings.TrimSpace(in.BuyerEmail) == "" {
			return &ValidationError{Msg: "nombre y email del comprador son obligatorios"}
		}
	}

	if in.ShippingMethod != models.ShippingRetiro && strings.TrimSpace(in.RecipientAddress) == "" {
		return &ValidationError{Msg: "la dirección del destinatario es obligatoria"}
	}

	return nil
}

func generateOrderNumber() string {
	return fmt.Sprintf("FC-%d", time.Now().UnixNano()%1000000000)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key")
}
