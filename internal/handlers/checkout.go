package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/services"
)

// CheckoutHandler turns the current cart into an order.
type CheckoutHandler struct {
	checkout *services.CheckoutService
}

func NewCheckoutHandler(checkout *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

type checkoutRequest struct {
	BuyerName  string `json:"buyer_name"`
	BuyerEmail string `json:"buyer_email"`
	BuyerPhone string `json:"buyer_phone"`

	RecipientName    string `json:"recipient_name"`
	RecipientPhone   string `json:"recipient_phone"`
	RecipientAddress string `json:"recipient_address"`

	DeliveryDate   string  `json:"delivery_date"`
	DeliveryWindow string  `json:"delivery_window"`
	ShippingMethod string  `json:"shipping_method"`
	DistanceKm     float64 `json:"distance_km"`
	PaymentMethod  string  `json:"payment_method"`

	GiftMessage   string `json:"gift_message"`
	AnonymousGift bool   `json:"anonymous_gift"`

	IdempotencyKey string `json:"idempotency_key"`
}

// Checkout creates an order from the caller's cart. 201 with the order
// id and number on success; validation and stock failures come back as
// 4xx with structured detail.
func (h *CheckoutHandler) Checkout(c *fiber.Ctx) error {
	ref, err := cartRef(c)
	if err != nil {
		return err
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var deliveryDate time.Time
	if req.DeliveryDate != "" {
		deliveryDate, err = time.Parse("2006-01-02", req.DeliveryDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid delivery_date, expected YYYY-MM-DD")
		}
	}

	order, err := h.checkout.Checkout(c.Context(), services.CheckoutInput{
		Cart:             ref,
		BuyerName:        req.BuyerName,
		BuyerEmail:       req.BuyerEmail,
		BuyerPhone:       req.BuyerPhone,
		RecipientName:    req.RecipientName,
		RecipientPhone:   req.RecipientPhone,
		RecipientAddress: req.RecipientAddress,
		DeliveryDate:     deliveryDate,
		DeliveryWindow:   req.DeliveryWindow,
		ShippingMethod:   req.ShippingMethod,
		DistanceKm:       req.DistanceKm,
		PaymentMethod:    req.PaymentMethod,
		GiftMessage:      req.GiftMessage,
		AnonymousGift:    req.AnonymousGift,
		IdempotencyKey:   req.IdempotencyKey,
	})
	if err != nil {
		return checkoutError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":           order.ID,
			"order_number": order.OrderNumber,
			"estado":       order.Status,
			"estado_pago":  order.PaymentStatus,
			"total":        order.Total,
			"costo_envio":  order.ShippingCost,
		},
	})
}

func checkoutError(c *fiber.Ctx, err error) error {
	var stockErr *services.InsufficientStockError
	if errors.As(err, &stockErr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "insufficient_stock",
			"detail": fiber.Map{
				"product_id":   stockErr.ProductID,
				"product_name": stockErr.ProductName,
				"requested":    stockErr.Requested,
				"available":    stockErr.Available,
			},
		})
	}

	var inactiveErr *services.ProductInactiveError
	if errors.As(err, &inactiveErr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "product_inactive",
			"detail":  fiber.Map{"product_id": inactiveErr.ProductID, "product_name": inactiveErr.ProductName},
		})
	}

	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrInvalidShippingMethod),
		errors.Is(err, services.ErrOutOfCoverage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return err
}
