package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/services"
)

// ShippingHandler exposes the shipping-cost calculator.
type ShippingHandler struct {
	db       *gorm.DB
	shipping *services.ShippingService
}

func NewShippingHandler(db *gorm.DB, shipping *services.ShippingService) *ShippingHandler {
	return &ShippingHandler{db: db, shipping: shipping}
}

type calculateShippingRequest struct {
	DistanceKm     float64  `json:"distance_km"`
	ShippingMethod string   `json:"shipping_method"`
	OrderAmount    float64  `json:"order_amount"`
	CartItems      []string `json:"cart_items"`
}

// Calculate resolves a shipping quote for the given method and distance.
// Out-of-coverage is a 200 with out_of_coverage=true, not an error.
func (h *ShippingHandler) Calculate(c *fiber.Ctx) error {
	var req calculateShippingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	allFree, err := h.allItemsFreeShipping(c, req.CartItems)
	if err != nil {
		return err
	}

	quote, err := h.shipping.Quote(c.Context(), services.QuoteInput{
		ShippingMethod:   req.ShippingMethod,
		DistanceKm:       req.DistanceKm,
		OrderAmount:      req.OrderAmount,
		AllItemsFreeShip: allFree,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidShippingMethod),
			errors.Is(err, services.ErrInvalidDistance):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": quote})
}

// allItemsFreeShipping checks the per-product free-shipping flag for the
// product ids the frontend sent along.
func (h *ShippingHandler) allItemsFreeShipping(c *fiber.Ctx, cartItems []string) (bool, error) {
	if len(cartItems) == 0 {
		return false, nil
	}

	ids := make([]uuid.UUID, 0, len(cartItems))
	for _, raw := range cartItems {
		id, err := uuid.Parse(raw)
		if err != nil {
			return false, fiber.NewError(fiber.StatusBadRequest, "invalid product id in cart_items")
		}
		ids = append(ids, id)
	}

	var count int64
	if err := h.db.WithContext(c.Context()).Model(&models.Product{}).
		Where("id IN ? AND envio_gratis = ?", ids, true).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count == int64(len(ids)), nil
}
