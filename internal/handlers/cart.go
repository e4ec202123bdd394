package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/middleware"
	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/services"
)

// CartHandler manages cart endpoints for both anonymous and
// authenticated buyers.
type CartHandler struct {
	carts *services.CartService
}

func NewCartHandler(carts *services.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

// cartRef resolves the cart owner: the authenticated user when a valid
// token was presented, the X-Session-Token header otherwise.
func cartRef(c *fiber.Ctx) (services.CartRef, error) {
	if userID, ok := middleware.GetCurrentUserID(c); ok {
		return services.CartRef{UserID: &userID}, nil
	}

	token := c.Get("X-Session-Token")
	if token == "" {
		return services.CartRef{}, fiber.NewError(fiber.StatusBadRequest, "missing X-Session-Token header")
	}
	return services.CartRef{SessionToken: token}, nil
}

// GetCart returns the cart's lines and total.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	ref, err := cartRef(c)
	if err != nil {
		return err
	}

	lines, err := h.carts.Items(c.Context(), ref)
	if err != nil {
		return err
	}

	total, err := h.carts.TotalPrice(c.Context(), ref)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"items": lines, "total": total},
	})
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// AddItem adds a product to the cart, incrementing any existing line.
// The response carries the clamp signal so the UI can tell the buyer
// when stock cut the requested quantity short.
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	ref, err := cartRef(c)
	if err != nil {
		return err
	}

	var req addItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product_id")
	}

	result, err := h.carts.Add(c.Context(), ref, productID, req.Quantity, false)
	if err != nil {
		return cartError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": result})
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateItem sets an absolute quantity; zero or less removes the line.
func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	ref, err := cartRef(c)
	if err != nil {
		return err
	}

	productID, err := uuid.Parse(c.Params("productID"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	var req updateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.carts.UpdateQuantity(c.Context(), ref, productID, req.Quantity)
	if err != nil {
		return cartError(err)
	}

	return c.JSON(fiber.Map{"success": true, "data": result})
}

// RemoveItem drops a product; removing an absent product succeeds.
func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	ref, err := cartRef(c)
	if err != nil {
		return err
	}

	productID, err := uuid.Parse(c.Params("productID"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	if err := h.carts.Remove(c.Context(), ref, productID); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true})
}

// ClearCart empties the cart.
func (h *CartHandler) ClearCart(c *fiber.Ctx) error {
	ref, err := cartRef(c)
	if err != nil {
		return err
	}

	if err := h.carts.Clear(c.Context(), ref); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true})
}

// MergeCart copies the session cart into the authenticated user's DB
// cart. Requires auth plus the session token being migrated.
func (h *CartHandler) MergeCart(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	sessionToken := c.Get("X-Session-Token")
	if sessionToken == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing X-Session-Token header")
	}

	if err := h.carts.MergeSessionCart(c.Context(), userID, sessionToken); err != nil {
		return err
	}

	lines, err := h.carts.Items(c.Context(), services.CartRef{UserID: &userID})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"items": lines}})
}

func cartError(err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidQuantity):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, "product not found")
	default:
		return err
	}
}
