package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

// AbandonedCartHandler records checkout-abandonment snapshots and feeds
// the external reminder automation.
type AbandonedCartHandler struct {
	db *gorm.DB
}

func NewAbandonedCartHandler(db *gorm.DB) *AbandonedCartHandler {
	return &AbandonedCartHandler{db: db}
}

type abandonedCartItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type recordAbandonedCartRequest struct {
	Phone string              `json:"telefono"`
	Email string              `json:"email"`
	Name  string              `json:"nombre"`
	Items []abandonedCartItem `json:"items"`
	Total float64             `json:"total"`
}

// Record stores a snapshot when the frontend signals that the buyer
// left checkout. No payment or order side effects.
func (h *AbandonedCartHandler) Record(c *fiber.Ctx) error {
	var req recordAbandonedCartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Phone == "" && req.Email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "telefono or email is required")
	}
	if len(req.Items) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "items must not be empty")
	}

	itemsJSON, err := json.Marshal(req.Items)
	if err != nil {
		return err
	}

	record := models.AbandonedCart{
		Phone: req.Phone,
		Email: req.Email,
		Name:  req.Name,
		Items: itemsJSON,
		Total: req.Total,
	}

	if err := h.db.Create(&record).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": fiber.Map{"id": record.ID}})
}

// ListPending returns abandoned carts older than ?horas=N that have not
// been reminded, recovered or cancelled. Consumed by the n8n reminder
// workflow behind the API-key middleware.
func (h *AbandonedCartHandler) ListPending(c *fiber.Ctx) error {
	hours := 1
	if raw := c.Query("horas"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "horas must be a positive integer")
		}
		hours = parsed
	}

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	var carts []models.AbandonedCart
	if err := h.db.
		Where("created_at <= ? AND reminder_sent = ? AND recovered = ? AND cancelled = ?",
			cutoff, false, false, false).
		Order("created_at asc").
		Find(&carts).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": carts})
}

// MarkReminded flags a cart after the reminder workflow contacted the
// buyer, so the next poll skips it.
func (h *AbandonedCartHandler) MarkReminded(c *fiber.Ctx) error {
	id := c.Params("id")

	now := time.Now()
	result := h.db.Model(&models.AbandonedCart{}).
		Where("id = ?", id).
		Updates(map[string]any{"reminder_sent": true, "reminder_at": &now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "abandoned cart not found")
	}

	return c.JSON(fiber.Map{"success": true})
}
