package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/utils"
)

// ProductHandler serves the read-only catalog the cart depends on.
type ProductHandler struct {
	db *gorm.DB
}

func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

type productResponse struct {
	models.Product
	DiscountedPrice *float64 `json:"discounted_price"`
	EffectivePrice  float64  `json:"effective_price"`
}

func toProductResponse(p models.Product) productResponse {
	return productResponse{
		Product:         p,
		DiscountedPrice: p.DiscountedPrice(),
		EffectivePrice:  p.EffectivePrice(),
	}
}

// ListProducts returns active catalog entries, optionally filtered by
// category or search term.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Product{}).Where("is_active = ?", true)

	if category := strings.TrimSpace(c.Query("category")); category != "" {
		query = query.Where("category = ?", category)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("name ILIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.
		Order("display_order asc, name asc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&products).Error; err != nil {
		return err
	}

	data := make([]productResponse, 0, len(products))
	for _, p := range products {
		data = append(data, toProductResponse(p))
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetProduct returns one product by id or slug.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	ref := c.Params("id")

	var product models.Product
	var err error
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		err = h.db.First(&product, "id = ?", id).Error
	} else {
		err = h.db.First(&product, "slug = ?", ref).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "product not found")
	}
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": toProductResponse(product)})
}
