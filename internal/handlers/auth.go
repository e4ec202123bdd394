package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/config"
	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/services"
	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/utils"
)

// AuthHandler manages registration and login.
type AuthHandler struct {
	db    *gorm.DB
	cfg   *config.Config
	carts *services.CartService
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config, carts *services.CartService) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, carts: carts}
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

// Register creates a new customer account.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		return fiber.NewError(fiber.StatusBadRequest, "email and a password of at least 8 characters are required")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return err
	}

	user := models.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
	}

	if err := h.db.Create(&user).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fiber.NewError(fiber.StatusConflict, "email already registered")
		}
		return err
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"token": token, "user": user},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a customer. When the request carries an
// X-Session-Token header, the anonymous session cart is merged into the
// user's DB cart exactly once.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var user models.User
	err := h.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !utils.CheckPassword(user.PasswordHash, req.Password)) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return err
	}

	if sessionToken := c.Get("X-Session-Token"); sessionToken != "" {
		if err := h.carts.MergeSessionCart(c.Context(), user.ID, sessionToken); err != nil {
			log.Printf("[Auth] session cart merge failed for user %s: %v", user.ID, err)
		}
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenExpires)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"token": token, "user": user},
	})
}
