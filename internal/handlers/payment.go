package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/services"
)

// PaymentHandler creates provider payments for existing orders and
// reconciles provider callbacks.
type PaymentHandler struct {
	db          *gorm.DB
	orders      *services.OrderService
	mercadoPago *services.MercadoPagoService
	paypal      *services.PayPalService
	transfer    *services.BankTransferGateway
}

func NewPaymentHandler(db *gorm.DB, orders *services.OrderService, mercadoPago *services.MercadoPagoService, paypal *services.PayPalService, transfer *services.BankTransferGateway) *PaymentHandler {
	return &PaymentHandler{
		db:          db,
		orders:      orders,
		mercadoPago: mercadoPago,
		paypal:      paypal,
		transfer:    transfer,
	}
}

func (h *PaymentHandler) gatewayFor(method string) (services.PaymentGateway, bool) {
	switch method {
	case models.PaymentMercadoPago:
		return h.mercadoPago, true
	case models.PaymentPayPal:
		return h.paypal, true
	case models.PaymentTransferencia:
		return h.transfer, true
	default:
		return nil, false
	}
}

// CreatePayment builds a provider payment for a still-unpaid order and
// returns the redirect the buyer must follow. Retrying after a provider
// failure reuses the same order; no duplicate order is ever created.
func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	order, err := h.orders.GetOrder(c.Context(), orderID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}

	if order.PaymentStatus == models.PaymentStatusAprobado {
		return fiber.NewError(fiber.StatusConflict, services.ErrOrderAlreadyPaid.Error())
	}
	if order.ReconciledAt != nil {
		// Rejection already restored this order's stock, so it cannot
		// carry a second payment attempt; the buyer has to place a new
		// order.
		return fiber.NewError(fiber.StatusConflict, "el pago fue rechazado y el stock liberado; genere un nuevo pedido")
	}

	gateway, ok := h.gatewayFor(order.PaymentMethod)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "unsupported payment method")
	}

	redirect, err := gateway.CreatePayment(c.Context(), order)
	if err != nil {
		if errors.Is(err, services.ErrPayPalAmountTooSmall) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		log.Printf("[Payment] provider payment creation failed for order %s: %v", order.OrderNumber, err)
		return fiber.NewError(fiber.StatusBadGateway, "no se pudo iniciar el pago, intente nuevamente")
	}

	updates := map[string]any{}
	if redirect.Provider == models.PaymentMercadoPago {
		updates["preference_id"] = redirect.PaymentID
	} else if redirect.PaymentID != "" {
		updates["payment_id"] = redirect.PaymentID
	}
	if len(updates) > 0 {
		if err := h.db.WithContext(c.Context()).Model(&models.Order{}).
			Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return err
		}
	}

	return c.JSON(fiber.Map{"success": true, "data": redirect})
}

// MercadoPagoWebhook reconciles provider notifications onto order
// state. It always acknowledges with 200 — the provider retries on any
// other status — and logs anomalies for manual reconciliation instead
// of surfacing them.
func (h *PaymentHandler) MercadoPagoWebhook(c *fiber.Ctx) error {
	result, err := h.mercadoPago.ProcessWebhookNotification(c.Context(), c.Body())
	if err != nil {
		log.Printf("[MercadoPago] webhook payment fetch failed: %v", err)
		return c.JSON(fiber.Map{"received": true})
	}

	if !result.Valid {
		return c.JSON(fiber.Map{"received": true})
	}

	if err := h.orders.ApplyPaymentResult(c.Context(), *result); err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			log.Printf("[MercadoPago] webhook references unknown order %q (payment %s)",
				result.ExternalReference, result.PaymentID)
			return c.JSON(fiber.Map{"received": true})
		}
		log.Printf("[MercadoPago] webhook reconciliation failed for payment %s: %v", result.PaymentID, err)
		return c.JSON(fiber.Map{"received": true})
	}

	return c.JSON(fiber.Map{"received": true})
}

// PayPalSuccess finalizes a payment after the buyer approved it on
// PayPal's site. The frontend passes through paymentId and PayerID from
// the return redirect.
func (h *PaymentHandler) PayPalSuccess(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	paymentID := c.Query("paymentId")
	payerID := c.Query("PayerID")
	if paymentID == "" || payerID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "paymentId and PayerID are required")
	}

	payment, err := h.paypal.ExecutePayment(c.Context(), paymentID, payerID)
	if err != nil {
		log.Printf("[PayPal] execute failed for order %s payment %s: %v", orderID, paymentID, err)
		return fiber.NewError(fiber.StatusBadGateway, "no se pudo confirmar el pago")
	}

	if payment.State != "approved" {
		return c.JSON(fiber.Map{
			"success": false,
			"data":    fiber.Map{"state": payment.State, "order_id": orderID},
		})
	}

	order, err := h.orders.MarkPaymentApproved(c.Context(), orderID, paymentID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

// PayPalCancel records that the buyer backed out; the order stays
// pendiente and payment can be retried.
func (h *PaymentHandler) PayPalCancel(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	log.Printf("[PayPal] payment cancelled by buyer for order %s", orderID)
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"order_id": orderID, "estado_pago": models.PaymentStatusPendiente}})
}

// PayPalDetails is a read-only status fetch for support tooling.
func (h *PaymentHandler) PayPalDetails(c *fiber.Ctx) error {
	paymentID := c.Query("paymentId")
	if paymentID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "paymentId is required")
	}

	payment, err := h.paypal.GetPaymentDetails(c.Context(), paymentID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "no se pudo consultar el pago")
	}

	return c.JSON(fiber.Map{"success": true, "data": payment})
}
