package models

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses. Cancelado is reachable from any state before entregado.
const (
	OrderStatusRecibido   = "recibido"
	OrderStatusPreparando = "preparando"
	OrderStatusEnCamino   = "en_camino"
	OrderStatusEntregado  = "entregado"
	OrderStatusCancelado  = "cancelado"
)

// Payment statuses (a parallel axis, independent of order status).
const (
	PaymentStatusPendiente = "pendiente"
	PaymentStatusAprobado  = "aprobado"
	PaymentStatusRechazado = "rechazado"
)

// Shipping methods.
const (
	ShippingRetiro     = "retiro"
	ShippingExpress    = "express"
	ShippingProgramado = "programado"
)

// Payment methods.
const (
	PaymentMercadoPago   = "mercadopago"
	PaymentPayPal        = "paypal"
	PaymentTransferencia = "transferencia"
)

// Reconciliation outcomes for rejected-payment stock restoration.
const (
	ReconcileOutcomeApproved = "aprobado"
	ReconcileOutcomeRejected = "rechazado_stock_restaurado"
)

type Order struct {
	BaseModel
	OrderNumber string     `gorm:"uniqueIndex" json:"order_number"`
	UserID      *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User        *User      `json:"user,omitempty"`

	// Guest buyer identity, used when UserID is nil.
	BuyerName  string `json:"buyer_name"`
	BuyerEmail string `json:"buyer_email"`
	BuyerPhone string `json:"buyer_phone"`

	RecipientName    string `json:"recipient_name"`
	RecipientPhone   string `json:"recipient_phone"`
	RecipientAddress string `json:"recipient_address"`

	DeliveryDate   time.Time `json:"delivery_date"`
	DeliveryWindow string    `json:"delivery_window"`
	ShippingMethod string    `json:"shipping_method"`
	ShippingCost   float64   `gorm:"column:costo_envio" json:"costo_envio"`

	PaymentMethod string `json:"payment_method"`
	Status        string `gorm:"column:estado;index" json:"estado"`
	PaymentStatus string `gorm:"column:estado_pago;index" json:"estado_pago"`
	Confirmed     bool   `gorm:"column:confirmado" json:"confirmado"`

	Total float64 `json:"total"`

	GiftMessage   string `json:"gift_message"`
	AnonymousGift bool   `json:"anonymous_gift"`

	// Client-supplied key making order creation a conditional insert.
	IdempotencyKey *string `gorm:"uniqueIndex" json:"idempotency_key,omitempty"`

	// Provider correlation + replay guard for webhook reconciliation.
	PreferenceID     string     `json:"preference_id"`
	PaymentID        string     `gorm:"index" json:"payment_id"`
	ReconciledAt     *time.Time `json:"reconciled_at"`
	ReconcileOutcome string     `json:"reconcile_outcome"`

	Items []OrderItem `json:"items,omitempty"`
}

// OrderItem copies the cart snapshot at order-creation time. UnitPrice
// must never follow later product price changes.
type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	ProductID   uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	LineTotal   float64   `json:"line_total"`
}
