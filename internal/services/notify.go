package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

// OrderNotifier consumes order lifecycle events. Delivery (email,
// WhatsApp) happens outside this service; dispatch must never block or
// fail the transaction that produced the event.
type OrderNotifier interface {
	NotifyOrderCreated(order models.Order)
	NotifyStatusChanged(order models.Order, oldStatus, newStatus string)
	NotifyPaymentResult(order models.Order, paymentStatus string)
}

var notifyHTTPClient = &http.Client{Timeout: 15 * time.Second}

// WebhookNotifier posts order events to the n8n automation webhook,
// which fans out to email and WhatsApp.
type WebhookNotifier struct {
	webhookURL string
}

func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{webhookURL: webhookURL}
}

type notifyItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type notifyEvent struct {
	Event         string       `json:"event"`
	OrderID       string       `json:"order_id"`
	OrderNumber   string       `json:"order_number"`
	Status        string       `json:"estado,omitempty"`
	OldStatus     string       `json:"estado_anterior,omitempty"`
	PaymentStatus string       `json:"estado_pago,omitempty"`
	BuyerName     string       `json:"buyer_name,omitempty"`
	BuyerEmail    string       `json:"buyer_email,omitempty"`
	BuyerPhone    string       `json:"buyer_phone,omitempty"`
	Total         float64      `json:"total"`
	Summary       string       `json:"summary,omitempty"`
	Items         []notifyItem `json:"items,omitempty"`
}

func (n *WebhookNotifier) send(event notifyEvent) {
	if n == nil || n.webhookURL == "" {
		log.Println("[Notify] webhook URL not configured, dropping event")
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Notify] failed to marshal event: %v", err)
		return
	}

	resp, err := notifyHTTPClient.Post(n.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Notify] failed to send %s event: %v", event.Event, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Notify] webhook returned status %d for %s event", resp.StatusCode, event.Event)
	}
}

func eventFromOrder(event string, order models.Order) notifyEvent {
	e := notifyEvent{
		Event:         event,
		OrderID:       order.ID.String(),
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		BuyerName:     order.BuyerName,
		BuyerEmail:    order.BuyerEmail,
		BuyerPhone:    order.BuyerPhone,
		Total:         order.Total,
	}
	for _, item := range order.Items {
		e.Items = append(e.Items, notifyItem{
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	e.Summary = orderSummary(order)
	return e
}

// NotifyOrderCreated reports a freshly committed order.
func (n *WebhookNotifier) NotifyOrderCreated(order models.Order) {
	n.send(eventFromOrder("pedido_creado", order))
}

// NotifyStatusChanged reports an estado transition, carrying both ends.
func (n *WebhookNotifier) NotifyStatusChanged(order models.Order, oldStatus, newStatus string) {
	e := eventFromOrder("estado_cambiado", order)
	e.OldStatus = oldStatus
	e.Status = newStatus
	n.send(e)
}

// NotifyPaymentResult reports a payment-status change from a provider.
func (n *WebhookNotifier) NotifyPaymentResult(order models.Order, paymentStatus string) {
	e := eventFromOrder("resultado_pago", order)
	e.PaymentStatus = paymentStatus
	n.send(e)
}

// FormatARS formats an ARS amount with thousand separators for
// human-readable notification text.
func FormatARS(amount float64) string {
	intAmount := int64(amount)
	str := fmt.Sprintf("%d", intAmount)

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(".")
		}
		result.WriteRune(digit)
	}

	return "$" + result.String() + " ARS"
}

func orderSummary(order models.Order) string {
	var items strings.Builder
	for i, item := range order.Items {
		items.WriteString(fmt.Sprintf("%d. %s x%d — %s\n",
			i+1, item.ProductName, item.Quantity, FormatARS(item.LineTotal)))
	}

	return strings.TrimSpace(fmt.Sprintf(`Pedido %s
%s
Envío: %s (%s)
Total: %s`,
		order.OrderNumber,
		items.String(),
		order.ShippingMethod,
		FormatARS(order.ShippingCost),
		FormatARS(order.Total),
	))
}
