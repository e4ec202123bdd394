package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

const defaultMercadoPagoBaseURL = "https://api.mercadopago.com"

// MercadoPago payment statuses seen in webhooks.
const (
	MPStatusApproved  = "approved"
	MPStatusRejected  = "rejected"
	MPStatusPending   = "pending"
	MPStatusInProcess = "in_process"
)

var mercadoPagoHTTPClient = &http.Client{Timeout: 15 * time.Second}

// MercadoPagoService builds ARS-denominated payment preferences and
// resolves payment status from webhook notifications.
type MercadoPagoService struct {
	accessToken string
	baseURL     string
	appBaseURL  string
	frontendURL string

	// Injectable for tests.
	fetchPayment func(ctx context.Context, paymentID string) (*MercadoPagoPayment, error)
}

func NewMercadoPagoService(accessToken, appBaseURL, frontendURL string) *MercadoPagoService {
	s := &MercadoPagoService{
		accessToken: accessToken,
		baseURL:     defaultMercadoPagoBaseURL,
		appBaseURL:  appBaseURL,
		frontendURL: frontendURL,
	}
	s.fetchPayment = s.getPaymentInfo
	return s
}

type mpPreferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type mpBackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type mpPreferenceRequest struct {
	Items             []mpPreferenceItem `json:"items"`
	BackURLs          mpBackURLs         `json:"back_urls"`
	AutoReturn        string             `json:"auto_return"`
	NotificationURL   string             `json:"notification_url"`
	ExternalReference string             `json:"external_reference"`
}

type mpPreferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// CreatePreference builds a provider preference with one ARS line per
// order item plus a synthetic shipping line when the order carries a
// shipping cost. The back URLs point at the frontend; the notification
// URL points back at this service so state is reconciled server-side
// before the buyer sees the redirect.
func (s *MercadoPagoService) CreatePreference(ctx context.Context, order *models.Order) (*RedirectInfo, error) {
	items := make([]mpPreferenceItem, 0, len(order.Items)+1)
	for _, item := range order.Items {
		items = append(items, mpPreferenceItem{
			Title:      item.ProductName,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			CurrencyID: "ARS",
		})
	}
	if order.ShippingCost > 0 {
		items = append(items, mpPreferenceItem{
			Title:      "Envío",
			Quantity:   1,
			UnitPrice:  order.ShippingCost,
			CurrencyID: "ARS",
		})
	}

	payload := mpPreferenceRequest{
		Items: items,
		BackURLs: mpBackURLs{
			Success: fmt.Sprintf("%s/pedidos/%s/pago/exito", s.frontendURL, order.ID),
			Failure: fmt.Sprintf("%s/pedidos/%s/pago/error", s.frontendURL, order.ID),
			Pending: fmt.Sprintf("%s/pedidos/%s/pago/pendiente", s.frontendURL, order.ID),
		},
		AutoReturn:        "approved",
		NotificationURL:   s.appBaseURL + "/api/webhook/mercadopago",
		ExternalReference: order.ID.String(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := mercadoPagoHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mercadopago preference request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mercadopago returned status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var pref mpPreferenceResponse
	if err := json.Unmarshal(respBody, &pref); err != nil {
		return nil, err
	}

	return &RedirectInfo{
		Provider:    models.PaymentMercadoPago,
		RedirectURL: pref.InitPoint,
		SandboxURL:  pref.SandboxInitPoint,
		PaymentID:   pref.ID,
	}, nil
}

// CreatePayment implements PaymentGateway.
func (s *MercadoPagoService) CreatePayment(ctx context.Context, order *models.Order) (*RedirectInfo, error) {
	return s.CreatePreference(ctx, order)
}

// MercadoPagoPayment is the subset of the provider's payment object the
// reconciliation logic needs.
type MercadoPagoPayment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	PaymentMethodID   string  `json:"payment_method_id"`
}

func (s *MercadoPagoService) getPaymentInfo(ctx context.Context, paymentID string) (*MercadoPagoPayment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := mercadoPagoHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mercadopago payment request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mercadopago returned status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var payment MercadoPagoPayment
	if err := json.Unmarshal(respBody, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentInfo fetches a single payment's status from the provider.
func (s *MercadoPagoService) GetPaymentInfo(ctx context.Context, paymentID string) (*MercadoPagoPayment, error) {
	return s.fetchPayment(ctx, paymentID)
}

// WebhookResult is a normalized provider notification. Valid is false
// for payloads this service cannot act on (wrong type, malformed id);
// those are acknowledged and dropped, never errors.
type WebhookResult struct {
	Valid             bool
	PaymentID         string
	Status            string
	ExternalReference string
	Amount            float64
	Method            string
}

type mpWebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		ID any `json:"id"`
	} `json:"data"`
}

// ProcessWebhookNotification extracts the payment id from a provider
// notification, fetches the full payment and normalizes it. Payloads
// with a missing or malformed data.id yield a not-valid result rather
// than an error.
func (s *MercadoPagoService) ProcessWebhookNotification(ctx context.Context, payload []byte) (*WebhookResult, error) {
	var notification mpWebhookPayload
	if err := json.Unmarshal(payload, &notification); err != nil {
		return &WebhookResult{Valid: false}, nil
	}

	if notification.Type != "payment" {
		return &WebhookResult{Valid: false}, nil
	}

	var paymentID string
	switch v := notification.Data.ID.(type) {
	case string:
		paymentID = v
	case float64:
		paymentID = strconv.FormatInt(int64(v), 10)
	default:
		return &WebhookResult{Valid: false}, nil
	}
	if paymentID == "" {
		return &WebhookResult{Valid: false}, nil
	}

	payment, err := s.fetchPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	return &WebhookResult{
		Valid:             true,
		PaymentID:         paymentID,
		Status:            payment.Status,
		ExternalReference: payment.ExternalReference,
		Amount:            payment.TransactionAmount,
		Method:            payment.PaymentMethodID,
	}, nil
}

func truncateBody(body []byte) string {
	const maxLen = 512
	if len(body) <= maxLen {
		return string(body)
	}
	return string(body[:maxLen])
}

var _ PaymentGateway = (*MercadoPagoService)(nil)
