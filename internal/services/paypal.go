package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

const paypalTokenLeeway = 30 * time.Second

var (
	paypalHTTPClient = &http.Client{Timeout: 30 * time.Second}

	ErrPayPalAmountTooSmall = errors.New("el total convertido es menor al mínimo de PayPal (USD 0.01)")
)

// PayPalService builds USD-denominated payments. Every ARS amount is
// converted through CurrencyService exactly once, with the margin
// applied; ARS values are never sent to PayPal directly.
type PayPalService struct {
	clientID    string
	secret      string
	baseURL     string
	frontendURL string
	currency    *CurrencyService

	// Token cache guarded by a mutex so concurrent requests reuse one
	// OAuth token until it expires.
	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

func NewPayPalService(clientID, secret, baseURL, frontendURL string, currency *CurrencyService) *PayPalService {
	return &PayPalService{
		clientID:    clientID,
		secret:      secret,
		baseURL:     strings.TrimRight(baseURL, "/"),
		frontendURL: frontendURL,
		currency:    currency,
	}
}

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *PayPalService) getToken(ctx context.Context) (string, error) {
	s.tokenMu.RLock()
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		t := s.token
		s.tokenMu.RUnlock()
		return t, nil
	}
	s.tokenMu.RUnlock()

	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	// Double-check after acquiring write lock.
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal token request build: %w", err)
	}
	req.SetBasicAuth(s.clientID, s.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := paypalHTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal token request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("paypal token endpoint returned status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var tokenResp paypalTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", err
	}
	if tokenResp.AccessToken == "" {
		return "", errors.New("paypal token response missing access_token")
	}

	s.token = tokenResp.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - paypalTokenLeeway)
	return s.token, nil
}

type paypalAmount struct {
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

type paypalItem struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

type paypalItemList struct {
	Items []paypalItem `json:"items"`
}

type paypalTransaction struct {
	Amount      paypalAmount   `json:"amount"`
	ItemList    paypalItemList `json:"item_list"`
	Description string         `json:"description"`
}

type paypalPayer struct {
	PaymentMethod string `json:"payment_method"`
}

type paypalRedirectURLs struct {
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

type paypalPaymentRequest struct {
	Intent       string              `json:"intent"`
	Payer        paypalPayer         `json:"payer"`
	Transactions []paypalTransaction `json:"transactions"`
	RedirectURLs paypalRedirectURLs  `json:"redirect_urls"`
}

// PayPalPayment is the provider's payment object, trimmed to the fields
// this service reads.
type PayPalPayment struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// CreatePayment converts every order line and the shipping cost to USD
// (per-line rounding, so the USD total can differ by a cent from a
// single conversion of the ARS total) and creates the PayPal payment.
// Totals under USD 0.01 are rejected.
func (s *PayPalService) CreatePayment(ctx context.Context, order *models.Order) (*RedirectInfo, error) {
	items := make([]paypalItem, 0, len(order.Items)+1)
	var totalUSD, totalARS float64

	for _, item := range order.Items {
		conv := s.currency.ConvertARSToUSD(item.UnitPrice, true)
		lineUSD := Round2(conv.AmountUSD * float64(item.Quantity))
		totalUSD += lineUSD
		totalARS += item.LineTotal
		items = append(items, paypalItem{
			Name:     item.ProductName,
			Quantity: fmt.Sprintf("%d", item.Quantity),
			Price:    fmt.Sprintf("%.2f", conv.AmountUSD),
			Currency: "USD",
		})
	}

	if order.ShippingCost > 0 {
		conv := s.currency.ConvertARSToUSD(order.ShippingCost, true)
		totalUSD += conv.AmountUSD
		totalARS += order.ShippingCost
		items = append(items, paypalItem{
			Name:     "Envío",
			Quantity: "1",
			Price:    fmt.Sprintf("%.2f", conv.AmountUSD),
			Currency: "USD",
		})
	}

	totalUSD = Round2(totalUSD)
	if totalUSD < 0.01 {
		return nil, ErrPayPalAmountTooSmall
	}

	rate, source := s.currency.GetUSDRate()
	conversion := &Conversion{
		AmountARS:     Round2(totalARS),
		AmountUSD:     totalUSD,
		OfficialRate:  rate,
		EffectiveRate: rate / s.currency.Margin(),
		MarginApplied: true,
		RateSource:    source,
	}

	payload := paypalPaymentRequest{
		Intent: "sale",
		Payer:  paypalPayer{PaymentMethod: "paypal"},
		Transactions: []paypalTransaction{{
			Amount: paypalAmount{
				Total:    fmt.Sprintf("%.2f", totalUSD),
				Currency: "USD",
			},
			ItemList:    paypalItemList{Items: items},
			Description: "Pedido " + order.OrderNumber + " - Florería Cristina",
		}},
		RedirectURLs: paypalRedirectURLs{
			ReturnURL: fmt.Sprintf("%s/pedidos/%s/pago/paypal/exito", s.frontendURL, order.ID),
			CancelURL: fmt.Sprintf("%s/pedidos/%s/pago/paypal/cancelado", s.frontendURL, order.ID),
		},
	}

	payment, err := s.doPaymentRequest(ctx, http.MethodPost, "/v1/payments/payment", payload)
	if err != nil {
		return nil, err
	}

	approvalURL := ""
	for _, link := range payment.Links {
		if link.Rel == "approval_url" {
			approvalURL = link.Href
			break
		}
	}
	if approvalURL == "" {
		return nil, errors.New("paypal response missing approval_url")
	}

	return &RedirectInfo{
		Provider:    models.PaymentPayPal,
		RedirectURL: approvalURL,
		PaymentID:   payment.ID,
		Conversion:  conversion,
	}, nil
}

// ExecutePayment finalizes a payment after the buyer approved it on
// PayPal's site.
func (s *PayPalService) ExecutePayment(ctx context.Context, paymentID, payerID string) (*PayPalPayment, error) {
	return s.doPaymentRequest(ctx, http.MethodPost,
		"/v1/payments/payment/"+paymentID+"/execute",
		map[string]string{"payer_id": payerID})
}

// GetPaymentDetails is a read-only status fetch.
func (s *PayPalService) GetPaymentDetails(ctx context.Context, paymentID string) (*PayPalPayment, error) {
	return s.doPaymentRequest(ctx, http.MethodGet, "/v1/payments/payment/"+paymentID, nil)
}

func (s *PayPalService) doPaymentRequest(ctx context.Context, method, path string, payload any) (*PayPalPayment, error) {
	token, err := s.getToken(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := paypalHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paypal returned status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var payment PayPalPayment
	if err := json.Unmarshal(respBody, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

var _ PaymentGateway = (*PayPalService)(nil)
