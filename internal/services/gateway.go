package services

import (
	"context"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

// RedirectInfo tells the frontend where to send the buyer to complete a
// payment. SandboxURL is set only by providers that expose one.
type RedirectInfo struct {
	Provider    string      `json:"provider"`
	RedirectURL string      `json:"redirect_url"`
	SandboxURL  string      `json:"sandbox_url,omitempty"`
	PaymentID   string      `json:"payment_id,omitempty"`
	Conversion  *Conversion `json:"conversion_info,omitempty"`
}

// PaymentGateway creates a provider-side payment for an order. The
// checkout and payment handlers depend only on this interface; each
// implementation owns its own currency and amount-formatting rules.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, order *models.Order) (*RedirectInfo, error)
}

// BankTransferGateway handles the transferencia method: no provider
// round-trip, the order stays pendiente until an admin confirms the
// transfer manually.
type BankTransferGateway struct {
	frontendURL string
}

func NewBankTransferGateway(frontendURL string) *BankTransferGateway {
	return &BankTransferGateway{frontendURL: frontendURL}
}

func (g *BankTransferGateway) CreatePayment(_ context.Context, order *models.Order) (*RedirectInfo, error) {
	return &RedirectInfo{
		Provider:    models.PaymentTransferencia,
		RedirectURL: g.frontendURL + "/pedidos/" + order.ID.String() + "/transferencia",
	}, nil
}
