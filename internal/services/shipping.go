package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

// Free-shipping reasons reported in a ShippingQuote.
const (
	FreeShippingProducts  = "productos_envio_gratis"
	FreeShippingThreshold = "monto_minimo_alcanzado"
)

var (
	ErrInvalidShippingMethod = errors.New("método de envío inválido")
	ErrInvalidDistance       = errors.New("distancia inválida")
)

// ShippingQuote is the result of pricing a delivery.
type ShippingQuote struct {
	ShippingMethod string  `json:"shipping_method"`
	ZoneName       string  `json:"zone_name,omitempty"`
	DistanceKm     float64 `json:"distance_km"`
	BasePrice      float64 `json:"base_price"`
	Cost           float64 `json:"cost"`
	FreeShipping   bool    `json:"free_shipping"`
	FreeReason     string  `json:"free_reason,omitempty"`

	// OutOfCoverage is a distinct outcome, not an error: the distance
	// fell outside every configured zone for the method.
	OutOfCoverage bool    `json:"out_of_coverage"`
	MaxCoverageKm float64 `json:"max_coverage_km,omitempty"`
}

// ShippingService resolves (method, distance, cart, order amount) into a
// shipping cost using the tiered zone tables.
type ShippingService struct {
	db *gorm.DB
}

func NewShippingService(db *gorm.DB) *ShippingService {
	return &ShippingService{db: db}
}

// QuoteInput carries everything needed to price a delivery.
type QuoteInput struct {
	ShippingMethod   string
	DistanceKm       float64
	OrderAmount      float64
	AllItemsFreeShip bool
}

// Quote validates input, loads the method's zones and pricing rule, and
// delegates to ResolveQuote.
func (s *ShippingService) Quote(ctx context.Context, in QuoteInput) (*ShippingQuote, error) {
	method := strings.TrimSpace(in.ShippingMethod)
	switch method {
	case models.ShippingRetiro, models.ShippingExpress, models.ShippingProgramado:
	default:
		return nil, ErrInvalidShippingMethod
	}

	// Store pickup never costs anything and needs no zone lookup.
	if method == models.ShippingRetiro {
		return &ShippingQuote{ShippingMethod: method, FreeShipping: true}, nil
	}

	if in.DistanceKm < 0 {
		return nil, ErrInvalidDistance
	}

	var zones []models.ShippingZone
	if err := s.db.WithContext(ctx).
		Where("shipping_method = ? AND is_active = ?", method, true).
		Order("min_distance_km asc").
		Find(&zones).Error; err != nil {
		return nil, err
	}

	var rule *models.ShippingPricingRule
	var loaded models.ShippingPricingRule
	err := s.db.WithContext(ctx).
		Where("shipping_method = ?", method).
		First(&loaded).Error
	switch {
	case err == nil:
		rule = &loaded
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No rule configured; zone pricing stands as-is.
	default:
		return nil, err
	}

	quote := ResolveQuote(zones, rule, in)
	return &quote, nil
}

// ResolveQuote prices a delivery against the given zones and optional
// pricing rule. Pure so zone-boundary and precedence behavior can be
// tested without a database.
//
// Zones match on the half-open interval [min, max): a distance exactly
// at a zone's max belongs to the next zone. The per-km price applies
// only to distance beyond the matched zone's own minimum.
func ResolveQuote(zones []models.ShippingZone, rule *models.ShippingPricingRule, in QuoteInput) ShippingQuote {
	quote := ShippingQuote{
		ShippingMethod: in.ShippingMethod,
		DistanceKm:     in.DistanceKm,
	}

	var zone *models.ShippingZone
	var maxCoverage float64
	for i := range zones {
		z := &zones[i]
		if z.MaxDistanceKm > maxCoverage {
			maxCoverage = z.MaxDistanceKm
		}
		if in.DistanceKm >= z.MinDistanceKm && in.DistanceKm < z.MaxDistanceKm {
			zone = z
		}
	}

	if zone == nil {
		quote.OutOfCoverage = true
		quote.MaxCoverageKm = maxCoverage
		return quote
	}

	quote.ZoneName = zone.Name
	quote.BasePrice = zone.BasePrice

	extraKm := in.DistanceKm - zone.MinDistanceKm
	if extraKm < 0 {
		extraKm = 0
	}
	cost := zone.BasePrice + zone.PricePerKm*extraKm

	if rule != nil && cost < rule.MinimumCharge {
		cost = rule.MinimumCharge
	}

	// Per-product rule dominates the threshold rule.
	switch {
	case in.AllItemsFreeShip:
		quote.FreeShipping = true
		quote.FreeReason = FreeShippingProducts
		cost = 0
	case rule != nil && rule.FreeShippingThreshold != nil && in.OrderAmount >= *rule.FreeShippingThreshold:
		quote.FreeShipping = true
		quote.FreeReason = FreeShippingThreshold
		cost = 0
	}

	quote.Cost = Round2(cost)
	return quote
}
