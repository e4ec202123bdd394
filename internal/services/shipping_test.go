package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

func expressZones() []models.ShippingZone {
	return []models.ShippingZone{
		{ShippingMethod: models.ShippingExpress, Name: "Centro", MinDistanceKm: 0, MaxDistanceKm: 5, BasePrice: 1500, PricePerKm: 0, IsActive: true},
		{ShippingMethod: models.ShippingExpress, Name: "Periferia", MinDistanceKm: 5, MaxDistanceKm: 15, BasePrice: 2500, PricePerKm: 200, IsActive: true},
		{ShippingMethod: models.ShippingExpress, Name: "Alrededores", MinDistanceKm: 15, MaxDistanceKm: 30, BasePrice: 4000, PricePerKm: 350, IsActive: true},
	}
}

func TestResolveQuote_ZoneBoundariesAreHalfOpen(t *testing.T) {
	zones := expressZones()

	tests := []struct {
		distance float64
		wantZone string
	}{
		{0, "Centro"},
		{4.99, "Centro"},
		{5, "Periferia"}, // exactly at a max belongs to the next zone
		{14.99, "Periferia"},
		{15, "Alrededores"},
		{29.99, "Alrededores"},
	}
	for _, tt := range tests {
		q := ResolveQuote(zones, nil, QuoteInput{ShippingMethod: models.ShippingExpress, DistanceKm: tt.distance})
		assert.Equal(t, tt.wantZone, q.ZoneName, "distance %v", tt.distance)
		assert.False(t, q.OutOfCoverage, "distance %v", tt.distance)
	}
}

func TestResolveQuote_PerKmAppliesBeyondZoneMinimum(t *testing.T) {
	zones := expressZones()

	// 8 km lands in Periferia [5, 15): 2500 + 200 * (8 - 5) = 3100.
	q := ResolveQuote(zones, nil, QuoteInput{ShippingMethod: models.ShippingExpress, DistanceKm: 8})
	assert.Equal(t, 3100.0, q.Cost)
	assert.Equal(t, 2500.0, q.BasePrice)

	// At the zone's own minimum only the base price is charged.
	q = ResolveQuote(zones, nil, QuoteInput{ShippingMethod: models.ShippingExpress, DistanceKm: 5})
	assert.Equal(t, 2500.0, q.Cost)
}

func TestResolveQuote_OutOfCoverage(t *testing.T) {
	zones := expressZones()

	q := ResolveQuote(zones, nil, QuoteInput{ShippingMethod: models.ShippingExpress, DistanceKm: 30})
	assert.True(t, q.OutOfCoverage)
	assert.Equal(t, 30.0, q.MaxCoverageKm)
	assert.Zero(t, q.Cost)
	assert.Empty(t, q.ZoneName)
}

func TestResolveQuote_NoZonesConfigured(t *testing.T) {
	q := ResolveQuote(nil, nil, QuoteInput{ShippingMethod: models.ShippingProgramado, DistanceKm: 3})
	assert.True(t, q.OutOfCoverage)
	assert.Zero(t, q.MaxCoverageKm)
}

func TestResolveQuote_MinimumCharge(t *testing.T) {
	zones := []models.ShippingZone{
		{ShippingMethod: models.ShippingProgramado, Name: "Centro", MinDistanceKm: 0, MaxDistanceKm: 10, BasePrice: 800, PricePerKm: 50, IsActive: true},
	}
	rule := &models.ShippingPricingRule{ShippingMethod: models.ShippingProgramado, MinimumCharge: 1200}

	q := ResolveQuote(zones, rule, QuoteInput{ShippingMethod: models.ShippingProgramado, DistanceKm: 2})
	assert.Equal(t, 1200.0, q.Cost)

	// Above the floor the tiered price stands: 800 + 50*9 = 1250.
	q = ResolveQuote(zones, rule, QuoteInput{ShippingMethod: models.ShippingProgramado, DistanceKm: 9})
	assert.Equal(t, 1250.0, q.Cost)
}

func TestResolveQuote_FreeShippingPrecedence(t *testing.T) {
	zones := expressZones()
	threshold := 50000.0
	rule := &models.ShippingPricingRule{ShippingMethod: models.ShippingExpress, FreeShippingThreshold: &threshold}

	// All-items free shipping wins even below the amount threshold.
	q := ResolveQuote(zones, rule, QuoteInput{
		ShippingMethod:   models.ShippingExpress,
		DistanceKm:       8,
		OrderAmount:      1000,
		AllItemsFreeShip: true,
	})
	assert.True(t, q.FreeShipping)
	assert.Equal(t, FreeShippingProducts, q.FreeReason)
	assert.Zero(t, q.Cost)

	// Threshold applies when the products themselves do not qualify.
	q = ResolveQuote(zones, rule, QuoteInput{
		ShippingMethod: models.ShippingExpress,
		DistanceKm:     8,
		OrderAmount:    50000,
	})
	assert.True(t, q.FreeShipping)
	assert.Equal(t, FreeShippingThreshold, q.FreeReason)
	assert.Zero(t, q.Cost)

	// Below the threshold the zone price stands.
	q = ResolveQuote(zones, rule, QuoteInput{
		ShippingMethod: models.ShippingExpress,
		DistanceKm:     8,
		OrderAmount:    49999.99,
	})
	assert.False(t, q.FreeShipping)
	assert.Equal(t, 3100.0, q.Cost)
}

func TestQuote_RetiroIsAlwaysFree(t *testing.T) {
	// Nil db is safe: retiro short-circuits before any zone lookup.
	s := NewShippingService(nil)

	q, err := s.Quote(context.Background(), QuoteInput{ShippingMethod: models.ShippingRetiro, DistanceKm: 999})
	assert.NoError(t, err)
	assert.True(t, q.FreeShipping)
	assert.Zero(t, q.Cost)
}

func TestQuote_RejectsInvalidInput(t *testing.T) {
	s := NewShippingService(nil)

	_, err := s.Quote(context.Background(), QuoteInput{ShippingMethod: "drone"})
	assert.ErrorIs(t, err, ErrInvalidShippingMethod)

	_, err = s.Quote(context.Background(), QuoteInput{ShippingMethod: models.ShippingExpress, DistanceKm: -1})
	assert.ErrorIs(t, err, ErrInvalidDistance)
}
