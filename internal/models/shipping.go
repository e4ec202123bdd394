package models

// ShippingZone is a distance-bounded pricing tier for one delivery
// method. Zones for a method must not overlap; matching uses the
// half-open interval min <= distance < max.
type ShippingZone struct {
	BaseModel
	ShippingMethod string  `gorm:"index" json:"shipping_method"`
	Name           string  `json:"name"`
	MinDistanceKm  float64 `json:"min_distance_km"`
	MaxDistanceKm  float64 `json:"max_distance_km"`
	BasePrice      float64 `json:"base_price"`
	PricePerKm     float64 `json:"price_per_km"`
	DisplayOrder   int     `json:"display_order"`
	IsActive       bool    `json:"is_active"`
}

// ShippingPricingRule holds per-method free-shipping threshold and
// minimum charge. The threshold only applies when no per-product
// free-shipping rule already zeroed the cost.
type ShippingPricingRule struct {
	BaseModel
	ShippingMethod        string   `gorm:"uniqueIndex" json:"shipping_method"`
	FreeShippingThreshold *float64 `json:"free_shipping_threshold"`
	MinimumCharge         float64  `json:"minimum_charge"`
}
