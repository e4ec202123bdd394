package models

// Product is a catalog entry (bouquets, arrangements, plants).
type Product struct {
	BaseModel
	Slug             string  `gorm:"uniqueIndex" json:"slug"`
	Name             string  `json:"name"`
	ShortDescription string  `json:"short_description"`
	LongDescription  string  `json:"long_description"`
	Price            float64 `json:"price"`
	DiscountPct      float64 `json:"discount_pct"`
	Stock            int     `json:"stock"`
	IsActive         bool    `json:"is_active"`
	FreeShipping     bool    `gorm:"column:envio_gratis" json:"envio_gratis"`
	HeroImage        string  `json:"hero_image"`
	Category         string  `json:"category"`
	DisplayOrder     int     `json:"display_order"`
}

// DiscountedPrice returns the discounted unit price, or nil when no
// discount is active.
func (p *Product) DiscountedPrice() *float64 {
	if p.DiscountPct <= 0 {
		return nil
	}
	d := p.Price * (100 - p.DiscountPct) / 100
	return &d
}

// EffectivePrice is the price the cart and checkout must use: the
// discounted price when a discount is active, the list price otherwise.
func (p *Product) EffectivePrice() float64 {
	if d := p.DiscountedPrice(); d != nil {
		return *d
	}
	return p.Price
}
