package models

import "github.com/google/uuid"

// Cart is the DB-backed cart of an authenticated user. Anonymous carts
// live in the session store and never touch these tables.
type Cart struct {
	BaseModel
	UserID uuid.UUID  `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	Items  []CartItem `json:"items,omitempty"`
}

// CartItem holds a product selection with the unit price snapshotted at
// add time. The snapshot never follows later product price changes.
type CartItem struct {
	BaseModel
	CartID    uuid.UUID `gorm:"type:uuid;index" json:"cart_id"`
	ProductID uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	Product   *Product  `json:"product,omitempty"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
}

// LineTotal is the snapshot price times quantity.
func (i *CartItem) LineTotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}
