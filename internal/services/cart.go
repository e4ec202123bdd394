package services

import (
	"context"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

// CartRef identifies the owner of a cart: an authenticated user or an
// anonymous session.
type CartRef struct {
	UserID       *uuid.UUID
	SessionToken string
}

func (r CartRef) key() string {
	if r.UserID != nil {
		return r.UserID.String()
	}
	return r.SessionToken
}

// AddResult reports what actually happened on an add: the accepted
// quantity may be lower than requested when stock ran short, and the
// line may have been removed when the clamp hit zero.
type AddResult struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Clamped   bool      `json:"clamped"`
	Removed   bool      `json:"removed"`
}

// CartService is the single facade over both cart backings.
type CartService struct {
	db         *gorm.DB
	session    CartStore
	persistent CartStore
}

func NewCartService(db *gorm.DB) *CartService {
	return &CartService{
		db:         db,
		session:    NewSessionCartStore(),
		persistent: NewPersistentCartStore(db),
	}
}

func (s *CartService) storeFor(ref CartRef) CartStore {
	if ref.UserID != nil {
		return s.persistent
	}
	return s.session
}

// Add puts a product in the cart. With updateQuantity the requested
// quantity is absolute; otherwise it increments the existing line.
// Quantities are clamped to the product's current stock; a clamp to
// zero removes the line. Stock shortfalls never fail the call — the
// result carries an explicit Clamped signal instead.
func (s *CartService) Add(ctx context.Context, ref CartRef, productID uuid.UUID, quantity int, updateQuantity bool) (*AddResult, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var product models.Product
	if err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", productID, true).
		First(&product).Error; err != nil {
		return nil, err
	}

	store := s.storeFor(ref)
	lines, err := store.Lines(ctx, ref.key())
	if err != nil {
		return nil, err
	}

	var existing *CartLine
	for i := range lines {
		if lines[i].ProductID == productID {
			existing = &lines[i]
			break
		}
	}

	newQty := quantity
	unitPrice := product.EffectivePrice()
	if existing != nil {
		// Keep the price snapshotted when the line was first added.
		unitPrice = existing.UnitPrice
		if !updateQuantity {
			newQty = existing.Quantity + quantity
		}
	}

	result := &AddResult{
		ProductID: productID,
		Requested: newQty,
		UnitPrice: unitPrice,
	}

	if newQty > product.Stock {
		newQty = product.Stock
		result.Clamped = true
	}

	if newQty <= 0 {
		result.Removed = true
		result.Quantity = 0
		return result, store.Remove(ctx, ref.key(), productID)
	}

	result.Quantity = newQty
	return result, store.Put(ctx, ref.key(), CartLine{
		ProductID: productID,
		Quantity:  newQty,
		UnitPrice: unitPrice,
	})
}

// Remove drops a product from the cart. Removing an absent product is a
// no-op.
func (s *CartService) Remove(ctx context.Context, ref CartRef, productID uuid.UUID) error {
	return s.storeFor(ref).Remove(ctx, ref.key(), productID)
}

// UpdateQuantity sets an absolute quantity; zero or less removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, ref CartRef, productID uuid.UUID, quantity int) (*AddResult, error) {
	if quantity <= 0 {
		if err := s.Remove(ctx, ref, productID); err != nil {
			return nil, err
		}
		return &AddResult{ProductID: productID, Requested: quantity, Removed: true}, nil
	}
	return s.Add(ctx, ref, productID, quantity, true)
}

// Items returns every cart line with its snapshot price and line total.
func (s *CartService) Items(ctx context.Context, ref CartRef) ([]CartLine, error) {
	return s.storeFor(ref).Lines(ctx, ref.key())
}

// TotalPrice sums price*qty across the cart.
func (s *CartService) TotalPrice(ctx context.Context, ref CartRef) (float64, error) {
	lines, err := s.Items(ctx, ref)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, line := range lines {
		total += line.UnitPrice * float64(line.Quantity)
	}
	return Round2(total), nil
}

// Clear empties the cart.
func (s *CartService) Clear(ctx context.Context, ref CartRef) error {
	return s.storeFor(ref).Clear(ctx, ref.key())
}

// ClearWithTx empties a DB-backed cart inside the caller's transaction,
// so the cart teardown commits or rolls back together with whatever the
// caller is doing. Session carts have no transactional backing; for
// those this is a no-op and the caller clears them after commit.
func (s *CartService) ClearWithTx(ctx context.Context, tx *gorm.DB, ref CartRef) error {
	if ref.UserID == nil {
		return nil
	}
	return NewPersistentCartStore(tx).Clear(ctx, ref.key())
}

// IsEmpty reports whether the cart has no lines.
func (s *CartService) IsEmpty(ctx context.Context, ref CartRef) (bool, error) {
	lines, err := s.Items(ctx, ref)
	if err != nil {
		return false, err
	}
	return len(lines) == 0, nil
}

// MergeSessionCart copies an anonymous session cart into the user's DB
// cart and destroys the session cart. Lines are merged get-or-create on
// product: a product already in the DB cart keeps its quantity and
// price. Called once, when the session's owner authenticates.
func (s *CartService) MergeSessionCart(ctx context.Context, userID uuid.UUID, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}

	sessionLines, err := s.session.Lines(ctx, sessionToken)
	if err != nil || len(sessionLines) == 0 {
		return err
	}

	userKey := userID.String()
	existing, err := s.persistent.Lines(ctx, userKey)
	if err != nil {
		return err
	}

	have := make(map[uuid.UUID]bool, len(existing))
	for _, line := range existing {
		have[line.ProductID] = true
	}

	for _, line := range sessionLines {
		if have[line.ProductID] {
			continue
		}
		if err := s.persistent.Put(ctx, userKey, line); err != nil {
			return err
		}
	}

	if err := s.session.Clear(ctx, sessionToken); err != nil {
		return err
	}

	log.Printf("[Cart] merged %d session lines into cart of user %s", len(sessionLines), userID)
	return nil
}

// AllItemsFreeShipping reports whether every product in the cart carries
// the per-product free-shipping flag. Empty carts report false.
func (s *CartService) AllItemsFreeShipping(ctx context.Context, ref CartRef) (bool, error) {
	lines, err := s.Items(ctx, ref)
	if err != nil {
		return false, err
	}
	if len(lines) == 0 {
		return false, nil
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id IN ? AND envio_gratis = ?", ids, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count == int64(len(lines)), nil
}
