package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

// CartLine is one cart entry as seen by callers, with the unit price
// snapshotted at add time.
type CartLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Product   *models.Product `json:"product,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice float64         `json:"unit_price"`
	LineTotal float64         `json:"line_total"`
}

// CartStore abstracts cart storage so anonymous (session) and
// authenticated (DB) carts share one facade. Keys are session tokens
// for the former and user ids for the latter.
type CartStore interface {
	Lines(ctx context.Context, key string) ([]CartLine, error)
	Put(ctx context.Context, key string, line CartLine) error
	Remove(ctx context.Context, key string, productID uuid.UUID) error
	Clear(ctx context.Context, key string) error
}

// SessionCartStore keeps anonymous carts in process memory, keyed by
// the client's session token.
type SessionCartStore struct {
	mu    sync.RWMutex
	carts map[string]map[uuid.UUID]CartLine
}

func NewSessionCartStore() *SessionCartStore {
	return &SessionCartStore{carts: make(map[string]map[uuid.UUID]CartLine)}
}

func (s *SessionCartStore) Lines(_ context.Context, key string) ([]CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]CartLine, 0, len(s.carts[key]))
	for _, line := range s.carts[key] {
		line.LineTotal = line.UnitPrice * float64(line.Quantity)
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *SessionCartStore) Put(_ context.Context, key string, line CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[key]
	if !ok {
		cart = make(map[uuid.UUID]CartLine)
		s.carts[key] = cart
	}
	line.Product = nil
	cart[line.ProductID] = line
	return nil
}

func (s *SessionCartStore) Remove(_ context.Context, key string, productID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cart, ok := s.carts[key]; ok {
		delete(cart, productID)
		if len(cart) == 0 {
			delete(s.carts, key)
		}
	}
	return nil
}

func (s *SessionCartStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, key)
	return nil
}

// PersistentCartStore keeps authenticated carts in Postgres, one cart
// row per user.
type PersistentCartStore struct {
	db *gorm.DB
}

func NewPersistentCartStore(db *gorm.DB) *PersistentCartStore {
	return &PersistentCartStore{db: db}
}

func (s *PersistentCartStore) cartFor(ctx context.Context, key string, create bool) (*models.Cart, error) {
	userID, err := uuid.Parse(key)
	if err != nil {
		return nil, err
	}

	var cart models.Cart
	err = s.db.WithContext(ctx).Where("user_id = ?", userID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if !create {
			return nil, nil
		}
		cart = models.Cart{UserID: userID}
		if err := s.db.WithContext(ctx).Create(&cart).Error; err != nil {
			return nil, err
		}
		return &cart, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *PersistentCartStore) Lines(ctx context.Context, key string) ([]CartLine, error) {
	cart, err := s.cartFor(ctx, key, false)
	if err != nil || cart == nil {
		return nil, err
	}

	var items []models.CartItem
	if err := s.db.WithContext(ctx).
		Preload("Product").
		Where("cart_id = ?", cart.ID).
		Find(&items).Error; err != nil {
		return nil, err
	}

	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, CartLine{
			ProductID: item.ProductID,
			Product:   item.Product,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
		})
	}
	return lines, nil
}

func (s *PersistentCartStore) Put(ctx context.Context, key string, line CartLine) error {
	cart, err := s.cartFor(ctx, key, true)
	if err != nil {
		return err
	}

	var item models.CartItem
	err = s.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cart.ID, line.ProductID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		item = models.CartItem{
			CartID:    cart.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
		return s.db.WithContext(ctx).Create(&item).Error
	}
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Model(&item).
		Updates(map[string]any{"quantity": line.Quantity, "unit_price": line.UnitPrice}).Error
}

func (s *PersistentCartStore) Remove(ctx context.Context, key string, productID uuid.UUID) error {
	cart, err := s.cartFor(ctx, key, false)
	if err != nil || cart == nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cart.ID, productID).
		Delete(&models.CartItem{}).Error
}

func (s *PersistentCartStore) Clear(ctx context.Context, key string) error {
	cart, err := s.cartFor(ctx, key, false)
	if err != nil || cart == nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("cart_id = ?", cart.ID).
		Delete(&models.CartItem{}).Error
}
