package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	return gdb, mock
}

func expectProductLookup(mock sqlmock.Sqlmock, p models.Product) {
	rows := sqlmock.NewRows([]string{"id", "slug", "name", "price", "discount_pct", "stock", "is_active", "envio_gratis"}).
		AddRow(p.ID.String(), p.Slug, p.Name, p.Price, p.DiscountPct, p.Stock, p.IsActive, p.FreeShipping)
	mock.ExpectQuery(`SELECT \* FROM "products"`).WillReturnRows(rows)
}

func sessionRef(token string) CartRef {
	return CartRef{SessionToken: token}
}

func TestCartAdd_RejectsNonPositiveQuantity(t *testing.T) {
	svc := NewCartService(nil)

	_, err := svc.Add(context.Background(), sessionRef("s1"), uuid.New(), 0, false)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Add(context.Background(), sessionRef("s1"), uuid.New(), -3, false)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCartAdd_ClampsToStock(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewCartService(db)

	product := models.Product{Name: "Ramo de rosas", Price: 25000, Stock: 3, IsActive: true}
	product.ID = uuid.New()
	expectProductLookup(mock, product)

	res, err := svc.Add(context.Background(), sessionRef("s1"), product.ID, 5, false)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Requested)
	assert.Equal(t, 3, res.Quantity)
	assert.True(t, res.Clamped)
	assert.False(t, res.Removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartAdd_ClampToZeroRemovesLine(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewCartService(db)

	product := models.Product{Name: "Orquídea", Price: 18000, Stock: 0, IsActive: true}
	product.ID = uuid.New()
	expectProductLookup(mock, product)

	res, err := svc.Add(context.Background(), sessionRef("s1"), product.ID, 2, false)
	require.NoError(t, err)
	assert.True(t, res.Clamped)
	assert.True(t, res.Removed)
	assert.Zero(t, res.Quantity)

	empty, err := svc.IsEmpty(context.Background(), sessionRef("s1"))
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestCartAdd_IncrementsAndKeepsPriceSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewCartService(db)
	ref := sessionRef("s1")

	product := models.Product{Name: "Ramo mixto", Price: 10000, Stock: 10, IsActive: true}
	product.ID = uuid.New()

	expectProductLookup(mock, product)
	res, err := svc.Add(context.Background(), ref, product.ID, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, res.UnitPrice)

	// The catalog price changes between adds; the line keeps the price
	// snapshotted on first add.
	product.Price = 12000
	expectProductLookup(mock, product)
	res, err = svc.Add(context.Background(), ref, product.ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Quantity)
	assert.Equal(t, 10000.0, res.UnitPrice)

	total, err := svc.TotalPrice(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 30000.0, total)
}

func TestCartAdd_UsesDiscountedPrice(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewCartService(db)

	product := models.Product{Name: "Girasoles", Price: 10000, DiscountPct: 20, Stock: 5, IsActive: true}
	product.ID = uuid.New()
	expectProductLookup(mock, product)

	res, err := svc.Add(context.Background(), sessionRef("s1"), product.ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 8000.0, res.UnitPrice)
}

func TestCartUpdateQuantity_SetsAbsoluteValue(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewCartService(db)
	ref := sessionRef("s1")

	product := models.Product{Name: "Lirios", Price: 9000, Stock: 10, IsActive: true}
	product.ID = uuid.New()

	expectProductLookup(mock, product)
	_, err := svc.Add(context.Background(), ref, product.ID, 5, false)
	require.NoError(t, err)

	expectProductLookup(mock, product)
	res, err := svc.UpdateQuantity(context.Background(), ref, product.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Quantity)
}

func TestCartUpdateQuantity_ZeroRemoves(t *testing.T) {
	svc := NewCartService(nil)
	ref := sessionRef("s1")
	productID := uuid.New()

	res, err := svc.UpdateQuantity(context.Background(), ref, productID, 0)
	require.NoError(t, err)
	assert.True(t, res.Removed)
}

func TestCartRemove_IsIdempotent(t *testing.T) {
	svc := NewCartService(nil)
	ref := sessionRef("s1")
	productID := uuid.New()

	assert.NoError(t, svc.Remove(context.Background(), ref, productID))
	assert.NoError(t, svc.Remove(context.Background(), ref, productID))
}

func TestMergeSessionCart(t *testing.T) {
	svc := NewCartService(nil)
	// The DB-backed store is swapped for an in-memory one so the merge
	// semantics can be checked without a database.
	svc.persistent = NewSessionCartStore()

	userID := uuid.New()
	sharedProduct := uuid.New()
	sessionOnly := uuid.New()

	require.NoError(t, svc.persistent.Put(context.Background(), userID.String(), CartLine{
		ProductID: sharedProduct, Quantity: 1, UnitPrice: 5000,
	}))
	require.NoError(t, svc.session.Put(context.Background(), "s1", CartLine{
		ProductID: sharedProduct, Quantity: 4, UnitPrice: 4500,
	}))
	require.NoError(t, svc.session.Put(context.Background(), "s1", CartLine{
		ProductID: sessionOnly, Quantity: 2, UnitPrice: 3000,
	}))

	require.NoError(t, svc.MergeSessionCart(context.Background(), userID, "s1"))

	lines, err := svc.persistent.Lines(context.Background(), userID.String())
	require.NoError(t, err)
	require.Len(t, lines, 2)

	byID := make(map[uuid.UUID]CartLine, len(lines))
	for _, line := range lines {
		byID[line.ProductID] = line
	}

	// The product already in the user's cart keeps its quantity and price.
	assert.Equal(t, 1, byID[sharedProduct].Quantity)
	assert.Equal(t, 5000.0, byID[sharedProduct].UnitPrice)
	assert.Equal(t, 2, byID[sessionOnly].Quantity)

	// The session cart is gone.
	sessionLines, err := svc.session.Lines(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, sessionLines)
}

func TestMergeSessionCart_EmptyTokenIsNoOp(t *testing.T) {
	svc := NewCartService(nil)
	assert.NoError(t, svc.MergeSessionCart(context.Background(), uuid.New(), ""))
}

func TestAllItemsFreeShipping(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewCartService(db)
	ref := sessionRef("s1")

	// Empty carts never qualify.
	free, err := svc.AllItemsFreeShipping(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, free)

	product := models.Product{Name: "Rosas premium", Price: 30000, Stock: 5, IsActive: true, FreeShipping: true}
	product.ID = uuid.New()
	expectProductLookup(mock, product)
	_, err = svc.Add(context.Background(), ref, product.ID, 1, false)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	free, err = svc.AllItemsFreeShipping(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, free)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	free, err = svc.AllItemsFreeShipping(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, free)
}
