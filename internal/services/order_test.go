package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.OrderStatusRecibido, models.OrderStatusPreparando, true},
		{models.OrderStatusRecibido, models.OrderStatusCancelado, true},
		{models.OrderStatusRecibido, models.OrderStatusEnCamino, false},
		{models.OrderStatusRecibido, models.OrderStatusEntregado, false},
		{models.OrderStatusPreparando, models.OrderStatusEnCamino, true},
		{models.OrderStatusPreparando, models.OrderStatusCancelado, true},
		{models.OrderStatusPreparando, models.OrderStatusRecibido, false},
		{models.OrderStatusEnCamino, models.OrderStatusEntregado, true},
		{models.OrderStatusEnCamino, models.OrderStatusCancelado, true},
		{models.OrderStatusEntregado, models.OrderStatusCancelado, false},
		{models.OrderStatusEntregado, models.OrderStatusRecibido, false},
		{models.OrderStatusCancelado, models.OrderStatusRecibido, false},
		{"", models.OrderStatusRecibido, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestApplyPaymentResult_BadExternalReference(t *testing.T) {
	svc := NewOrderService(nil, nil)

	err := svc.ApplyPaymentResult(context.Background(), WebhookResult{
		Valid:             true,
		Status:            MPStatusApproved,
		ExternalReference: "not-a-uuid",
	})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func expectOrderLock(mock sqlmock.Sqlmock, orderID uuid.UUID, reconciledAt *time.Time) {
	orderRows := sqlmock.NewRows([]string{"id", "estado", "estado_pago", "confirmado", "reconciled_at", "reconcile_outcome"}).
		AddRow(orderID.String(), models.OrderStatusRecibido, models.PaymentStatusPendiente, false, reconciledAt, "")
	mock.ExpectQuery(`SELECT \* FROM "orders"(.+)FOR UPDATE`).WillReturnRows(orderRows)
}

func expectOrderItems(mock sqlmock.Sqlmock, orderID, productID uuid.UUID, qty int) {
	itemRows := sqlmock.NewRows([]string{"id", "order_id", "product_id", "product_name", "quantity", "unit_price", "line_total"}).
		AddRow(uuid.New().String(), orderID.String(), productID.String(), "Ramo de rosas", qty, 25000.0, 25000.0*float64(qty))
	mock.ExpectQuery(`SELECT \* FROM "order_items"`).WillReturnRows(itemRows)
}

func TestApplyPaymentResult_RejectedRestoresStockOnce(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewOrderService(db, nil)

	orderID := uuid.New()
	productID := uuid.New()

	mock.ExpectBegin()
	expectOrderLock(mock, orderID, nil)
	expectOrderItems(mock, orderID, productID, 2)
	mock.ExpectExec(`UPDATE "products" SET "stock"=stock \+ \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "orders" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.ApplyPaymentResult(context.Background(), WebhookResult{
		Valid:             true,
		PaymentID:         "mp-123",
		Status:            MPStatusRejected,
		ExternalReference: orderID.String(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPaymentResult_RejectedReplayIsNoOp(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewOrderService(db, nil)

	orderID := uuid.New()
	productID := uuid.New()
	reconciled := time.Now().Add(-time.Hour)

	// The order was already reconciled; the ordered mock would fail on
	// any attempt to touch stock or the order row again.
	mock.ExpectBegin()
	expectOrderLock(mock, orderID, &reconciled)
	expectOrderItems(mock, orderID, productID, 2)
	mock.ExpectCommit()

	err := svc.ApplyPaymentResult(context.Background(), WebhookResult{
		Valid:             true,
		PaymentID:         "mp-123",
		Status:            MPStatusRejected,
		ExternalReference: orderID.String(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPaymentResult_ApprovedReplayIsNoOp(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewOrderService(db, nil)

	orderID := uuid.New()
	reconciled := time.Now().Add(-time.Hour)

	mock.ExpectBegin()
	expectOrderLock(mock, orderID, &reconciled)
	expectOrderItems(mock, orderID, uuid.New(), 1)
	mock.ExpectCommit()

	err := svc.ApplyPaymentResult(context.Background(), WebhookResult{
		Valid:             true,
		PaymentID:         "mp-123",
		Status:            MPStatusApproved,
		ExternalReference: orderID.String(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPaymentResult_LatePendingCannotDemoteReconciledOrder(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewOrderService(db, nil)

	orderID := uuid.New()
	reconciled := time.Now().Add(-time.Hour)

	// The order was approved and reconciled; a pending notification
	// delivered late must not drag estado_pago back to pendiente or
	// clobber payment_id. The ordered mock fails on any write.
	mock.ExpectBegin()
	orderRows := sqlmock.NewRows([]string{"id", "estado", "estado_pago", "confirmado", "payment_id", "reconciled_at", "reconcile_outcome"}).
		AddRow(orderID.String(), models.OrderStatusRecibido, models.PaymentStatusAprobado, true, "mp-123", &reconciled, models.ReconcileOutcomeApproved)
	mock.ExpectQuery(`SELECT \* FROM "orders"(.+)FOR UPDATE`).WillReturnRows(orderRows)
	expectOrderItems(mock, orderID, uuid.New(), 1)
	mock.ExpectCommit()

	err := svc.ApplyPaymentResult(context.Background(), WebhookResult{
		Valid:             true,
		PaymentID:         "mp-456",
		Status:            MPStatusPending,
		ExternalReference: orderID.String(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPaymentResult_UnknownStatusIsIgnored(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewOrderService(db, nil)

	orderID := uuid.New()

	mock.ExpectBegin()
	expectOrderLock(mock, orderID, nil)
	expectOrderItems(mock, orderID, uuid.New(), 1)
	mock.ExpectCommit()

	err := svc.ApplyPaymentResult(context.Background(), WebhookResult{
		Valid:             true,
		Status:            "charged_back",
		ExternalReference: orderID.String(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_RejectsInvalidTransition(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewOrderService(db, nil)

	orderID := uuid.New()

	mock.ExpectBegin()
	orderRows := sqlmock.NewRows([]string{"id", "estado", "estado_pago"}).
		AddRow(orderID.String(), models.OrderStatusEntregado, models.PaymentStatusAprobado)
	mock.ExpectQuery(`SELECT \* FROM "orders"(.+)FOR UPDATE`).WillReturnRows(orderRows)
	mock.ExpectRollback()

	_, err := svc.UpdateStatus(context.Background(), orderID, models.OrderStatusCancelado)
	var terr *InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, models.OrderStatusEntregado, terr.From)
	assert.Equal(t, models.OrderStatusCancelado, terr.To)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_SameStatusIsNoOp(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewOrderService(db, nil)

	orderID := uuid.New()

	mock.ExpectBegin()
	orderRows := sqlmock.NewRows([]string{"id", "estado", "estado_pago"}).
		AddRow(orderID.String(), models.OrderStatusRecibido, models.PaymentStatusPendiente)
	mock.ExpectQuery(`SELECT \* FROM "orders"(.+)FOR UPDATE`).WillReturnRows(orderRows)
	mock.ExpectCommit()

	order, err := svc.UpdateStatus(context.Background(), orderID, models.OrderStatusRecibido)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRecibido, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
