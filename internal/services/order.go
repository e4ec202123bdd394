package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/models"
)

// allowedTransitions is the order-status machine. Cancelado is
// reachable from every state except entregado; entregado is terminal.
var allowedTransitions = map[string][]string{
	models.OrderStatusRecibido:   {models.OrderStatusPreparando, models.OrderStatusCancelado},
	models.OrderStatusPreparando: {models.OrderStatusEnCamino, models.OrderStatusCancelado},
	models.OrderStatusEnCamino:   {models.OrderStatusEntregado, models.OrderStatusCancelado},
	models.OrderStatusEntregado:  {},
	models.OrderStatusCancelado:  {},
}

// CanTransition reports whether an order may move from one status to
// another.
func CanTransition(from, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// OrderService owns order-status and payment-status transitions.
type OrderService struct {
	db       *gorm.DB
	notifier OrderNotifier
}

func NewOrderService(db *gorm.DB, notifier OrderNotifier) *OrderService {
	return &OrderService{db: db, notifier: notifier}
}

// GetOrder loads an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus applies an admin-driven estado transition. The change is
// validated against the state machine and the transition event is
// emitted after commit, carrying both the old and new state.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus string) (*models.Order, error) {
	var order models.Order
	var oldStatus string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		oldStatus = order.Status
		if oldStatus == newStatus {
			return nil
		}
		if !CanTransition(oldStatus, newStatus) {
			return &InvalidTransitionError{From: oldStatus, To: newStatus}
		}

		order.Status = newStatus
		return tx.Model(&models.Order{}).
			Where("id = ?", orderID).
			Update("estado", newStatus).Error
	})
	if err != nil {
		return nil, err
	}

	if oldStatus != newStatus && s.notifier != nil {
		o := order
		go s.notifier.NotifyStatusChanged(o, oldStatus, newStatus)
	}

	return &order, nil
}

// ConfirmOrder marks an order as confirmed and fires the confirmation
// notification. Confirming twice is a no-op.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Confirmed {
		return order, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("confirmado", true).Error; err != nil {
		return nil, err
	}
	order.Confirmed = true

	if s.notifier != nil {
		o := *order
		go s.notifier.NotifyStatusChanged(o, o.Status, o.Status)
	}

	return order, nil
}

// ApplyPaymentResult reconciles a normalized provider notification onto
// order state. Approved confirms the order; rejected restores stock for
// every item, exactly once — the reconciliation flag is checked and set
// under a row lock so replayed webhooks cannot double-restore.
func (s *OrderService) ApplyPaymentResult(ctx context.Context, result WebhookResult) error {
	orderID, err := uuid.Parse(result.ExternalReference)
	if err != nil {
		return ErrOrderNotFound
	}

	var order models.Order
	var notifyStatus string

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").
			First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		switch result.Status {
		case MPStatusApproved:
			if order.ReconciledAt != nil {
				return nil
			}
			now := time.Now()
			notifyStatus = models.PaymentStatusAprobado
			return tx.Model(&models.Order{}).
				Where("id = ?", orderID).
				Updates(map[string]any{
					"estado_pago":       models.PaymentStatusAprobado,
					"confirmado":        true,
					"payment_id":        result.PaymentID,
					"reconciled_at":     &now,
					"reconcile_outcome": models.ReconcileOutcomeApproved,
				}).Error

		case MPStatusRejected:
			if order.ReconciledAt != nil {
				// Replay of an already reconciled payment; stock must
				// not be restored again.
				return nil
			}

			for _, item := range order.Items {
				if err := tx.Model(&models.Product{}).
					Where("id = ?", item.ProductID).
					UpdateColumn("stock", gorm.Expr("stock + ?", item.Quantity)).Error; err != nil {
					return err
				}
			}

			now := time.Now()
			notifyStatus = models.PaymentStatusRechazado
			return tx.Model(&models.Order{}).
				Where("id = ?", orderID).
				Updates(map[string]any{
					"estado_pago":       models.PaymentStatusRechazado,
					"payment_id":        result.PaymentID,
					"reconciled_at":     &now,
					"reconcile_outcome": models.ReconcileOutcomeRejected,
				}).Error

		case MPStatusPending, MPStatusInProcess:
			if order.ReconciledAt != nil {
				// Notifications arrive out of order and get retried; a
				// reconciled order never goes back to pendiente.
				return nil
			}
			notifyStatus = models.PaymentStatusPendiente
			return tx.Model(&models.Order{}).
				Where("id = ?", orderID).
				Updates(map[string]any{
					"estado_pago": models.PaymentStatusPendiente,
					"payment_id":  result.PaymentID,
				}).Error

		default:
			log.Printf("[Orders] ignoring unknown payment status %q for order %s", result.Status, orderID)
			return nil
		}
	})
	if err != nil {
		return err
	}

	if notifyStatus != "" && s.notifier != nil {
		order.PaymentStatus = notifyStatus
		o := order
		go s.notifier.NotifyPaymentResult(o, notifyStatus)
	}

	return nil
}

// MarkPaymentApproved is used by the PayPal execute flow, where approval
// arrives on the return redirect rather than through a webhook.
func (s *OrderService) MarkPaymentApproved(ctx context.Context, orderID uuid.UUID, paymentID string) (*models.Order, error) {
	err := s.ApplyPaymentResult(ctx, WebhookResult{
		Valid:             true,
		PaymentID:         paymentID,
		Status:            MPStatusApproved,
		ExternalReference: orderID.String(),
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}
