package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Business-rule failures surfaced to handlers as 4xx responses.
var (
	ErrEmptyCart        = errors.New("el carrito está vacío")
	ErrInvalidQuantity  = errors.New("la cantidad debe ser un entero positivo")
	ErrOrderNotFound    = errors.New("pedido no encontrado")
	ErrOrderAlreadyPaid = errors.New("el pedido ya fue pagado")
)

// ValidationError reports bad input shape or range; rejected before any
// side effect.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// InsufficientStockError reports a stock shortfall detected at checkout
// time. It names the product and both quantities so the client can react.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock insuficiente para %q: solicitado %d, disponible %d",
		e.ProductName, e.Requested, e.Available)
}

// ProductInactiveError reports a cart line whose product was deactivated
// after it was added.
type ProductInactiveError struct {
	ProductID   uuid.UUID
	ProductName string
}

func (e *ProductInactiveError) Error() string {
	return fmt.Sprintf("el producto %q ya no está disponible", e.ProductName)
}

// InvalidTransitionError reports a forbidden order-status change.
type InvalidTransitionError struct {
	From, To string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transición de estado inválida: %s -> %s", e.From, e.To)
}
