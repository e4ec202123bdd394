package models

import "time"

// AbandonedCart is a snapshot recorded when a buyer leaves checkout
// without completing it. Consumed by the external reminder workflow
// polling /api/carritos-pendientes.
type AbandonedCart struct {
	BaseModel
	Phone string `json:"telefono"`
	Email string `json:"email"`
	Name  string `json:"nombre"`

	Items []byte  `gorm:"type:jsonb" json:"items"`
	Total float64 `json:"total"`

	ReminderSent bool       `json:"reminder_sent"`
	ReminderAt   *time.Time `json:"reminder_at"`
	Recovered    bool       `json:"recovered"`
	RecoveredAt  *time.Time `json:"recovered_at"`
	Cancelled    bool       `json:"cancelled"`
	CancelledAt  *time.Time `json:"cancelled_at"`
}
