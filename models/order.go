package models

import "time"

// Order status
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusSplit          = "split"
	OrderStatusPaid           = "paid"
	OrderStatusCancelled      = "cancelled"
)

// Order is the external order collaborator kept at its interface
// boundary: the settlement engine only reads the total and flips the
// status once every share is collected. TotalAmount is in minor
// currency units.
type Order struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	SessionID   uint         `gorm:"not null;index" json:"session_id"`
	Session     TableSession `gorm:"foreignKey:SessionID" json:"-"`
	Status      string       `gorm:"type:varchar(20);not null;default:'pending_payment'" json:"status"`
	TotalAmount int64        `gorm:"not null;default:0" json:"total_amount"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
