package models

import "time"

// Share status
const (
	ShareStatusPending    = "pending"
	ShareStatusProcessing = "processing"
	ShareStatusPaid       = "paid"
	ShareStatusFailed     = "failed"
)

// Aggregate order payment status, derived from the share set and never
// stored on its own.
const (
	OrderPaymentUnpaid  = "unpaid"
	OrderPaymentPartial = "partial"
	OrderPaymentPaid    = "paid"
	OrderPaymentFailed  = "failed"
)

// SplitPaymentShare is one participant's portion of a finalized order
// total. Amount is in minor currency units; the sum of all shares for
// an order equals the order total exactly. The token is single-use:
// once the share is paid it is terminal.
type SplitPaymentShare struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	OrderID      uint       `gorm:"not null;index" json:"order_id"`
	Order        Order      `gorm:"foreignKey:OrderID" json:"-"`
	UserID       uint       `gorm:"not null" json:"user_id"`
	Amount       int64      `gorm:"not null" json:"amount"`
	Token        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"`
	Status       string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Method       string     `gorm:"type:varchar(20)" json:"method"`
	Provider     string     `gorm:"type:varchar(20)" json:"provider"`
	GatewayTxnID *string    `gorm:"type:varchar(100)" json:"gateway_txn_id,omitempty"`
	Attempts     int        `gorm:"not null;default:0" json:"attempts"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
