package models

import "time"

// Session status
const (
	SessionStatusActive = "active"
	SessionStatusClosed = "closed"
)

// TableSession represents one physical table's active ordering window.
// At most one active session may exist per (restaurant, table number);
// the session is retired (status closed), never deleted.
type TableSession struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	RestaurantID uint            `gorm:"not null;index:idx_restaurant_table" json:"restaurant_id"`
	Restaurant   Restaurant      `gorm:"foreignKey:RestaurantID" json:"-"`
	TableNumber  int             `gorm:"not null;index:idx_restaurant_table" json:"table_number"`
	Status       string          `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	OwnerID      uint            `gorm:"not null" json:"owner_id"`
	Members      []SessionMember `gorm:"foreignKey:SessionID" json:"members,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
