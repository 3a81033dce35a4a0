package models

import "time"

// Member status
const (
	MemberStatusPending  = "pending"
	MemberStatusApproved = "approved"
	MemberStatusRejected = "rejected"
)

// SessionMember is one diner's participation in a table session.
// Exactly one member per session has IsOwner set and that member is
// always approved. A user holds at most one member row per session.
type SessionMember struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SessionID   uint       `gorm:"not null;index:idx_session_user,unique" json:"session_id"`
	UserID      uint       `gorm:"not null;index:idx_session_user,unique" json:"user_id"`
	DisplayName string     `gorm:"type:varchar(255)" json:"display_name"`
	Email       string     `gorm:"type:varchar(255)" json:"email"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	IsOwner     bool       `gorm:"not null;default:false" json:"is_owner"`
	JoinedAt    time.Time  `gorm:"not null" json:"joined_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
