package models

import (
	"time"
)

// AuditLog records who did what to which submission. Append-only.
type AuditLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	AdminID   *uint     `json:"admin_id"`
	Admin     *Admin    `json:"admin,omitempty" gorm:"foreignKey:AdminID"`
	Action    string    `json:"action" gorm:"not null"`
	Resource  string    `json:"resource" gorm:"not null"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}
