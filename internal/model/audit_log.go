package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of super-admin actions. Rows are never
// updated or deleted.
type AuditLog struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey"`
	ActorID    string    `json:"actor_id" gorm:"type:uuid;index;not null"`
	ActorEmail string    `json:"actor_email" gorm:"type:varchar(120)"`
	Action     string    `json:"action" gorm:"type:varchar(64);index;not null"`
	Metadata   string    `json:"metadata" gorm:"type:jsonb"`
	IP         string    `json:"ip" gorm:"type:varchar(45)"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
