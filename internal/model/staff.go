package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Staff represents a staff member who checks in and out. StaffCode is the
// human-facing identifier ("STAFF0001"), unique within a tenant only.
type Staff struct {
	ID         string         `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID   string         `json:"tenant_id" gorm:"type:uuid;uniqueIndex:idx_staff_tenant_code;not null"`
	StaffCode  string         `json:"staff_code" gorm:"type:varchar(32);uniqueIndex:idx_staff_tenant_code;not null"`
	Name       string         `json:"name" gorm:"type:varchar(120);not null"`
	Department string         `json:"department" gorm:"type:varchar(80)"`
	Position   string         `json:"position" gorm:"type:varchar(80)"`
	Active     bool           `json:"active" gorm:"default:true"`
	QRPayload  string         `json:"qr_payload" gorm:"type:text"`
	FaceRef    string         `json:"face_ref,omitempty" gorm:"type:varchar(255)"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (s *Staff) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (s *Staff) GetTenantID() string   { return s.TenantID }
func (s *Staff) SetTenantID(id string) { s.TenantID = id }
