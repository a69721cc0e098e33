package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User roles
const (
	RoleOrgAdmin   = "org_admin"
	RoleManager    = "manager"
	RoleSuperAdmin = "super_admin" // platform-level, no tenant
)

// User represents a dashboard user. TenantID is empty only for platform
// super admins. Users are deactivated, never deleted.
type User struct {
	ID            string         `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID      string         `json:"tenant_id" gorm:"type:uuid;index"`
	Email         string         `json:"email" gorm:"type:varchar(120);uniqueIndex;not null"`
	Password      string         `json:"-" gorm:"type:varchar(255);not null"`
	Name          string         `json:"name" gorm:"type:varchar(120)"`
	Role          string         `json:"role" gorm:"type:varchar(20);not null;default:'org_admin'"`
	EmailVerified bool           `json:"email_verified" gorm:"default:false"`
	Active        bool           `json:"active" gorm:"default:true"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (u *User) GetTenantID() string   { return u.TenantID }
func (u *User) SetTenantID(id string) { u.TenantID = id }
