package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization status values
const (
	OrgStatusTrial     = "trial"
	OrgStatusActive    = "active"
	OrgStatusSuspended = "suspended"
)

// OrgSettings holds per-organization attendance configuration. Times are
// local clock values ("09:00") interpreted in the organization's timezone.
type OrgSettings struct {
	LatenessTime       string `json:"lateness_time" gorm:"type:varchar(5);default:'09:00'"`
	EarlyDepartureTime string `json:"early_departure_time" gorm:"type:varchar(5);default:'17:00'"`
	WorkStartTime      string `json:"work_start_time" gorm:"type:varchar(5);default:'08:00'"`
	WorkEndTime        string `json:"work_end_time" gorm:"type:varchar(5);default:'17:00'"`
	Timezone           string `json:"timezone" gorm:"type:varchar(64);default:'Africa/Lagos'"`
	CheckinPasscode    string `json:"-" gorm:"type:varchar(32)"`
	PhotoRequired      bool   `json:"photo_required" gorm:"default:false"`
	EnabledMethods     string `json:"enabled_methods" gorm:"type:varchar(128);default:'qr,manual'"`
	MaxStaff           int    `json:"max_staff" gorm:"default:0"` // 0 means plan limit applies
	APIKey             string `json:"-" gorm:"type:varchar(64);index"`
}

// Organization is the tenant: the unit of data isolation. Organizations are
// suspended rather than hard-deleted in normal flow.
type Organization struct {
	ID         string         `json:"id" gorm:"type:uuid;primaryKey"`
	Name       string         `json:"name" gorm:"type:varchar(120);not null"`
	Subdomain  string         `json:"subdomain" gorm:"type:varchar(63);uniqueIndex;not null"`
	AdminEmail string         `json:"admin_email" gorm:"type:varchar(120);not null"`
	Status     string         `json:"status" gorm:"type:varchar(20);default:'trial'"`
	Plan       string         `json:"plan" gorm:"type:varchar(20);default:'starter'"`
	Settings   OrgSettings    `json:"settings" gorm:"embedded;embeddedPrefix:settings_"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}
