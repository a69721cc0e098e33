package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attendance status labels. Precedence when both could apply: late wins
// over early; a record is "present" only when neither applies.
const (
	AttendanceStatusPresent = "present"
	AttendanceStatusLate    = "late"
	AttendanceStatusEarly   = "early"
)

// Check-in methods
const (
	MethodQR        = "qr"
	MethodManual    = "manual"
	MethodBiometric = "biometric"
	MethodPhoto     = "photo"
)

// AttendanceLog holds one record per staff member per calendar day. The
// unique index on (tenant_id, staff_id, work_date) is what enforces the
// one-record invariant under concurrent duplicate submissions; application
// code never relies on read-then-write.
type AttendanceLog struct {
	ID            string         `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID      string         `json:"tenant_id" gorm:"type:uuid;uniqueIndex:idx_attendance_day;not null"`
	StaffID       string         `json:"staff_id" gorm:"type:uuid;uniqueIndex:idx_attendance_day;not null"`
	StaffCode     string         `json:"staff_code" gorm:"type:varchar(32)"`
	WorkDate      string         `json:"work_date" gorm:"type:varchar(10);uniqueIndex:idx_attendance_day;not null"` // YYYY-MM-DD in org timezone
	CheckInTime   *time.Time     `json:"check_in_time,omitempty"`
	CheckOutTime  *time.Time     `json:"check_out_time,omitempty"`
	IsLate        bool           `json:"is_late" gorm:"default:false"`
	IsEarly       bool           `json:"is_early" gorm:"default:false"`
	Status        string         `json:"status" gorm:"type:varchar(16);default:'present'"`
	Method        string         `json:"method" gorm:"type:varchar(16)"`
	CheckInPhoto  string         `json:"check_in_photo,omitempty" gorm:"type:text"`
	CheckOutPhoto string         `json:"check_out_photo,omitempty" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

func (a *AttendanceLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (a *AttendanceLog) GetTenantID() string   { return a.TenantID }
func (a *AttendanceLog) SetTenantID(id string) { a.TenantID = id }
