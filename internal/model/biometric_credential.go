package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BiometricCredential stores the public key and signature counter of a
// staff member's WebAuthn credential. The ceremony itself is handled by an
// external verifier; we only keep what replay protection needs.
type BiometricCredential struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID     string    `json:"tenant_id" gorm:"type:uuid;index;not null"`
	StaffID      string    `json:"staff_id" gorm:"type:uuid;index;not null"`
	CredentialID string    `json:"credential_id" gorm:"type:varchar(255);uniqueIndex;not null"`
	PublicKey    []byte    `json:"-" gorm:"type:bytea;not null"`
	SignCount    uint32    `json:"sign_count" gorm:"default:0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (b *BiometricCredential) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

func (b *BiometricCredential) GetTenantID() string   { return b.TenantID }
func (b *BiometricCredential) SetTenantID(id string) { b.TenantID = id }
