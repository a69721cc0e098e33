package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscription plans
const (
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// Subscription status values
const (
	SubStatusActive    = "active"
	SubStatusCancelled = "cancelled"
	SubStatusExpired   = "expired"
	SubStatusPastDue   = "past_due"
)

// Subscription is one-per-organization. Trial fields track the 14-day
// window; scheduled downgrade fields hold a pending transition applied by
// the periodic sweep at the end of the billing period.
type Subscription struct {
	ID            string     `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID      string     `json:"tenant_id" gorm:"type:uuid;uniqueIndex;not null"`
	Plan          string     `json:"plan" gorm:"type:varchar(20);default:'starter'"`
	Status        string     `json:"status" gorm:"type:varchar(20);default:'active'"`
	IsTrialActive bool       `json:"is_trial_active" gorm:"default:false"`
	TrialEndDate  *time.Time `json:"trial_end_date,omitempty"`

	ProviderCustomerCode     string     `json:"provider_customer_code,omitempty" gorm:"type:varchar(64)"`
	ProviderSubscriptionCode string     `json:"provider_subscription_code,omitempty" gorm:"type:varchar(64)"`
	AmountKobo               int64      `json:"amount_kobo,omitempty"`
	NextPaymentDate          *time.Time `json:"next_payment_date,omitempty"`

	ScheduledPlan string     `json:"scheduled_plan,omitempty" gorm:"type:varchar(20)"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`

	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (s *Subscription) GetTenantID() string   { return s.TenantID }
func (s *Subscription) SetTenantID(id string) { s.TenantID = id }

// PaymentEvent is the durable idempotency record for payment processing.
// The unique index on Reference makes "already processed" a fact the
// database enforces under at-least-once webhook delivery.
type PaymentEvent struct {
	ID          string    `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID    string    `json:"tenant_id" gorm:"type:uuid;index;not null"`
	Reference   string    `json:"reference" gorm:"type:varchar(128);uniqueIndex;not null"`
	Plan        string    `json:"plan" gorm:"type:varchar(20)"`
	AmountKobo  int64     `json:"amount_kobo"`
	Provider    string    `json:"provider" gorm:"type:varchar(20);default:'paystack'"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (p *PaymentEvent) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
