package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/config"
)

// VerifiedPayment is the provider's server-side record of a payment. The
// lifecycle manager trusts nothing from the client; only this.
type VerifiedPayment struct {
	Reference    string
	Status       string
	AmountKobo   int64
	CustomerCode string
	TenantID     string
	Plan         string
	PaidAt       time.Time
}

// PaymentVerifier verifies a payment reference against the provider.
type PaymentVerifier interface {
	Verify(ctx context.Context, reference string) (*VerifiedPayment, error)
}

// PaystackClient verifies transaction references against the Paystack API.
type PaystackClient struct {
	client *resty.Client
}

// NewPaystackClient creates a verification client with a bounded timeout so
// a stuck gateway call cannot hold a request open indefinitely.
func NewPaystackClient(cfg *config.BillingConfig) *PaystackClient {
	client := resty.New().
		SetBaseURL(cfg.PaystackBaseURL).
		SetTimeout(cfg.VerifyTimeout).
		SetAuthToken(cfg.PaystackSecretKey).
		SetHeader("Content-Type", "application/json")
	return &PaystackClient{client: client}
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"` // kobo
		PaidAt    string `json:"paid_at"`
		Customer  struct {
			CustomerCode string `json:"customer_code"`
		} `json:"customer"`
		Metadata struct {
			TenantID string `json:"tenant_id"`
			Plan     string `json:"plan"`
		} `json:"metadata"`
	} `json:"data"`
}

// Verify fetches the provider's record for the reference.
func (p *PaystackClient) Verify(ctx context.Context, reference string) (*VerifiedPayment, error) {
	var out paystackVerifyResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/transaction/verify/%s", reference))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("paystack verify: %w", err))
	}
	if resp.IsError() {
		return nil, apperr.Internal(fmt.Errorf("paystack verify: status %d", resp.StatusCode()))
	}
	if !out.Status {
		return nil, apperr.Validation("payment reference could not be verified")
	}

	paidAt, _ := time.Parse(time.RFC3339, out.Data.PaidAt)
	return &VerifiedPayment{
		Reference:    out.Data.Reference,
		Status:       out.Data.Status,
		AmountKobo:   out.Data.Amount,
		CustomerCode: out.Data.Customer.CustomerCode,
		TenantID:     out.Data.Metadata.TenantID,
		Plan:         out.Data.Metadata.Plan,
		PaidAt:       paidAt,
	}, nil
}
