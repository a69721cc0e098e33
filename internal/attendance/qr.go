package attendance

import (
	"encoding/base64"
	"encoding/json"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
)

// qrPayload is what a staff badge QR code carries: enough to resolve the
// staff member inside their own tenant without a separate tenant hint.
type qrPayload struct {
	TenantID  string `json:"tenant_id"`
	StaffCode string `json:"staff_code"`
}

// EncodeQRPayload builds the badge payload for a staff member.
func EncodeQRPayload(tenantID, staffCode string) string {
	raw, _ := json.Marshal(qrPayload{TenantID: tenantID, StaffCode: staffCode})
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeQRPayload parses a scanned badge payload.
func DecodeQRPayload(payload string) (tenantID, staffCode string, err error) {
	raw, decErr := base64.StdEncoding.DecodeString(payload)
	if decErr != nil {
		return "", "", apperr.Validation("malformed QR payload")
	}
	var p qrPayload
	if jsonErr := json.Unmarshal(raw, &p); jsonErr != nil {
		return "", "", apperr.Validation("malformed QR payload")
	}
	if p.TenantID == "" || p.StaffCode == "" {
		return "", "", apperr.Validation("QR payload missing tenant or staff identifier")
	}
	return p.TenantID, p.StaffCode, nil
}
