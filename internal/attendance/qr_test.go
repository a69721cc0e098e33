package attendance

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
)

func TestQRPayloadRoundTrip(t *testing.T) {
	payload := EncodeQRPayload("tenant-1", "STAFF0001")

	tenantID, staffCode, err := DecodeQRPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)
	assert.Equal(t, "STAFF0001", staffCode)
}

func TestDecodeQRPayloadRejectsGarbage(t *testing.T) {
	_, _, err := DecodeQRPayload("%%%not-base64%%%")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, _, err = DecodeQRPayload(base64.StdEncoding.EncodeToString([]byte("not json")))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestDecodeQRPayloadRejectsIncomplete(t *testing.T) {
	_, _, err := DecodeQRPayload(base64.StdEncoding.EncodeToString([]byte(`{"tenant_id":"t1"}`)))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, _, err = DecodeQRPayload(base64.StdEncoding.EncodeToString([]byte(`{"staff_code":"S1"}`)))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
