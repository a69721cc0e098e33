package biometric

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
)

func newTestCredential(t *testing.T) (*model.BiometricCredential, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return &model.BiometricCredential{
		CredentialID: "cred-1",
		PublicKey:    pub,
		SignCount:    3,
	}, key
}

func signedPayload(t *testing.T, key *ecdsa.PrivateKey, credentialID string, signCount uint32, nonce string) []byte {
	t.Helper()
	digest := assertionDigest(credentialID, signCount, nonce)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)
	raw, err := json.Marshal(assertionPayload{
		SignCount: signCount,
		Nonce:     nonce,
		Signature: base64.StdEncoding.EncodeToString(sig),
	})
	require.NoError(t, err)
	return raw
}

func TestVerifyAssertionAcceptsValidSignature(t *testing.T) {
	cred, key := newTestCredential(t)
	payload := signedPayload(t, key, cred.CredentialID, 4, "nonce-a")

	assertion, err := NewECDSAVerifier().VerifyAssertion(context.Background(), cred, payload)
	require.NoError(t, err)
	assert.True(t, assertion.Verified)
	assert.Equal(t, uint32(4), assertion.NewSignCount)
}

func TestVerifyAssertionRejectsWrongKey(t *testing.T) {
	cred, _ := newTestCredential(t)
	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	payload := signedPayload(t, otherKey, cred.CredentialID, 4, "nonce-a")

	assertion, err := NewECDSAVerifier().VerifyAssertion(context.Background(), cred, payload)
	require.NoError(t, err)
	assert.False(t, assertion.Verified)
}

func TestVerifyAssertionRejectsTamperedCounter(t *testing.T) {
	cred, key := newTestCredential(t)
	payload := signedPayload(t, key, cred.CredentialID, 4, "nonce-a")

	var p assertionPayload
	require.NoError(t, json.Unmarshal(payload, &p))
	p.SignCount = 99 // signature no longer covers this counter
	tampered, err := json.Marshal(p)
	require.NoError(t, err)

	assertion, err := NewECDSAVerifier().VerifyAssertion(context.Background(), cred, tampered)
	require.NoError(t, err)
	assert.False(t, assertion.Verified)
}

func TestVerifyAssertionMalformedInput(t *testing.T) {
	cred, _ := newTestCredential(t)

	_, err := NewECDSAVerifier().VerifyAssertion(context.Background(), cred, []byte("not json"))
	assert.Error(t, err)

	_, err = NewECDSAVerifier().VerifyAssertion(context.Background(), cred,
		[]byte(`{"sign_count":4,"nonce":"n","signature":"***"}`))
	assert.Error(t, err)
}

func TestVerifyAssertionUnreadableStoredKey(t *testing.T) {
	cred, key := newTestCredential(t)
	cred.PublicKey = []byte{0x01, 0x02}
	payload := signedPayload(t, key, cred.CredentialID, 4, "nonce-a")

	_, err := NewECDSAVerifier().VerifyAssertion(context.Background(), cred, payload)
	assert.Error(t, err)
}
