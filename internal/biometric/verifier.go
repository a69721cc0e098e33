package biometric

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
)

// assertionPayload is the wire form kiosks submit: the authenticator's new
// counter, a client nonce and an ASN.1 DER signature over both.
type assertionPayload struct {
	SignCount uint32 `json:"sign_count"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"` // base64 DER
}

// ECDSAVerifier validates assertion payloads against the credential's
// stored PKIX public key. Signatures cover
// sha256(credential_id || sign_count || nonce).
type ECDSAVerifier struct{}

// NewECDSAVerifier creates the default ceremony verifier.
func NewECDSAVerifier() *ECDSAVerifier {
	return &ECDSAVerifier{}
}

func (v *ECDSAVerifier) VerifyAssertion(ctx context.Context, cred *model.BiometricCredential, payload []byte) (Assertion, error) {
	var p assertionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Assertion{}, fmt.Errorf("biometric: malformed assertion: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return Assertion{}, fmt.Errorf("biometric: signature is not base64: %w", err)
	}

	pub, err := x509.ParsePKIXPublicKey(cred.PublicKey)
	if err != nil {
		return Assertion{}, fmt.Errorf("biometric: stored public key unreadable: %w", err)
	}
	ecKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return Assertion{}, fmt.Errorf("biometric: stored key is not ECDSA")
	}

	digest := assertionDigest(cred.CredentialID, p.SignCount, p.Nonce)
	return Assertion{
		Verified:     ecdsa.VerifyASN1(ecKey, digest[:], sig),
		NewSignCount: p.SignCount,
	}, nil
}

func assertionDigest(credentialID string, signCount uint32, nonce string) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", credentialID, signCount, nonce)))
}
