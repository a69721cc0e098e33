// Package biometric stores staff WebAuthn credentials and consumes the
// external ceremony verifier's verdict. The cryptographic protocol lives
// outside this core; all we enforce here is the counter-based replay guard.
package biometric

import (
	"context"

	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/tenantdb"
)

// Assertion is the ceremony verifier's verdict for an authentication
// attempt against a stored credential.
type Assertion struct {
	Verified     bool
	NewSignCount uint32
}

// CeremonyVerifier validates a raw assertion payload against a stored
// public key and counter.
type CeremonyVerifier interface {
	VerifyAssertion(ctx context.Context, cred *model.BiometricCredential, payload []byte) (Assertion, error)
}

// Service manages biometric credentials within a tenant scope.
type Service struct {
	verifier CeremonyVerifier
	log      *zap.Logger
}

// NewService creates the biometric service.
func NewService(verifier CeremonyVerifier, log *zap.Logger) *Service {
	return &Service{verifier: verifier, log: log}
}

// RegisterCredential stores a new credential for a staff member.
func (s *Service) RegisterCredential(scope *tenantdb.Scope, staffID, credentialID string, publicKey []byte) (*model.BiometricCredential, error) {
	if staffID == "" || credentialID == "" || len(publicKey) == 0 {
		return nil, apperr.Validation("staff, credential id and public key are required")
	}

	var staff model.Staff
	if err := scope.FindOne(&staff, tenantdb.Filter{"id": staffID}); err != nil {
		return nil, err
	}
	if !staff.Active {
		return nil, apperr.Forbidden("staff member is inactive")
	}

	cred := &model.BiometricCredential{
		StaffID:      staffID,
		CredentialID: credentialID,
		PublicKey:    publicKey,
	}
	if err := scope.Insert(cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// VerifyCheckin validates an assertion for a staff member's credential and
// advances the stored counter. The advance is a conditional update on
// sign_count, so of two concurrent submissions carrying the same counter
// exactly one wins; comparing against the earlier read alone would let
// both through.
func (s *Service) VerifyCheckin(ctx context.Context, scope *tenantdb.Scope, credentialID string, payload []byte) (*model.BiometricCredential, error) {
	var cred model.BiometricCredential
	if err := scope.FindOne(&cred, tenantdb.Filter{"credential_id": credentialID}); err != nil {
		return nil, err
	}

	assertion, err := s.verifier.VerifyAssertion(ctx, &cred, payload)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !assertion.Verified {
		return nil, apperr.Forbidden("biometric assertion rejected")
	}
	if assertion.NewSignCount <= cred.SignCount {
		s.log.Warn("biometric replay guard triggered",
			zap.String("credential_id", credentialID),
			zap.Uint32("stored", cred.SignCount),
			zap.Uint32("asserted", assertion.NewSignCount))
		return nil, apperr.Forbidden("credential counter did not advance, possible replay")
	}

	q, err := scope.Query(&model.BiometricCredential{}, tenantdb.Filter{"id": cred.ID})
	if err != nil {
		return nil, err
	}
	result := q.Where("sign_count < ?", assertion.NewSignCount).
		Update("sign_count", assertion.NewSignCount)
	if result.Error != nil {
		return nil, apperr.Internal(result.Error)
	}
	if result.RowsAffected == 0 {
		// A concurrent assertion advanced the counter past ours between
		// our read and this update.
		s.log.Warn("biometric replay guard triggered",
			zap.String("credential_id", credentialID),
			zap.Uint32("asserted", assertion.NewSignCount))
		return nil, apperr.Forbidden("credential counter did not advance, possible replay")
	}
	cred.SignCount = assertion.NewSignCount
	return &cred, nil
}
