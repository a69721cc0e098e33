package biometric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/tenantdb"
)

type stubVerifier struct {
	assertion Assertion
	err       error
	// onVerify runs between the service's credential read and its counter
	// update, where a concurrent submission would interleave.
	onVerify func(cred *model.BiometricCredential)
}

func (s *stubVerifier) VerifyAssertion(_ context.Context, cred *model.BiometricCredential, _ []byte) (Assertion, error) {
	if s.onVerify != nil {
		s.onVerify(cred)
	}
	return s.assertion, s.err
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Staff{}, &model.BiometricCredential{}))
	return db
}

func seedCredential(t *testing.T, db *gorm.DB, tenantID string, signCount uint32) (*tenantdb.Scope, *model.BiometricCredential) {
	t.Helper()
	scope, err := tenantdb.New(db, tenantID)
	require.NoError(t, err)

	staff := &model.Staff{StaffCode: "STAFF0001", Name: "Ada", Active: true}
	require.NoError(t, scope.Insert(staff))

	cred := &model.BiometricCredential{
		StaffID:      staff.ID,
		CredentialID: "cred-1",
		PublicKey:    []byte("pk"),
		SignCount:    signCount,
	}
	require.NoError(t, scope.Insert(cred))
	return scope, cred
}

func TestRegisterCredential(t *testing.T) {
	db := openTestDB(t)
	scope, err := tenantdb.New(db, "tenant-a")
	require.NoError(t, err)

	staff := &model.Staff{StaffCode: "STAFF0001", Name: "Ada", Active: true}
	require.NoError(t, scope.Insert(staff))

	svc := NewService(&stubVerifier{}, zap.NewNop())
	cred, err := svc.RegisterCredential(scope, staff.ID, "cred-1", []byte("pk"))
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", cred.TenantID)

	var stored model.BiometricCredential
	require.NoError(t, scope.FindOne(&stored, tenantdb.Filter{"credential_id": "cred-1"}))
	assert.Equal(t, staff.ID, stored.StaffID)
	assert.Equal(t, uint32(0), stored.SignCount)
}

func TestRegisterCredentialRejectsInactiveStaff(t *testing.T) {
	db := openTestDB(t)
	scope, err := tenantdb.New(db, "tenant-a")
	require.NoError(t, err)

	staff := &model.Staff{StaffCode: "STAFF0001", Name: "Ada", Active: false}
	require.NoError(t, scope.Insert(staff))

	svc := NewService(&stubVerifier{}, zap.NewNop())
	_, err = svc.RegisterCredential(scope, staff.ID, "cred-1", []byte("pk"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestVerifyCheckinAdvancesCounter(t *testing.T) {
	db := openTestDB(t)
	scope, _ := seedCredential(t, db, "tenant-a", 3)

	svc := NewService(&stubVerifier{assertion: Assertion{Verified: true, NewSignCount: 4}}, zap.NewNop())
	cred, err := svc.VerifyCheckin(context.Background(), scope, "cred-1", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), cred.SignCount)

	var stored model.BiometricCredential
	require.NoError(t, scope.FindOne(&stored, tenantdb.Filter{"credential_id": "cred-1"}))
	assert.Equal(t, uint32(4), stored.SignCount)
}

func TestVerifyCheckinRejectsStaleCounter(t *testing.T) {
	db := openTestDB(t)
	scope, _ := seedCredential(t, db, "tenant-a", 5)

	for _, asserted := range []uint32{5, 4, 0} {
		svc := NewService(&stubVerifier{assertion: Assertion{Verified: true, NewSignCount: asserted}}, zap.NewNop())
		_, err := svc.VerifyCheckin(context.Background(), scope, "cred-1", []byte("payload"))
		require.Error(t, err, "asserted counter %d", asserted)
		assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	}

	var stored model.BiometricCredential
	require.NoError(t, scope.FindOne(&stored, tenantdb.Filter{"credential_id": "cred-1"}))
	assert.Equal(t, uint32(5), stored.SignCount)
}

func TestVerifyCheckinRejectsUnverifiedAssertion(t *testing.T) {
	db := openTestDB(t)
	scope, _ := seedCredential(t, db, "tenant-a", 3)

	svc := NewService(&stubVerifier{assertion: Assertion{Verified: false, NewSignCount: 4}}, zap.NewNop())
	_, err := svc.VerifyCheckin(context.Background(), scope, "cred-1", []byte("payload"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestVerifyCheckinCounterRaceOneWinner(t *testing.T) {
	// Two submissions carry the same asserted counter. The first writer
	// advances the row while the second is still between its read and its
	// update; the second's conditional update must match nothing.
	db := openTestDB(t)
	scope, cred := seedCredential(t, db, "tenant-a", 3)

	verifier := &stubVerifier{assertion: Assertion{Verified: true, NewSignCount: 4}}
	verifier.onVerify = func(_ *model.BiometricCredential) {
		// The competing submission commits first.
		require.NoError(t, db.Model(&model.BiometricCredential{}).
			Where("id = ?", cred.ID).
			Update("sign_count", 4).Error)
	}

	svc := NewService(verifier, zap.NewNop())
	_, err := svc.VerifyCheckin(context.Background(), scope, "cred-1", []byte("payload"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	var stored model.BiometricCredential
	require.NoError(t, scope.FindOne(&stored, tenantdb.Filter{"credential_id": "cred-1"}))
	assert.Equal(t, uint32(4), stored.SignCount)
}
