package tenantdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
)

type fakeDoc struct {
	TenantID string
	Name     string
}

func (d *fakeDoc) GetTenantID() string   { return d.TenantID }
func (d *fakeDoc) SetTenantID(id string) { d.TenantID = id }

func TestNewRejectsEmptyTenant(t *testing.T) {
	_, err := New(nil, "")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestScopedFilterMergesTenant(t *testing.T) {
	f, err := scopedFilter("tenant-a", Filter{"staff_id": "s1", "work_date": "2026-08-30"})
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", f[TenantColumn])
	assert.Equal(t, "s1", f["staff_id"])
	assert.Equal(t, "2026-08-30", f["work_date"])
}

func TestScopedFilterAllowsMatchingTenant(t *testing.T) {
	f, err := scopedFilter("tenant-a", Filter{TenantColumn: "tenant-a", "active": true})
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", f[TenantColumn])
}

func TestScopedFilterRejectsForeignTenant(t *testing.T) {
	_, err := scopedFilter("tenant-a", Filter{TenantColumn: "tenant-b"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindCrossTenant))
}

func TestScopedFilterOnNilFilter(t *testing.T) {
	f, err := scopedFilter("tenant-a", nil)
	require.NoError(t, err)
	assert.Equal(t, Filter{TenantColumn: "tenant-a"}, f)
}

func TestSanitizeUpdatesRejectsTenantColumn(t *testing.T) {
	err := sanitizeUpdates(Filter{"name": "x", TenantColumn: "tenant-b"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindCrossTenant))
}

func TestSanitizeUpdatesRejectsNestedTenantColumn(t *testing.T) {
	err := sanitizeUpdates(Filter{
		"settings": map[string]interface{}{
			TenantColumn: "tenant-b",
		},
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindCrossTenant))

	err = sanitizeUpdates(Filter{
		"outer": Filter{"inner": Filter{TenantColumn: "tenant-b"}},
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindCrossTenant))
}

func TestSanitizeUpdatesAllowsCleanSet(t *testing.T) {
	err := sanitizeUpdates(Filter{"name": "x", "active": false})
	assert.NoError(t, err)
}

func TestStampAppliesScopeTenant(t *testing.T) {
	s := &Scope{tenantID: "tenant-a"}
	doc := &fakeDoc{Name: "staff"}
	require.NoError(t, s.stamp(doc))
	assert.Equal(t, "tenant-a", doc.TenantID)
}

func TestStampRejectsForeignDocument(t *testing.T) {
	s := &Scope{tenantID: "tenant-a"}
	doc := &fakeDoc{TenantID: "tenant-b"}
	err := s.stamp(doc)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindCrossTenant))
}

func TestInsertRejectsForeignDocumentBeforeTouchingDB(t *testing.T) {
	// db is nil: if the cross-tenant check did not fire first this would panic.
	s := &Scope{tenantID: "tenant-a"}
	err := s.Insert(&fakeDoc{TenantID: "tenant-b"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindCrossTenant))
}

func TestUpdateAllRejectsTenantMutationBeforeTouchingDB(t *testing.T) {
	s := &Scope{tenantID: "tenant-a"}
	_, err := s.UpdateAll(&fakeDoc{}, Filter{"name": "x"}, Filter{TenantColumn: "tenant-b"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindCrossTenant))
}

func TestQueryRejectsForeignFilterBeforeTouchingDB(t *testing.T) {
	s := &Scope{tenantID: "tenant-a"}
	_, err := s.Query(&fakeDoc{}, Filter{TenantColumn: "tenant-b"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindCrossTenant))
}
