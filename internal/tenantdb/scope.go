// Package tenantdb wraps a shared gorm handle so that every read and write
// is pinned to a single tenant. A Scope is constructed per request from the
// authenticated tenant; nothing built on top of it can observe or mutate
// another tenant's rows.
package tenantdb

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
)

// TenantColumn is the column every tenant-owned table scopes on.
const TenantColumn = "tenant_id"

// Filter is a column -> value equality filter supplied by callers. The
// accessor merges the tenant constraint into it before any query runs.
type Filter map[string]interface{}

// TenantOwned is implemented by every model that belongs to a tenant. The
// accessor stamps the tenant identifier server-side on insert; callers may
// not supply one.
type TenantOwned interface {
	GetTenantID() string
	SetTenantID(string)
}

// Scope is a tenant-pinned data accessor.
type Scope struct {
	db       *gorm.DB
	tenantID string
}

// New constructs a Scope for the given tenant. An empty tenant identifier
// fails fast: a missing tenant at this layer means an upstream auth bug,
// and proceeding would scope queries to nothing.
func New(db *gorm.DB, tenantID string) (*Scope, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant identifier is required")
	}
	return &Scope{db: db, tenantID: tenantID}, nil
}

// TenantID returns the tenant this scope is pinned to.
func (s *Scope) TenantID() string {
	return s.tenantID
}

// scopedFilter merges the scope's tenant constraint into the caller filter.
// A caller filter that names a different tenant is a programming error
// upstream; it fails hard instead of being silently overridden.
func scopedFilter(tenantID string, filter Filter) (Filter, error) {
	merged := Filter{TenantColumn: tenantID}
	for k, v := range filter {
		if k == TenantColumn {
			if v != tenantID {
				return nil, apperr.CrossTenant("filter tenant does not match accessor tenant")
			}
			continue
		}
		merged[k] = v
	}
	return merged, nil
}

// sanitizeUpdates rejects any attempt to modify the tenant column, even
// through a nested update expression.
func sanitizeUpdates(updates Filter) error {
	for k, v := range updates {
		if k == TenantColumn {
			return apperr.CrossTenant("tenant identifier cannot be modified")
		}
		if nested, ok := v.(map[string]interface{}); ok {
			if err := sanitizeUpdates(Filter(nested)); err != nil {
				return err
			}
		}
		if nested, ok := v.(Filter); ok {
			if err := sanitizeUpdates(nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// FindOne loads the first row matching the filter within the tenant.
func (s *Scope) FindOne(dest interface{}, filter Filter) error {
	f, err := scopedFilter(s.tenantID, filter)
	if err != nil {
		return err
	}
	result := s.db.Where(map[string]interface{}(f)).First(dest)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apperr.NotFound("record")
		}
		return apperr.Internal(result.Error)
	}
	return nil
}

// Find loads all rows matching the filter within the tenant.
func (s *Scope) Find(dest interface{}, filter Filter) error {
	f, err := scopedFilter(s.tenantID, filter)
	if err != nil {
		return err
	}
	if result := s.db.Where(map[string]interface{}(f)).Find(dest); result.Error != nil {
		return apperr.Internal(result.Error)
	}
	return nil
}

// Count counts rows matching the filter within the tenant.
func (s *Scope) Count(mdl interface{}, filter Filter) (int64, error) {
	f, err := scopedFilter(s.tenantID, filter)
	if err != nil {
		return 0, err
	}
	var n int64
	if result := s.db.Model(mdl).Where(map[string]interface{}(f)).Count(&n); result.Error != nil {
		return 0, apperr.Internal(result.Error)
	}
	return n, nil
}

// stamp applies the scope's tenant to a document, rejecting documents that
// arrive already stamped for someone else.
func (s *Scope) stamp(doc TenantOwned) error {
	if existing := doc.GetTenantID(); existing != "" && existing != s.tenantID {
		return apperr.CrossTenant("document tenant does not match accessor tenant")
	}
	doc.SetTenantID(s.tenantID)
	return nil
}

// Insert stamps the tenant onto each document and persists it.
func (s *Scope) Insert(docs ...TenantOwned) error {
	for _, doc := range docs {
		if err := s.stamp(doc); err != nil {
			return err
		}
	}
	for _, doc := range docs {
		if result := s.db.Create(doc); result.Error != nil {
			return apperr.Internal(result.Error)
		}
	}
	return nil
}

// InsertIfAbsent persists the document unless a row already exists for the
// given conflict columns. It reports whether a row was created. This is the
// atomic insert-or-nothing primitive the attendance idempotency invariant
// is built on; the database unique index decides the race, not us.
func (s *Scope) InsertIfAbsent(doc TenantOwned, conflictColumns ...string) (bool, error) {
	if err := s.stamp(doc); err != nil {
		return false, err
	}
	cols := make([]clause.Column, 0, len(conflictColumns))
	for _, c := range conflictColumns {
		cols = append(cols, clause.Column{Name: c})
	}
	result := s.db.Clauses(clause.OnConflict{Columns: cols, DoNothing: true}).Create(doc)
	if result.Error != nil {
		return false, apperr.Internal(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateAll applies the updates to every row matching the filter within the
// tenant and returns the number of rows touched. Updates naming the tenant
// column are rejected outright.
func (s *Scope) UpdateAll(mdl interface{}, filter Filter, updates Filter) (int64, error) {
	if err := sanitizeUpdates(updates); err != nil {
		return 0, err
	}
	f, err := scopedFilter(s.tenantID, filter)
	if err != nil {
		return 0, err
	}
	result := s.db.Model(mdl).Where(map[string]interface{}(f)).Updates(map[string]interface{}(updates))
	if result.Error != nil {
		return 0, apperr.Internal(result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes rows matching the filter within the tenant. Primary
// records are deactivated, not deleted; this is for derived rows such as
// revoked credentials.
func (s *Scope) Delete(mdl interface{}, filter Filter) (int64, error) {
	f, err := scopedFilter(s.tenantID, filter)
	if err != nil {
		return 0, err
	}
	result := s.db.Where(map[string]interface{}(f)).Delete(mdl)
	if result.Error != nil {
		return 0, apperr.Internal(result.Error)
	}
	return result.RowsAffected, nil
}

// Query returns a gorm query already pinned to the tenant, for aggregation
// pipelines that need Select/Group/Order on top. The tenant constraint is
// applied before any caller-supplied stage can run.
func (s *Scope) Query(mdl interface{}, filter Filter) (*gorm.DB, error) {
	f, err := scopedFilter(s.tenantID, filter)
	if err != nil {
		return nil, err
	}
	return s.db.Model(mdl).Where(map[string]interface{}(f)), nil
}
