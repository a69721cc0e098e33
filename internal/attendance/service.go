// Package attendance records check-in and check-out events: one record per
// staff member per calendar day, classified against the organization's
// lateness and early-departure thresholds.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/feature"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/tenantdb"
)

// ImageUploader pushes a base64 photo payload to the external image store
// and returns its URL. Uploads are best-effort from the caller's view.
type ImageUploader interface {
	Upload(ctx context.Context, folder, base64Payload string) (string, error)
}

// Request carries one check-in or check-out submission from the kiosk.
type Request struct {
	TenantID  string `json:"tenant_id,omitempty"`
	StaffCode string `json:"staff_code,omitempty"`
	QRPayload string `json:"qr_payload,omitempty"`
	Method    string `json:"method"`
	Passcode  string `json:"passcode,omitempty"`
	Photo     string `json:"photo,omitempty"` // base64, optional
}

// Service is the attendance recording flow.
type Service struct {
	db      *gorm.DB
	images  ImageUploader
	log     *zap.Logger
	devMode bool
	now     func() time.Time
}

// NewService creates the attendance service. devMode mirrors the server's
// environment flag and unlocks plan-gated capabilities, same as the
// dashboard feature gate.
func NewService(db *gorm.DB, images ImageUploader, log *zap.Logger, devMode bool) *Service {
	return &Service{db: db, images: images, log: log, devMode: devMode, now: time.Now}
}

// resolveStaff locates the staff member for a submission. With a QR payload
// or tenant hint the lookup is tenant-scoped. With neither, it searches by
// staff code across tenants: a deliberate convenience for kiosk devices
// that carry no tenant context. This is the only place in the codebase
// allowed to query staff without a tenant; do not reuse the pattern.
func (s *Service) resolveStaff(ctx context.Context, req *Request) (*model.Staff, error) {
	tenantID := req.TenantID
	staffCode := req.StaffCode

	if req.QRPayload != "" {
		var err error
		tenantID, staffCode, err = DecodeQRPayload(req.QRPayload)
		if err != nil {
			return nil, err
		}
	}
	if staffCode == "" {
		return nil, apperr.Validation("staff identifier is required")
	}

	var staff model.Staff
	if tenantID != "" {
		scope, err := tenantdb.New(s.db.WithContext(ctx), tenantID)
		if err != nil {
			return nil, err
		}
		if err := scope.FindOne(&staff, tenantdb.Filter{"staff_code": staffCode}); err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return nil, apperr.NotFound("staff member")
			}
			return nil, err
		}
	} else {
		result := s.db.WithContext(ctx).
			Where("staff_code = ?", staffCode).
			Order("created_at").
			First(&staff)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("staff member")
			}
			return nil, apperr.Internal(result.Error)
		}
		s.log.Warn("cross-tenant staff lookup used",
			zap.String("staff_code", staffCode),
			zap.String("resolved_tenant", staff.TenantID))
	}

	if !staff.Active {
		return nil, apperr.Forbidden("staff member is inactive")
	}
	return &staff, nil
}

// loadOrg fetches the staff member's organization and rejects suspended
// tenants.
func (s *Service) loadOrg(ctx context.Context, tenantID string) (*model.Organization, error) {
	var org model.Organization
	result := s.db.WithContext(ctx).Where("id = ?", tenantID).First(&org)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("organization")
		}
		return nil, apperr.Internal(result.Error)
	}
	if org.Status == model.OrgStatusSuspended {
		return nil, apperr.Forbidden("organization is suspended")
	}
	return &org, nil
}

// uploadPhoto pushes the photo to the image store with a bounded timeout.
// On failure the raw payload is stored inline instead: photo capture is
// best-effort, attendance recording is not contingent on it.
func (s *Service) uploadPhoto(ctx context.Context, org *model.Organization, staff *model.Staff, payload string) string {
	if payload == "" || s.images == nil {
		return payload
	}
	uploadCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	folder := fmt.Sprintf("attendance/%s/%s", org.ID, staff.StaffCode)
	url, err := s.images.Upload(uploadCtx, folder, payload)
	if err != nil {
		s.log.Warn("photo upload failed, storing payload inline",
			zap.String("tenant_id", org.ID),
			zap.String("staff_code", staff.StaffCode),
			zap.Error(err))
		return payload
	}
	return url
}

func (s *Service) checkPasscode(org *model.Organization, req *Request) error {
	if req.Method == model.MethodManual && org.Settings.CheckinPasscode != "" {
		if req.Passcode != org.Settings.CheckinPasscode {
			return apperr.Forbidden("invalid check-in passcode")
		}
	}
	return nil
}

// methodEnabled checks the submission method against the organization's
// enabled_methods setting. An empty setting means no restriction.
func methodEnabled(settings model.OrgSettings, method string) bool {
	list := strings.TrimSpace(settings.EnabledMethods)
	if list == "" {
		return true
	}
	for _, m := range strings.Split(list, ",") {
		if strings.TrimSpace(m) == method {
			return true
		}
	}
	return false
}

// checkSubmission runs the per-organization admission checks shared by
// check-in and check-out: the method must be enabled, the manual passcode
// must match, and photo-bearing submissions need the photo_verification
// feature on the tenant's plan.
func (s *Service) checkSubmission(ctx context.Context, org *model.Organization, req *Request) error {
	if !methodEnabled(org.Settings, req.Method) {
		return apperr.Forbidden("check-in method " + req.Method + " is not enabled for this organization")
	}
	if err := s.checkPasscode(org, req); err != nil {
		return err
	}
	if req.Photo != "" {
		var sub model.Subscription
		result := s.db.WithContext(ctx).Where("tenant_id = ?", org.ID).First(&sub)
		if result.Error != nil {
			return apperr.FeatureLocked(feature.PhotoVerification)
		}
		if !feature.HasAccess(sub.Plan, feature.PhotoVerification, sub.IsTrialActive, s.devMode) {
			return apperr.FeatureLocked(feature.PhotoVerification)
		}
	}
	return nil
}

// CheckIn records the first check-in of the day for the resolved staff
// member. The unique index on (tenant, staff, date) arbitrates concurrent
// duplicate submissions: exactly one insert wins, the rest get "already
// checked in".
func (s *Service) CheckIn(ctx context.Context, req *Request) (*model.AttendanceLog, error) {
	staff, err := s.resolveStaff(ctx, req)
	if err != nil {
		return nil, err
	}
	org, err := s.loadOrg(ctx, staff.TenantID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSubmission(ctx, org, req); err != nil {
		return nil, err
	}

	local := s.now().In(orgLocation(org.Settings))
	late, err := isLateArrival(local, org.Settings.LatenessTime)
	if err != nil {
		return nil, err
	}

	checkIn := local
	record := &model.AttendanceLog{
		StaffID:     staff.ID,
		StaffCode:   staff.StaffCode,
		WorkDate:    local.Format("2006-01-02"),
		CheckInTime: &checkIn,
		IsLate:      late,
		Status:      finalStatus(late, false),
		Method:      req.Method,
	}
	record.CheckInPhoto = s.uploadPhoto(ctx, org, staff, req.Photo)

	scope, err := tenantdb.New(s.db.WithContext(ctx), staff.TenantID)
	if err != nil {
		return nil, err
	}
	created, err := scope.InsertIfAbsent(record, "tenant_id", "staff_id", "work_date")
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, apperr.Conflict("already checked in today")
	}

	s.log.Info("check-in recorded",
		zap.String("tenant_id", staff.TenantID),
		zap.String("staff_code", staff.StaffCode),
		zap.Bool("late", late),
		zap.String("method", req.Method))
	return record, nil
}

// CheckOut updates today's record with a check-out. It fails when no
// check-in exists ("check in first") and when the check-out is already
// populated; the conditional update guards the double-tap race.
func (s *Service) CheckOut(ctx context.Context, req *Request) (*model.AttendanceLog, error) {
	staff, err := s.resolveStaff(ctx, req)
	if err != nil {
		return nil, err
	}
	org, err := s.loadOrg(ctx, staff.TenantID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSubmission(ctx, org, req); err != nil {
		return nil, err
	}

	local := s.now().In(orgLocation(org.Settings))
	workDate := local.Format("2006-01-02")

	scope, err := tenantdb.New(s.db.WithContext(ctx), staff.TenantID)
	if err != nil {
		return nil, err
	}

	var record model.AttendanceLog
	err = scope.FindOne(&record, tenantdb.Filter{"staff_id": staff.ID, "work_date": workDate})
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Conflict("no check-in found for today, check in first")
		}
		return nil, err
	}
	if record.CheckOutTime != nil {
		return nil, apperr.Conflict("already checked out today")
	}

	early, err := isEarlyDeparture(local, org.Settings.EarlyDepartureTime)
	if err != nil {
		return nil, err
	}
	status := finalStatus(record.IsLate, early)

	checkOut := local
	photo := s.uploadPhoto(ctx, org, staff, req.Photo)

	updates := tenantdb.Filter{
		"check_out_time": checkOut,
		"is_early":       early,
		"status":         status,
	}
	if photo != "" {
		updates["check_out_photo"] = photo
	}
	rows, err := scope.UpdateAll(&model.AttendanceLog{},
		tenantdb.Filter{"id": record.ID, "check_out_time": nil}, updates)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// A concurrent submission filled the check-out between our read
		// and this update.
		return nil, apperr.Conflict("already checked out today")
	}

	record.CheckOutTime = &checkOut
	record.IsEarly = early
	record.Status = status
	if photo != "" {
		record.CheckOutPhoto = photo
	}

	s.log.Info("check-out recorded",
		zap.String("tenant_id", staff.TenantID),
		zap.String("staff_code", staff.StaffCode),
		zap.Bool("early", early),
		zap.String("status", status))
	return &record, nil
}

// TodayStatus returns today's record for a staff member, if any.
func (s *Service) TodayStatus(ctx context.Context, req *Request) (*model.AttendanceLog, error) {
	staff, err := s.resolveStaff(ctx, req)
	if err != nil {
		return nil, err
	}
	org, err := s.loadOrg(ctx, staff.TenantID)
	if err != nil {
		return nil, err
	}
	local := s.now().In(orgLocation(org.Settings))

	scope, err := tenantdb.New(s.db.WithContext(ctx), staff.TenantID)
	if err != nil {
		return nil, err
	}
	var record model.AttendanceLog
	if err := scope.FindOne(&record, tenantdb.Filter{
		"staff_id":  staff.ID,
		"work_date": local.Format("2006-01-02"),
	}); err != nil {
		return nil, err
	}
	return &record, nil
}
