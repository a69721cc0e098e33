// Package report computes read-only aggregates over attendance data. Every
// query goes through the tenant-scoped accessor; the feature gate decides
// upstream whether the caller may see these at all.
package report

import (
	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/tenantdb"
)

// Summary is the headline attendance view for a date range.
type Summary struct {
	From           string  `json:"from"`
	To             string  `json:"to"`
	TotalRecords   int64   `json:"total_records"`
	LateCount      int64   `json:"late_count"`
	EarlyCount     int64   `json:"early_count"`
	PresentCount   int64   `json:"present_count"`
	ActiveStaff    int64   `json:"active_staff"`
	AttendanceRate float64 `json:"attendance_rate"`
	LateRate       float64 `json:"late_rate"`
}

// DailyTrendRow is one day's aggregate.
type DailyTrendRow struct {
	WorkDate string `json:"work_date"`
	Total    int64  `json:"total"`
	Late     int64  `json:"late"`
	Early    int64  `json:"early"`
}

// DepartmentRow is one department's aggregate.
type DepartmentRow struct {
	Department string `json:"department"`
	Total      int64  `json:"total"`
	Late       int64  `json:"late"`
}

// rate returns n/d as a percentage, 0 when the denominator is empty.
func rate(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}

// BuildSummary aggregates attendance for [from, to] within the tenant.
// workdaySpan is the number of working days in the range, used for the
// attendance-rate denominator (activeStaff * workdaySpan).
func BuildSummary(scope *tenantdb.Scope, from, to string, workdaySpan int) (*Summary, error) {
	q, err := scope.Query(&model.AttendanceLog{}, nil)
	if err != nil {
		return nil, err
	}

	// Present is counted in SQL, not derived as total-late-early: a record
	// can carry both flags (late check-in, early check-out) and subtraction
	// would count it twice.
	type counts struct {
		Total   int64
		Late    int64
		Early   int64
		Present int64
	}
	var c counts
	err = q.Where("work_date BETWEEN ? AND ?", from, to).
		Select("count(*) as total, " +
			"coalesce(sum(case when is_late then 1 else 0 end), 0) as late, " +
			"coalesce(sum(case when is_early then 1 else 0 end), 0) as early, " +
			"coalesce(sum(case when is_late or is_early then 0 else 1 end), 0) as present").
		Scan(&c).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}

	activeStaff, err := scope.Count(&model.Staff{}, tenantdb.Filter{"active": true})
	if err != nil {
		return nil, err
	}

	expected := activeStaff * int64(workdaySpan)
	return &Summary{
		From:           from,
		To:             to,
		TotalRecords:   c.Total,
		LateCount:      c.Late,
		EarlyCount:     c.Early,
		PresentCount:   c.Present,
		ActiveStaff:    activeStaff,
		AttendanceRate: rate(c.Total, expected),
		LateRate:       rate(c.Late, c.Total),
	}, nil
}

// DailyTrend returns per-day aggregates for the range, oldest first.
func DailyTrend(scope *tenantdb.Scope, from, to string) ([]DailyTrendRow, error) {
	q, err := scope.Query(&model.AttendanceLog{}, nil)
	if err != nil {
		return nil, err
	}

	var rows []DailyTrendRow
	err = q.Where("work_date BETWEEN ? AND ?", from, to).
		Select("work_date, count(*) as total, " +
			"coalesce(sum(case when is_late then 1 else 0 end), 0) as late, " +
			"coalesce(sum(case when is_early then 1 else 0 end), 0) as early").
		Group("work_date").
		Order("work_date").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return rows, nil
}

// DepartmentRollup aggregates attendance by staff department.
func DepartmentRollup(scope *tenantdb.Scope, from, to string) ([]DepartmentRow, error) {
	q, err := scope.Query(&model.AttendanceLog{}, nil)
	if err != nil {
		return nil, err
	}

	var rows []DepartmentRow
	err = q.Where("attendance_logs.work_date BETWEEN ? AND ?", from, to).
		Joins("JOIN staffs ON staffs.id = attendance_logs.staff_id").
		Select("staffs.department as department, count(*) as total, " +
			"coalesce(sum(case when attendance_logs.is_late then 1 else 0 end), 0) as late").
		Group("staffs.department").
		Order("staffs.department").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return rows, nil
}
