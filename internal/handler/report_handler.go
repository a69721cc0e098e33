package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/feature"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/mailer"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/report"
	"github.com/Conqueror102/time-wise-v2-sub001/pkg/logger"
)

// workdaySpan counts the days in [from, to] inclusive. Weekends are not
// excluded; the rate is indicative, not payroll-grade.
func workdaySpan(from, to string) int {
	start, err1 := time.Parse("2006-01-02", from)
	end, err2 := time.Parse("2006-01-02", to)
	if err1 != nil || err2 != nil || end.Before(start) {
		return 1
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// ReportSummary returns headline attendance numbers for the date range.
// Available on every plan.
func ReportSummary(c echo.Context) error {
	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}
	from, to := dateRange(c)
	summary, err := report.BuildSummary(scope, from, to, workdaySpan(from, to))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

// ReportTrend returns per-day aggregates. Gated behind advanced analytics.
func ReportTrend(c echo.Context) error {
	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}
	if err := gateFeature(c, scope.TenantID(), feature.AdvancedAnalytics); err != nil {
		return err
	}
	from, to := dateRange(c)
	rows, err := report.DailyTrend(scope, from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"from": from, "to": to, "trend": rows})
}

// ReportDepartments returns per-department aggregates. Gated behind
// advanced analytics.
func ReportDepartments(c echo.Context) error {
	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}
	if err := gateFeature(c, scope.TenantID(), feature.AdvancedAnalytics); err != nil {
		return err
	}
	from, to := dateRange(c)
	rows, err := report.DepartmentRollup(scope, from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"from": from, "to": to, "departments": rows})
}

// ExportAttendance streams the date range's attendance as an XLSX download.
// Gated behind data export.
func ExportAttendance(c echo.Context) error {
	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}
	if err := gateFeature(c, scope.TenantID(), feature.DataExport); err != nil {
		return err
	}

	from, to := dateRange(c)
	q, err := scope.Query(&model.AttendanceLog{}, nil)
	if err != nil {
		return err
	}
	var rows []model.AttendanceLog
	if err := q.Where("work_date BETWEEN ? AND ?", from, to).
		Order("work_date, staff_code").
		Find(&rows).Error; err != nil {
		return apperr.Internal(err)
	}

	logger.FromContext(c).Info("attendance export",
		zap.String("tenant_id", scope.TenantID()),
		zap.String("from", from), zap.String("to", to),
		zap.Int("rows", len(rows)))

	filename := fmt.Sprintf("attendance_%s_%s.xlsx", from, to)
	c.Response().Header().Set(echo.HeaderContentType,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, filename))
	c.Response().WriteHeader(http.StatusOK)
	return report.WriteAttendanceExport(c.Response(), rows)
}

// EmailReportSummary sends the summary to the requesting admin's email.
// Gated behind email reports; delivery is asynchronous.
func EmailReportSummary(c echo.Context) error {
	scope, auth, err := tenantScope(c)
	if err != nil {
		return err
	}
	if err := gateFeature(c, scope.TenantID(), feature.EmailReports); err != nil {
		return err
	}

	from, to := dateRange(c)
	summary, err := report.BuildSummary(scope, from, to, workdaySpan(from, to))
	if err != nil {
		return err
	}

	var org model.Organization
	if err := orgByID(c, scope.TenantID(), &org); err != nil {
		return err
	}

	body := fmt.Sprintf(
		"Attendance summary for %s (%s to %s)\r\n\r\n"+
			"Total records: %d\r\nLate: %d\r\nEarly departures: %d\r\nPresent: %d\r\n"+
			"Active staff: %d\r\nAttendance rate: %.1f%%\r\nLate rate: %.1f%%\r\n",
		org.Name, summary.From, summary.To,
		summary.TotalRecords, summary.LateCount, summary.EarlyCount, summary.PresentCount,
		summary.ActiveStaff, summary.AttendanceRate, summary.LateRate)

	mailer.SendAsync(deps.Mailer, logger.FromContext(c), auth.Email,
		fmt.Sprintf("Attendance summary %s to %s", from, to), body)

	return c.JSON(http.StatusAccepted, echo.Map{"message": "report queued for delivery"})
}
