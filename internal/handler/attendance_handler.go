package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/attendance"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/tenantdb"
	"github.com/Conqueror102/time-wise-v2-sub001/prometheus"
)

func bindAttendanceRequest(c echo.Context) (*attendance.Request, error) {
	var req attendance.Request
	if err := c.Bind(&req); err != nil {
		return nil, apperr.Validation("invalid request body")
	}
	if req.Method == "" {
		req.Method = model.MethodManual
	}
	return &req, nil
}

// CheckIn is the public kiosk check-in endpoint.
func CheckIn(c echo.Context) error {
	req, err := bindAttendanceRequest(c)
	if err != nil {
		return err
	}

	record, err := deps.Attendance.CheckIn(c.Request().Context(), req)
	if err != nil {
		result := "rejected"
		if apperr.IsKind(err, apperr.KindConflict) {
			result = "duplicate"
		}
		prometheus.CheckInCounter.WithLabelValues(req.Method, result).Inc()
		return err
	}
	prometheus.CheckInCounter.WithLabelValues(req.Method, "ok").Inc()

	return c.JSON(http.StatusCreated, echo.Map{
		"message":    "checked in",
		"attendance": record,
	})
}

// CheckOut is the public kiosk check-out endpoint.
func CheckOut(c echo.Context) error {
	req, err := bindAttendanceRequest(c)
	if err != nil {
		return err
	}

	record, err := deps.Attendance.CheckOut(c.Request().Context(), req)
	if err != nil {
		result := "rejected"
		if apperr.IsKind(err, apperr.KindConflict) {
			result = "duplicate"
		}
		prometheus.CheckOutCounter.WithLabelValues(result).Inc()
		return err
	}
	prometheus.CheckOutCounter.WithLabelValues("ok").Inc()

	return c.JSON(http.StatusOK, echo.Map{
		"message":    "checked out",
		"attendance": record,
	})
}

// TodayStatus returns today's attendance record for a staff member.
func TodayStatus(c echo.Context) error {
	req, err := bindAttendanceRequest(c)
	if err != nil {
		return err
	}
	record, err := deps.Attendance.TodayStatus(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, record)
}

// ListAttendance returns the tenant's attendance records for a date range.
func ListAttendance(c echo.Context) error {
	scope, _, err := tenantScope(c)
	if err != nil {
		return err
	}

	from, to := dateRange(c)

	q, err := scope.Query(&model.AttendanceLog{}, listAttendanceFilter(c))
	if err != nil {
		return err
	}

	var records []model.AttendanceLog
	if err := q.Where("work_date BETWEEN ? AND ?", from, to).
		Order("work_date DESC, staff_code").
		Find(&records).Error; err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"attendance": records, "count": len(records)})
}

func listAttendanceFilter(c echo.Context) tenantdb.Filter {
	filter := tenantdb.Filter{}
	if staffID := c.QueryParam("staff_id"); staffID != "" {
		filter["staff_id"] = staffID
	}
	if status := c.QueryParam("status"); status != "" {
		filter["status"] = status
	}
	return filter
}

// dateRange parses from/to query params, defaulting to the last 30 days.
func dateRange(c echo.Context) (string, string) {
	now := time.Now()
	from := c.QueryParam("from")
	to := c.QueryParam("to")
	if to == "" {
		to = now.Format("2006-01-02")
	}
	if from == "" {
		from = now.AddDate(0, 0, -30).Format("2006-01-02")
	}
	return from, to
}
