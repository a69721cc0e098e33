package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
)

const exportSheet = "Attendance"

var exportHeader = []string{
	"Date", "Staff Code", "Check In", "Check Out", "Status", "Late", "Early", "Method",
}

// BuildAttendanceWorkbook renders attendance rows into an XLSX workbook.
// The caller owns closing the file.
func BuildAttendanceWorkbook(rows []model.AttendanceLog) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	f.SetActiveSheet(sheet)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, apperr.Internal(err)
	}

	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(exportSheet, cell, title); err != nil {
			return nil, apperr.Internal(err)
		}
	}

	for i, row := range rows {
		checkIn := ""
		if row.CheckInTime != nil {
			checkIn = row.CheckInTime.Format("15:04:05")
		}
		checkOut := ""
		if row.CheckOutTime != nil {
			checkOut = row.CheckOutTime.Format("15:04:05")
		}
		values := []interface{}{
			row.WorkDate, row.StaffCode, checkIn, checkOut,
			row.Status, row.IsLate, row.IsEarly, row.Method,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, apperr.Internal(err)
			}
		}
	}

	return f, nil
}

// WriteAttendanceExport streams the workbook to w.
func WriteAttendanceExport(w io.Writer, rows []model.AttendanceLog) error {
	f, err := BuildAttendanceWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return apperr.Internal(fmt.Errorf("write export: %w", err))
	}
	return nil
}
