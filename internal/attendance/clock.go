package attendance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Conqueror102/time-wise-v2-sub001/internal/apperr"
	"github.com/Conqueror102/time-wise-v2-sub001/internal/model"
)

// parseClock parses a "HH:MM" threshold into minutes past midnight.
func parseClock(v string) (int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, apperr.Validation(fmt.Sprintf("invalid time-of-day %q", v))
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, apperr.Validation(fmt.Sprintf("invalid time-of-day %q", v))
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, apperr.Validation(fmt.Sprintf("invalid time-of-day %q", v))
	}
	return h*60 + m, nil
}

// ValidClock reports whether v is a well-formed "HH:MM" time of day.
func ValidClock(v string) bool {
	_, err := parseClock(v)
	return err == nil
}

// LoadLocation resolves an IANA timezone name.
func LoadLocation(name string) (*time.Location, error) {
	return time.LoadLocation(name)
}

// minutesOfDay returns the local clock time as minutes past midnight.
func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// orgLocation resolves the organization's timezone, falling back to UTC on
// a bad or missing zone name.
func orgLocation(settings model.OrgSettings) *time.Location {
	if settings.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// isLateArrival compares a local check-in instant against the lateness
// threshold. Arriving exactly on the threshold is not late.
func isLateArrival(local time.Time, latenessTime string) (bool, error) {
	threshold, err := parseClock(latenessTime)
	if err != nil {
		return false, err
	}
	return minutesOfDay(local) > threshold, nil
}

// isEarlyDeparture compares a local check-out instant against the
// early-departure threshold. Leaving exactly on the threshold is not early.
func isEarlyDeparture(local time.Time, earlyDepartureTime string) (bool, error) {
	threshold, err := parseClock(earlyDepartureTime)
	if err != nil {
		return false, err
	}
	return minutesOfDay(local) < threshold, nil
}

// finalStatus derives the record's status label. Precedence: late beats
// early beats present. A late arrival stays "late" even when the departure
// is also early.
func finalStatus(isLate, isEarly bool) string {
	if isLate {
		return model.AttendanceStatusLate
	}
	if isEarly {
		return model.AttendanceStatusEarly
	}
	return model.AttendanceStatusPresent
}
