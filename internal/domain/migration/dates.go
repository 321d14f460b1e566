package migration

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	isoDate  = "2006-01-02"
	isoMonth = "2006-01"

	// Serials are accepted from 1950-01-01 up to the largest Excel can display
	// (9999-12-31). Smaller integers are bare years or typos, not dates.
	minExcelSerial = 18264
	maxExcelSerial = 2958465
)

var (
	errBadDate  = errors.New("unrecognized date")
	errBadMonth = errors.New("unrecognized month")

	// excelEpoch absorbs the 1900 leap year bug for every serial after February 1900.
	excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

	dateLayouts  = []string{"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006", isoDate}
	monthLayouts = []string{"01/2006", "1/2006", isoMonth}
)

// SentinelDestructionDate marks documents that are never destroyed.
var SentinelDestructionDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// ParseDate accepts day-first dates, ISO dates and Excel serial numbers.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errBadDate
	}
	if serial, ok := excelSerial(raw); ok {
		return serial, nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errBadDate
}

// ParseMonth accepts MM/YYYY, M/YYYY, YYYY-MM and Excel serials, returning the first
// day of the month.
func ParseMonth(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errBadMonth
	}
	if serial, ok := excelSerial(raw); ok {
		return time.Date(serial.Year(), serial.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	for _, layout := range monthLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errBadMonth
}

func excelSerial(raw string) (time.Time, bool) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < minExcelSerial || value > maxExcelSerial {
		return time.Time{}, false
	}
	days := int(math.Floor(value))
	return excelEpoch.AddDate(0, 0, days), true
}

// FormatDate renders t as ISO, or "" when t is nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(isoDate)
}
