// Package timeutil contains the duration and calendar helpers used when
// rendering tracked activities.
package timeutil

import (
	"fmt"
	"time"
)

// FormatTime formats a second count as HH:MM:SS. Negative input is clamped
// to zero and the hour segment is always two digits, "00" when under an hour.
func FormatTime(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Duration returns the elapsed time between startedAt and finishedAt, or
// between startedAt and now when finishedAt is nil.
func Duration(startedAt time.Time, finishedAt *time.Time) time.Duration {
	end := time.Now()
	if finishedAt != nil {
		end = *finishedAt
	}
	return end.Sub(startedAt)
}

// FormatDuration renders Duration as HH:MM:SS, floored to whole seconds.
func FormatDuration(startedAt time.Time, finishedAt *time.Time) string {
	return FormatTime(int64(Duration(startedAt, finishedAt) / time.Second))
}

// FormatTotalDuration renders an accumulated second count. Below 24 hours it
// behaves like FormatTime; from 24 hours on it switches to "<days>d HH:MM".
func FormatTotalDuration(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	if totalSeconds < 86400 {
		return FormatTime(totalSeconds)
	}
	days := totalSeconds / 86400
	rest := totalSeconds % 86400
	return fmt.Sprintf("%dd %02d:%02d", days, rest/3600, (rest%3600)/60)
}

// TodayDateString returns the current date as YYYY-MM-DD.
func TodayDateString() string {
	return time.Now().Format("2006-01-02")
}

// MonthKey returns the YYYY-MM key of t, the granularity the activity
// history is browsed at.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// AddMonths shifts a YYYY-MM key by delta months. An unparseable key is
// returned unchanged.
func AddMonths(month string, delta int) string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return month
	}
	return t.AddDate(0, delta, 0).Format("2006-01")
}
