package domain

import (
	"fmt"
	"strings"
	"time"
)

const lateCutoffLayout = "15:04"

// Settings are the externally owned billing and attendance parameters. The
// core reads them on every invocation and never writes them.
type Settings struct {
	DefaultFreeTries              int
	MonthPrice                    int
	LateCutoff                    string
	LowAttendanceThresholdPercent float64
	LowAttendanceWindowDays       int
}

func (s *Settings) Validate() error {
	if s == nil {
		return ErrSettingsMissing
	}
	if s.DefaultFreeTries < 0 {
		return fmt.Errorf("%w: default free tries must not be negative", ErrValidation)
	}
	if s.MonthPrice < 0 {
		return fmt.Errorf("%w: month price must not be negative", ErrValidation)
	}
	if s.LowAttendanceThresholdPercent < 0 || s.LowAttendanceThresholdPercent > 100 {
		return fmt.Errorf("%w: low attendance threshold must be within 0-100", ErrValidation)
	}
	if s.LowAttendanceWindowDays < 0 {
		return fmt.Errorf("%w: low attendance window must not be negative", ErrValidation)
	}
	if _, _, err := s.lateCutoff(); err != nil {
		return err
	}
	return nil
}

// IsLate reports whether an arrival at the given wall-clock time is after the
// configured cutoff. Without a cutoff nobody is late.
func (s *Settings) IsLate(arrival time.Time) bool {
	if s == nil {
		return false
	}
	hour, minute, err := s.lateCutoff()
	if err != nil || hour < 0 {
		return false
	}
	if arrival.Hour() != hour {
		return arrival.Hour() > hour
	}
	return arrival.Minute() > minute
}

func (s *Settings) lateCutoff() (int, int, error) {
	value := strings.TrimSpace(s.LateCutoff)
	if value == "" {
		return -1, -1, nil
	}
	parsed, err := time.Parse(lateCutoffLayout, value)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: late cutoff %q must be HH:MM", ErrValidation, s.LateCutoff)
	}
	return parsed.Hour(), parsed.Minute(), nil
}
