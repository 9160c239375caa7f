package domain

import (
	"fmt"
	"time"
)

// RiskLevel is the coarse dropout risk of a student.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

func (l RiskLevel) String() string { return string(l) }

// RiskPolicy holds the thresholds used by AssessRisk.
type RiskPolicy struct {
	WindowDays           int
	MinAttendancePercent float64
	HighAbsenceCount     int
	NoticeAbsenceCount   int
}

func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		WindowDays:           14,
		MinAttendancePercent: 50,
		HighAbsenceCount:     5,
		NoticeAbsenceCount:   2,
	}
}

// RiskFacts is the historical data a risk assessment is computed from.
type RiskFacts struct {
	FreeTries         int
	PaidThisMonth     bool
	EnrolledAt        time.Time
	WindowStart       time.Time
	ActiveSchoolDays  int
	PresentDays       int
	AbsencesThisMonth int
}

type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Reasons []string  `json:"reasons"`
}

const (
	ReasonTrialExhaustedUnpaid = "trial exhausted, unpaid this month"
	ReasonGoodStanding         = "good standing under current rules"
)

// AssessRisk classifies a student. A High result short-circuits every later
// rule; otherwise the level is only ever raised from Low to Medium.
func AssessRisk(facts RiskFacts, policy RiskPolicy) RiskAssessment {
	if facts.FreeTries == 0 && !facts.PaidThisMonth {
		return RiskAssessment{Level: RiskHigh, Reasons: []string{ReasonTrialExhaustedUnpaid}}
	}

	level := RiskLow
	reasons := make([]string, 0, 2)

	if facts.ActiveSchoolDays > 0 {
		rate := float64(facts.PresentDays) / float64(facts.ActiveSchoolDays) * 100
		if rate < policy.MinAttendancePercent {
			level = RiskMedium
			reasons = append(reasons, fmt.Sprintf("attendance in last %d days is %.1f%%", policy.WindowDays, rate))
		}
	} else if !facts.EnrolledAt.IsZero() && facts.EnrolledAt.Before(facts.WindowStart) {
		level = RiskMedium
		reasons = append(reasons, fmt.Sprintf("no school activity recorded in last %d days and student is not new", policy.WindowDays))
	}

	switch {
	case facts.AbsencesThisMonth >= policy.HighAbsenceCount:
		if level == RiskLow {
			level = RiskMedium
		}
		reasons = append(reasons, fmt.Sprintf("%d absences this month", facts.AbsencesThisMonth))
	case facts.AbsencesThisMonth >= policy.NoticeAbsenceCount && level == RiskLow:
		reasons = append(reasons, fmt.Sprintf("%d absences this month", facts.AbsencesThisMonth))
	}

	if len(reasons) == 0 {
		reasons = append(reasons, ReasonGoodStanding)
	}

	return RiskAssessment{Level: level, Reasons: reasons}
}
