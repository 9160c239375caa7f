package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
)

type RiskReport struct {
	Student    *domain.Student
	Assessment domain.RiskAssessment
}

// RiskService gathers a student's history and runs domain.AssessRisk on it.
type RiskService struct {
	store  repository.Store
	policy domain.RiskPolicy
}

func NewRiskService(store repository.Store, policy domain.RiskPolicy) (*RiskService, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if policy.WindowDays <= 0 {
		policy = domain.DefaultRiskPolicy()
	}
	return &RiskService{store: store, policy: policy}, nil
}

func (s *RiskService) Assess(ctx context.Context, studentID string, today time.Time) (*RiskReport, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, fmt.Errorf("%w: student id is required", domain.ErrValidation)
	}
	student, err := s.store.Students().GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student: %w", err)
	}

	assessment, err := s.assessStudent(ctx, s.store, student, today)
	if err != nil {
		return nil, err
	}
	return &RiskReport{Student: student, Assessment: assessment}, nil
}

// assessStudent reads through store so callers inside a transaction see their
// own uncommitted writes.
func (s *RiskService) assessStudent(ctx context.Context, store repository.Store, student *domain.Student, today time.Time) (domain.RiskAssessment, error) {
	facts, err := s.facts(ctx, store, student, today)
	if err != nil {
		return domain.RiskAssessment{}, err
	}
	return domain.AssessRisk(facts, s.policy), nil
}

func (s *RiskService) facts(ctx context.Context, store repository.Store, student *domain.Student, today time.Time) (domain.RiskFacts, error) {
	day := domain.Day(today)
	monthStart := domain.MonthStart(day)
	windowStart := day.AddDate(0, 0, -s.policy.WindowDays)

	paid, err := store.Payments().Exists(ctx, student.ID, monthStart)
	if err != nil {
		return domain.RiskFacts{}, fmt.Errorf("failed to check payment: %w", err)
	}

	activeDays, err := store.Attendance().CountActiveDays(ctx, windowStart, day)
	if err != nil {
		return domain.RiskFacts{}, fmt.Errorf("failed to count school days: %w", err)
	}

	from := windowStart
	if monthStart.Before(from) {
		from = monthStart
	}
	records, err := store.Attendance().ListByStudent(ctx, student.ID, from, day)
	if err != nil {
		return domain.RiskFacts{}, fmt.Errorf("failed to load attendance: %w", err)
	}

	facts := domain.RiskFacts{
		FreeTries:        student.FreeTries,
		PaidThisMonth:    paid,
		EnrolledAt:       student.EnrolledAt,
		WindowStart:      windowStart,
		ActiveSchoolDays: activeDays,
	}
	for _, r := range records {
		date := domain.Day(r.Date)
		if r.Present() && !date.Before(windowStart) {
			facts.PresentDays++
		}
		if r.Absent && !date.Before(monthStart) {
			facts.AbsencesThisMonth++
		}
	}
	return facts, nil
}
