package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
)

// StudentService serves read-only student views for operators.
type StudentService struct {
	students repository.StudentRepository
	outcomes repository.OutcomeRepository
}

func NewStudentService(students repository.StudentRepository, outcomes repository.OutcomeRepository) (*StudentService, error) {
	if students == nil || outcomes == nil {
		return nil, fmt.Errorf("student and outcome repositories are required")
	}
	return &StudentService{students: students, outcomes: outcomes}, nil
}

// Deliveries lists the student's most recent delivery outcomes.
func (s *StudentService) Deliveries(ctx context.Context, studentID string, limit int) ([]domain.DeliveryOutcome, error) {
	if _, err := s.students.GetByID(ctx, studentID); err != nil {
		return nil, fmt.Errorf("failed to load student: %w", err)
	}
	outcomes, err := s.outcomes.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return outcomes, nil
}
