package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/failures"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
	"go.uber.org/zap"
)

// FailureLog is the persisted per-contact failure state.
type FailureLog interface {
	Record(entry failures.Entry) (domain.FailureRecord, error)
	Records() ([]domain.FailureRecord, error)
	Get(contact string) (domain.FailureRecord, bool, error)
	Summary() (failures.Summary, error)
	ExportCSV(w io.Writer) error
	Remove(contact string) (bool, error)
	Clear() error
}

var _ FailureLog = (*failures.Store)(nil)

type FixContactResult struct {
	Student       *domain.Student
	PreviousEntry *domain.FailureRecord
}

// FailureService is the operator view of delivery failures.
type FailureService struct {
	students repository.StudentRepository
	log      FailureLog
	logger   *zap.Logger
}

func NewFailureService(students repository.StudentRepository, log FailureLog, logger *zap.Logger) (*FailureService, error) {
	if students == nil || log == nil {
		return nil, fmt.Errorf("student repository and failure log are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailureService{students: students, log: log, logger: logger}, nil
}

func (s *FailureService) Records() ([]domain.FailureRecord, error) { return s.log.Records() }

func (s *FailureService) Summary() (failures.Summary, error) { return s.log.Summary() }

func (s *FailureService) Export(w io.Writer) error { return s.log.ExportCSV(w) }

func (s *FailureService) Remove(contact string) error {
	if strings.TrimSpace(contact) == "" {
		return fmt.Errorf("%w: contact is required", domain.ErrValidation)
	}
	removed, err := s.log.Remove(contact)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: no failure record for %s", domain.ErrNotFound, contact)
	}
	return nil
}

func (s *FailureService) Clear() error { return s.log.Clear() }

// FixContact replaces a student's guardian contact and drops the failure
// record of the old one.
func (s *FailureService) FixContact(ctx context.Context, studentID, contact string) (*FixContactResult, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, fmt.Errorf("%w: contact is required", domain.ErrValidation)
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student: %w", err)
	}
	previous := student.Contact

	if err := s.students.UpdateContact(ctx, student.ID, contact); err != nil {
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}
	student.Contact = contact

	result := &FixContactResult{Student: student}
	record, ok, err := s.log.Get(previous)
	if err != nil {
		return nil, fmt.Errorf("failed to read failure record: %w", err)
	}
	if ok {
		if _, err := s.log.Remove(previous); err != nil {
			return nil, fmt.Errorf("failed to remove failure record: %w", err)
		}
		result.PreviousEntry = &record
	}

	s.logger.Info("guardian contact updated",
		zap.String("studentId", student.ID),
		zap.Bool("failureRecordRemoved", result.PreviousEntry != nil),
	)
	return result, nil
}
