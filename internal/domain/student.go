package domain

import (
	"fmt"
	"strings"
	"time"
)

// Student is an enrolled student and the guardian contact notified about them.
type Student struct {
	ID             string
	Name           string
	Barcode        string
	Contact        string
	FreeTries      int
	LastResetMonth *time.Time
	EnrolledAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *Student) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: student name is required", ErrValidation)
	}
	if strings.TrimSpace(s.Contact) == "" {
		return fmt.Errorf("%w: guardian contact is required", ErrValidation)
	}
	if s.FreeTries < 0 {
		return fmt.Errorf("%w: free tries must not be negative", ErrValidation)
	}
	return nil
}

// AttendanceRecord is the single per-day mark for a student.
type AttendanceRecord struct {
	ID          string
	StudentID   string
	Date        time.Time
	Absent      bool
	ArrivalTime *time.Time
	CreatedAt   time.Time
}

func (a AttendanceRecord) Present() bool { return !a.Absent }

// PaymentRecord marks a billing month as paid for a student.
type PaymentRecord struct {
	ID        string
	StudentID string
	Month     time.Time
	PaidAt    time.Time
}
