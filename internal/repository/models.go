package repository

import (
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
)

// StudentModel is the persistence model for the students table.
type StudentModel struct {
	ID             string     `gorm:"type:uuid;primaryKey"`
	Name           string     `gorm:"type:varchar(255);not null"`
	Barcode        string     `gorm:"type:varchar(64);not null"`
	Contact        string     `gorm:"type:varchar(32);not null"`
	FreeTries      int        `gorm:"not null;default:0;check:chk_students_free_tries,free_tries >= 0"`
	LastResetMonth *time.Time `gorm:"type:date"`
	EnrolledAt     time.Time  `gorm:"type:date;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (StudentModel) TableName() string {
	return "students"
}

// AttendanceModel is the persistence model for attendance_records.
type AttendanceModel struct {
	ID          string     `gorm:"type:uuid;primaryKey"`
	StudentID   string     `gorm:"type:uuid;not null"`
	Date        time.Time  `gorm:"type:date;not null"`
	Absent      bool       `gorm:"not null;default:false"`
	ArrivalTime *time.Time `gorm:"type:timestamptz"`
	CreatedAt   time.Time
}

func (AttendanceModel) TableName() string {
	return "attendance_records"
}

// PaymentModel is the persistence model for payments.
type PaymentModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	StudentID string    `gorm:"type:uuid;not null"`
	Month     time.Time `gorm:"type:date;not null"`
	PaidAt    time.Time `gorm:"type:timestamptz;not null"`
}

func (PaymentModel) TableName() string {
	return "payments"
}

// SettingsModel is the single-row settings table owned by the admin surface.
type SettingsModel struct {
	ID                            int     `gorm:"primaryKey"`
	DefaultFreeTries              int     `gorm:"not null;default:3"`
	MonthPrice                    int     `gorm:"not null;default:0"`
	LateCutoff                    string  `gorm:"type:varchar(5);not null;default:''"`
	LowAttendanceThresholdPercent float64 `gorm:"not null;default:50"`
	LowAttendanceWindowDays       int     `gorm:"not null;default:10"`
	UpdatedAt                     time.Time
}

func (SettingsModel) TableName() string {
	return "settings"
}

// DeliveryOutcomeModel is the audit row written for every finished job.
type DeliveryOutcomeModel struct {
	ID          string          `gorm:"type:uuid;primaryKey"`
	JobID       string          `gorm:"type:uuid;not null"`
	StudentID   *string         `gorm:"type:uuid"`
	Contact     string          `gorm:"type:varchar(32);not null"`
	Event       domain.EventTag `gorm:"type:varchar(32);not null"`
	Status      domain.JobState `gorm:"type:varchar(20);not null"`
	Reason      *string         `gorm:"type:varchar(32)"`
	Detail      *string         `gorm:"type:text"`
	Attempts    int             `gorm:"not null"`
	CompletedAt time.Time       `gorm:"type:timestamptz;not null"`
}

func (DeliveryOutcomeModel) TableName() string {
	return "delivery_outcomes"
}

// BroadcastModel is the persistence model for broadcasts.
type BroadcastModel struct {
	ID         string     `gorm:"type:uuid;primaryKey"`
	Title      string     `gorm:"type:varchar(255);not null"`
	Content    string     `gorm:"type:text;not null"`
	Recipients int        `gorm:"not null;default:0"`
	SentAt     *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time
}

func (BroadcastModel) TableName() string {
	return "broadcasts"
}

func studentModelFromDomain(s *domain.Student) *StudentModel {
	if s == nil {
		return nil
	}

	return &StudentModel{
		ID:             s.ID,
		Name:           s.Name,
		Barcode:        s.Barcode,
		Contact:        s.Contact,
		FreeTries:      s.FreeTries,
		LastResetMonth: s.LastResetMonth,
		EnrolledAt:     s.EnrolledAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func studentModelToDomain(m *StudentModel) *domain.Student {
	if m == nil {
		return nil
	}

	return &domain.Student{
		ID:             m.ID,
		Name:           m.Name,
		Barcode:        m.Barcode,
		Contact:        m.Contact,
		FreeTries:      m.FreeTries,
		LastResetMonth: m.LastResetMonth,
		EnrolledAt:     m.EnrolledAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func attendanceModelFromDomain(a *domain.AttendanceRecord) *AttendanceModel {
	if a == nil {
		return nil
	}

	return &AttendanceModel{
		ID:          a.ID,
		StudentID:   a.StudentID,
		Date:        domain.Day(a.Date),
		Absent:      a.Absent,
		ArrivalTime: a.ArrivalTime,
		CreatedAt:   a.CreatedAt,
	}
}

func attendanceModelToDomain(m *AttendanceModel) *domain.AttendanceRecord {
	if m == nil {
		return nil
	}

	return &domain.AttendanceRecord{
		ID:          m.ID,
		StudentID:   m.StudentID,
		Date:        domain.Day(m.Date),
		Absent:      m.Absent,
		ArrivalTime: m.ArrivalTime,
		CreatedAt:   m.CreatedAt,
	}
}

func paymentModelFromDomain(p *domain.PaymentRecord) *PaymentModel {
	if p == nil {
		return nil
	}

	return &PaymentModel{
		ID:        p.ID,
		StudentID: p.StudentID,
		Month:     domain.MonthStart(p.Month),
		PaidAt:    p.PaidAt,
	}
}

func paymentModelToDomain(m *PaymentModel) *domain.PaymentRecord {
	if m == nil {
		return nil
	}

	return &domain.PaymentRecord{
		ID:        m.ID,
		StudentID: m.StudentID,
		Month:     domain.MonthStart(m.Month),
		PaidAt:    m.PaidAt,
	}
}

func settingsModelToDomain(m *SettingsModel) *domain.Settings {
	if m == nil {
		return nil
	}

	return &domain.Settings{
		DefaultFreeTries:              m.DefaultFreeTries,
		MonthPrice:                    m.MonthPrice,
		LateCutoff:                    m.LateCutoff,
		LowAttendanceThresholdPercent: m.LowAttendanceThresholdPercent,
		LowAttendanceWindowDays:       m.LowAttendanceWindowDays,
	}
}

func outcomeModelFromDomain(o *domain.DeliveryOutcome) *DeliveryOutcomeModel {
	if o == nil {
		return nil
	}

	return &DeliveryOutcomeModel{
		ID:          o.ID,
		JobID:       o.JobID,
		StudentID:   optionalString(o.StudentID),
		Contact:     o.Contact,
		Event:       o.Event,
		Status:      o.Status,
		Reason:      optionalString(string(o.Reason)),
		Detail:      optionalString(o.Detail),
		Attempts:    o.Attempts,
		CompletedAt: o.CompletedAt,
	}
}

func outcomeModelToDomain(m *DeliveryOutcomeModel) *domain.DeliveryOutcome {
	if m == nil {
		return nil
	}

	return &domain.DeliveryOutcome{
		ID:          m.ID,
		JobID:       m.JobID,
		StudentID:   derefString(m.StudentID),
		Contact:     m.Contact,
		Event:       m.Event,
		Status:      m.Status,
		Reason:      domain.FailureReason(derefString(m.Reason)),
		Detail:      derefString(m.Detail),
		Attempts:    m.Attempts,
		CompletedAt: m.CompletedAt,
	}
}

func broadcastModelFromDomain(b *domain.Broadcast) *BroadcastModel {
	if b == nil {
		return nil
	}

	return &BroadcastModel{
		ID:         b.ID,
		Title:      b.Title,
		Content:    b.Content,
		Recipients: b.Recipients,
		SentAt:     b.SentAt,
		CreatedAt:  b.CreatedAt,
	}
}

func broadcastModelToDomain(m *BroadcastModel) *domain.Broadcast {
	if m == nil {
		return nil
	}

	return &domain.Broadcast{
		ID:         m.ID,
		Title:      m.Title,
		Content:    m.Content,
		Recipients: m.Recipients,
		SentAt:     m.SentAt,
		CreatedAt:  m.CreatedAt,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
