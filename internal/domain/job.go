package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventTag names the event that produced a notification job.
type EventTag string

const (
	EventAttendance        EventTag = "attendance"
	EventLateAttendance    EventTag = "attendance_late"
	EventTrialUsed         EventTag = "trial_used"
	EventPaymentReceipt    EventTag = "payment_receipt"
	EventPaymentAttendance EventTag = "payment_attendance"
	EventAbsenceFirst      EventTag = "absence_first"
	EventAbsenceSecond     EventTag = "absence_second"
	EventAbsenceUrgent     EventTag = "absence_urgent"
	EventAbsenceRecurred   EventTag = "absence_recurred"
	EventAbsenceGeneric    EventTag = "absence_generic"
	EventLowAttendance     EventTag = "low_attendance"
	EventHighRisk          EventTag = "high_risk"
	EventBroadcast         EventTag = "broadcast"
)

func (e EventTag) String() string { return string(e) }

func (e EventTag) IsValid() bool {
	switch e {
	case EventAttendance, EventLateAttendance, EventTrialUsed, EventPaymentReceipt, EventPaymentAttendance,
		EventAbsenceFirst, EventAbsenceSecond, EventAbsenceUrgent, EventAbsenceRecurred, EventAbsenceGeneric,
		EventLowAttendance, EventHighRisk, EventBroadcast:
		return true
	}
	return false
}

func ParseEventTag(s string) (EventTag, error) {
	tag := EventTag(strings.ToLower(strings.TrimSpace(s)))
	if !tag.IsValid() {
		return "", fmt.Errorf("%w: invalid event tag %q", ErrValidation, s)
	}
	return tag, nil
}

// NotificationJob is one queued unit of outbound work. It is never mutated
// after NewNotificationJob returns.
type NotificationJob struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"studentId,omitempty"`
	Contact    string    `json:"contact"`
	Body       string    `json:"body"`
	Event      EventTag  `json:"event"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

func NewNotificationJob(studentID, contact, body string, event EventTag, now time.Time) NotificationJob {
	return NotificationJob{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		Contact:    strings.TrimSpace(contact),
		Body:       body,
		Event:      event,
		EnqueuedAt: now.UTC(),
	}
}

func (j NotificationJob) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("%w: job id is required", ErrValidation)
	}
	if strings.TrimSpace(j.Contact) == "" {
		return fmt.Errorf("%w: contact is required", ErrValidation)
	}
	if strings.TrimSpace(j.Body) == "" {
		return fmt.Errorf("%w: message body is required", ErrValidation)
	}
	if !j.Event.IsValid() {
		return fmt.Errorf("%w: invalid event tag %q", ErrValidation, j.Event)
	}
	return nil
}

// JobState is the per-job delivery state machine:
// Pending -> Dispatching -> Delivered | Failed.
type JobState string

const (
	JobPending     JobState = "PENDING"
	JobDispatching JobState = "DISPATCHING"
	JobDelivered   JobState = "DELIVERED"
	JobFailed      JobState = "FAILED"
)

func (s JobState) String() string { return string(s) }

func (s JobState) IsTerminal() bool {
	return s == JobDelivered || s == JobFailed
}

// FailureReason is the delivery failure taxonomy.
type FailureReason string

const (
	ReasonInvalidFormat    FailureReason = "invalid_format"
	ReasonChannelRejected  FailureReason = "channel_rejected"
	ReasonNoSendAffordance FailureReason = "no_send_affordance"
	ReasonSessionFault     FailureReason = "session_fault"
	ReasonRetryExhausted   FailureReason = "retry_exhausted"
)

func (r FailureReason) String() string { return string(r) }

func (r FailureReason) IsValid() bool {
	switch r {
	case ReasonInvalidFormat, ReasonChannelRejected, ReasonNoSendAffordance, ReasonSessionFault, ReasonRetryExhausted:
		return true
	}
	return false
}

// Description is the operator-facing explanation used in failure reports.
func (r FailureReason) Description() string {
	switch r {
	case ReasonInvalidFormat:
		return "contact number has an invalid format"
	case ReasonChannelRejected:
		return "channel rejected the contact (number missing or inactive)"
	case ReasonNoSendAffordance:
		return "no send control appeared, contact is likely unreachable"
	case ReasonSessionFault:
		return "channel session or automation fault"
	case ReasonRetryExhausted:
		return "retry after session restart also failed"
	}
	if r == "" {
		return "unknown failure"
	}
	return string(r)
}

// DeliveryOutcome is the terminal result of dispatching one job.
type DeliveryOutcome struct {
	ID          string
	JobID       string
	StudentID   string
	Contact     string
	Event       EventTag
	Status      JobState
	Reason      FailureReason
	Detail      string
	Attempts    int
	CompletedAt time.Time
}

func (o DeliveryOutcome) Delivered() bool { return o.Status == JobDelivered }

// FailureRecord is the durable per-contact failure entry. Repeat failures for
// the same contact update this record rather than adding a new one.
type FailureRecord struct {
	Contact      string        `json:"contact"`
	Reason       FailureReason `json:"reason"`
	Detail       string        `json:"detail"`
	LastEvent    EventTag      `json:"lastEvent,omitempty"`
	Attempts     int           `json:"attempts"`
	FirstAttempt time.Time     `json:"firstAttempt"`
	LastAttempt  time.Time     `json:"lastAttempt"`
}
