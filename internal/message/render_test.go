package message

import (
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
)

func TestRender(t *testing.T) {
	t.Parallel()

	vars := Vars{"student_name": "Omar", "date": "2024-03-05"}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{name: "plain", template: "no tokens here", want: "no tokens here"},
		{name: "single", template: "Hi {student_name}", want: "Hi Omar"},
		{name: "repeated", template: "{date}/{date}", want: "2024-03-05/2024-03-05"},
		{name: "unknown kept", template: "Hi {student_name}, see {unknown}", want: "Hi Omar, see {unknown}"},
		{name: "unclosed", template: "Hi {student_name", want: "Hi {student_name"},
		{name: "stray close", template: "a } b", want: "a } b"},
		{name: "nested open", template: "{{student_name}}", want: "{Omar}"},
		{name: "empty token", template: "x{}y", want: "x{}y"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Render(tc.template, vars); got != tc.want {
				t.Fatalf("Render(%q) = %q, want %q", tc.template, got, tc.want)
			}
		})
	}
}

func TestDefaultVars(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 5, 8, 45, 0, 0, time.UTC)
	vars := DefaultVars(&domain.Student{Name: "Omar", Barcode: "B-1", Contact: "01001234567"}, now)

	if vars["date"] != "2024-03-05" || vars["time"] != "08:45" {
		t.Fatalf("date/time = %q/%q", vars["date"], vars["time"])
	}
	if vars["student_name"] != "Omar" || vars["barcode"] != "B-1" {
		t.Fatalf("unexpected student vars: %v", vars)
	}
}

func TestEveryEventHasTemplate(t *testing.T) {
	t.Parallel()

	tags := []domain.EventTag{
		domain.EventAttendance, domain.EventLateAttendance, domain.EventTrialUsed,
		domain.EventPaymentReceipt, domain.EventPaymentAttendance,
		domain.EventAbsenceFirst, domain.EventAbsenceSecond, domain.EventAbsenceUrgent,
		domain.EventAbsenceRecurred, domain.EventAbsenceGeneric,
		domain.EventLowAttendance, domain.EventHighRisk,
	}
	for _, tag := range tags {
		if _, ok := Template(tag); !ok {
			t.Fatalf("missing template for %s", tag)
		}
	}
}

func TestComposerCompose(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	student := &domain.Student{ID: "s1", Name: "Omar", Contact: " 01001234567 "}

	job, err := NewComposer("").Compose(domain.EventAbsenceUrgent, student, now, Vars{"consecutive_days": "3"})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if job.Event != domain.EventAbsenceUrgent || job.StudentID != "s1" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Contact != "01001234567" {
		t.Fatalf("contact = %q, want trimmed", job.Contact)
	}
	if !strings.Contains(job.Body, "absent for 3 days") {
		t.Fatalf("body missing streak: %q", job.Body)
	}
	if !strings.Contains(job.Body, DefaultSignature) {
		t.Fatalf("body missing signature: %q", job.Body)
	}
	if strings.Contains(job.Body, "{") {
		t.Fatalf("body has unresolved tokens: %q", job.Body)
	}
}

func TestComposerComposeRejectsUnknownEvent(t *testing.T) {
	t.Parallel()

	_, err := NewComposer("x").Compose(domain.EventBroadcast, &domain.Student{ID: "s1", Contact: "1"}, time.Now(), nil)
	if err == nil {
		t.Fatal("Compose(broadcast) error = nil, want validation error")
	}
}

func TestComposerComposeBroadcast(t *testing.T) {
	t.Parallel()

	student := &domain.Student{ID: "s1", Name: "Omar", Contact: "01001234567"}
	job, err := NewComposer("Front Desk").ComposeBroadcast("Holiday", "Dear {student_name}'s family, no class on {day}.", student, time.Now())
	if err != nil {
		t.Fatalf("ComposeBroadcast() error = %v", err)
	}

	if !strings.HasPrefix(job.Body, "Announcement: Holiday") {
		t.Fatalf("body header = %q", job.Body)
	}
	if !strings.Contains(job.Body, "Dear Omar's family, no class on {day}.") {
		t.Fatalf("body content = %q", job.Body)
	}
	if !strings.HasSuffix(job.Body, "Front Desk") {
		t.Fatalf("body signature = %q", job.Body)
	}
}

func TestComposerComposeBroadcastKeepsSubstitutedValuesLiteral(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		title   string
		content string
		student string
		want    []string
	}{
		{
			name:    "placeholder in student name",
			title:   "Holiday",
			content: "Dear {student_name}'s family.",
			student: "{title} Omar",
			want:    []string{"Announcement: Holiday", "Dear {title} Omar's family."},
		},
		{
			name:    "placeholder in title",
			title:   "Exams {signature}",
			content: "See you {date}.",
			student: "Omar",
			want:    []string{"Announcement: Exams {signature}", "See you 2024-03-12."},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			student := &domain.Student{ID: "s1", Name: tt.student, Contact: "01001234567"}
			now := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
			job, err := NewComposer("Front Desk").ComposeBroadcast(tt.title, tt.content, student, now)
			if err != nil {
				t.Fatalf("ComposeBroadcast() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(job.Body, want) {
					t.Fatalf("body = %q, want it to contain %q", job.Body, want)
				}
			}
			if strings.Count(job.Body, "Front Desk") != 1 {
				t.Fatalf("body = %q, want the signature once", job.Body)
			}
		})
	}
}
