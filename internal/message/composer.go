package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
)

// Composer turns gate, sweep and broadcast events into notification jobs.
type Composer struct {
	signature string
}

func NewComposer(signature string) *Composer {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		signature = DefaultSignature
	}
	return &Composer{signature: signature}
}

// Compose renders the template for tag and wraps it into a job addressed to
// the student's guardian.
func (c *Composer) Compose(tag domain.EventTag, student *domain.Student, now time.Time, extra Vars) (domain.NotificationJob, error) {
	if student == nil {
		return domain.NotificationJob{}, fmt.Errorf("%w: student is required", domain.ErrValidation)
	}
	tpl, ok := Template(tag)
	if !ok {
		return domain.NotificationJob{}, fmt.Errorf("%w: no template for event %q", domain.ErrValidation, tag)
	}

	body := Render(tpl, c.vars(student, now, extra))
	return domain.NewNotificationJob(student.ID, student.Contact, body, tag, now), nil
}

// ComposeBroadcast renders operator content for one student and wraps it in
// the broadcast header and signature.
func (c *Composer) ComposeBroadcast(title, content string, student *domain.Student, now time.Time) (domain.NotificationJob, error) {
	if student == nil {
		return domain.NotificationJob{}, fmt.Errorf("%w: student is required", domain.ErrValidation)
	}
	// One pass, so placeholders inside substituted values stay literal.
	body := Render(WrapBroadcast(content), c.vars(student, now, Vars{"title": title}))
	return domain.NewNotificationJob(student.ID, student.Contact, body, domain.EventBroadcast, now), nil
}

func (c *Composer) vars(student *domain.Student, now time.Time, extra Vars) Vars {
	return DefaultVars(student, now).Merge(Vars{"signature": c.signature}).Merge(extra)
}

// FormatRate formats a percentage the way alerts print it.
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.1f", rate)
}

// FormatMonth formats a billing month for receipts.
func FormatMonth(month time.Time) string {
	return month.Format("January 2006")
}

// FormatReasons renders risk reasons as a bulleted list.
func FormatReasons(reasons []string) string {
	lines := make([]string, 0, len(reasons))
	for _, r := range reasons {
		lines = append(lines, "- "+r)
	}
	return strings.Join(lines, "\n")
}
