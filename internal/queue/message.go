package queue

import (
	"encoding/json"
	"fmt"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
)

// EncodeJob is the broker payload encoding for a job.
func EncodeJob(job domain.NotificationJob) ([]byte, error) {
	if err := validateJob(job); err != nil {
		return nil, fmt.Errorf("invalid notification job: %w", err)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification job: %w", err)
	}
	return payload, nil
}

func DecodeJob(body []byte) (domain.NotificationJob, error) {
	var job domain.NotificationJob
	if err := json.Unmarshal(body, &job); err != nil {
		return domain.NotificationJob{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validateJob(job); err != nil {
		return domain.NotificationJob{}, err
	}
	return job, nil
}

func validateJob(job domain.NotificationJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if !job.Event.IsValid() {
		return fmt.Errorf("%w: invalid event %q", domain.ErrValidation, job.Event)
	}
	return nil
}
