package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
)

func newJob(t *testing.T, n int) domain.NotificationJob {
	t.Helper()
	return domain.NewNotificationJob(fmt.Sprintf("s%d", n), "01001234567", fmt.Sprintf("body %d", n), domain.EventAttendance, time.Now())
}

func TestMemoryQueueDeliversInOrderExactlyOnce(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	want := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		job := newJob(t, i)
		want = append(want, job.ID)
		if err := q.Publish(context.Background(), job); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(ctx context.Context, job domain.NotificationJob) error {
			got = append(got, job.ID)
			if len(got) == len(want) {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Consume() did not finish")
	}

	if len(got) != len(want) {
		t.Fatalf("consumed %d jobs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("job[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
}

func TestMemoryQueueConcurrentPublishers(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	const producers, perProducer = 8, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Publish(context.Background(), newJob(t, p*perProducer+i)); err != nil {
					t.Errorf("Publish() error = %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	if q.Len() != producers*perProducer {
		t.Fatalf("Len() = %d, want %d", q.Len(), producers*perProducer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(map[string]int)
	_ = q.Consume(ctx, func(ctx context.Context, job domain.NotificationJob) error {
		seen[job.ID]++
		if len(seen) == producers*perProducer {
			cancel()
		}
		return nil
	})

	for id, n := range seen {
		if n != 1 {
			t.Fatalf("job %s consumed %d times, want 1", id, n)
		}
	}
}

func TestMemoryQueueWakesConsumerOnPublish(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, job domain.NotificationJob) error {
			received <- job.ID
			return nil
		})
	}()

	job := newJob(t, 1)
	if err := q.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case id := <-received:
		if id != job.ID {
			t.Fatalf("received %s, want %s", id, job.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not receive published job")
	}
}

func TestMemoryQueueRequeuesFailedHandlerAtHead(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	first, second := newJob(t, 1), newJob(t, 2)
	_ = q.Publish(context.Background(), first)
	_ = q.Publish(context.Background(), second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var order []string
	calls := 0
	_ = q.Consume(ctx, func(ctx context.Context, job domain.NotificationJob) error {
		calls++
		order = append(order, job.ID)
		if calls == 1 {
			return errors.New("interrupted")
		}
		if calls == 3 {
			cancel()
		}
		return nil
	})

	want := []string{first.ID, first.ID, second.ID}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestMemoryQueueSingleConsumer(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, job domain.NotificationJob) error {
			close(started)
			<-ctx.Done()
			return nil
		})
	}()
	_ = q.Publish(context.Background(), newJob(t, 1))
	<-started

	err := q.Consume(ctx, func(ctx context.Context, job domain.NotificationJob) error { return nil })
	if !errors.Is(err, ErrConsumerActive) {
		t.Fatalf("second Consume() error = %v, want %v", err, ErrConsumerActive)
	}
}

func TestMemoryQueueRejectsAfterClose(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Publish(context.Background(), newJob(t, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish() error = %v, want %v", err, ErrClosed)
	}
	if err := q.Consume(context.Background(), func(ctx context.Context, job domain.NotificationJob) error { return nil }); err != nil {
		t.Fatalf("Consume() after close error = %v, want nil", err)
	}
}

func TestMemoryQueueRejectsInvalidJob(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	job := newJob(t, 1)
	job.Contact = ""
	if err := q.Publish(context.Background(), job); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Publish() error = %v, want validation error", err)
	}
}

func TestEncodeDecodeJob(t *testing.T) {
	t.Parallel()

	job := newJob(t, 7)
	payload, err := EncodeJob(job)
	if err != nil {
		t.Fatalf("EncodeJob() error = %v", err)
	}

	decoded, err := DecodeJob(payload)
	if err != nil {
		t.Fatalf("DecodeJob() error = %v", err)
	}
	if decoded.ID != job.ID || decoded.Body != job.Body || decoded.Event != job.Event {
		t.Fatalf("decoded = %+v, want %+v", decoded, job)
	}

	if _, err := DecodeJob([]byte(`{"id":"x","contact":"1","body":"b","event":"fax"}`)); err == nil {
		t.Fatal("DecodeJob() with unknown event error = nil, want error")
	}
	if _, err := DecodeJob([]byte(`not json`)); err == nil {
		t.Fatal("DecodeJob() with invalid JSON error = nil, want error")
	}
}
