package observability

import (
	"context"
	"testing"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_LevelMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		level        string
		debugEnabled bool
	}{
		{name: "debug level", level: "debug", debugEnabled: true},
		{name: "info level", level: "info", debugEnabled: false},
		{name: "empty level defaults to info", level: "", debugEnabled: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("logger should not be nil")
			}

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debugEnabled {
				t.Fatalf("debug enabled=%v, want=%v", got, tc.debugEnabled)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("not-a-level")
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
	if logger != nil {
		t.Fatal("expected nil logger for invalid level")
	}
}

func TestTriggerID_ContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := WithTriggerID(context.Background(), "trg-123")
	triggerID, ok := TriggerIDFromContext(ctx)
	if !ok {
		t.Fatal("expected trigger id to exist")
	}
	if triggerID != "trg-123" {
		t.Fatalf("trigger id=%q, want=%q", triggerID, "trg-123")
	}
}

func TestTriggerID_ContextHelpersNilContext(t *testing.T) {
	t.Parallel()

	ctx := WithTriggerID(context.TODO(), "trg-456")
	triggerID, ok := TriggerIDFromContext(ctx)
	if !ok {
		t.Fatal("expected trigger id to exist")
	}
	if triggerID != "trg-456" {
		t.Fatalf("trigger id=%q, want=%q", triggerID, "trg-456")
	}
}

func TestTriggerID_MissingValue(t *testing.T) {
	t.Parallel()

	_, ok := TriggerIDFromContext(context.Background())
	if ok {
		t.Fatal("expected trigger id to be missing")
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	ctx := WithTriggerID(context.Background(), "trg-789")
	loggerWithContext := WithContextLogger(baseLogger, ctx)
	loggerWithContext.Info("message with trigger")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want=1", len(entries))
	}

	if got := entries[0].ContextMap()["triggerId"]; got != "trg-789" {
		t.Fatalf("triggerId=%v, want=%q", got, "trg-789")
	}
}

func TestWithContextLogger_NoTriggerID(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	loggerWithContext := WithContextLogger(baseLogger, context.Background())
	loggerWithContext.Info("message without trigger")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want=1", len(entries))
	}

	if _, ok := entries[0].ContextMap()["triggerId"]; ok {
		t.Fatal("expected triggerId field to be absent")
	}
}

func TestWithContextLogger_NilLogger(t *testing.T) {
	t.Parallel()

	if got := WithContextLogger(nil, context.Background()); got != nil {
		t.Fatal("expected nil logger")
	}
}

func TestJobFields(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	job := domain.NotificationJob{ID: "j1", StudentID: "s1", Contact: "01001234567", Event: domain.EventAbsenceFirst}
	logger.Info("dispatching", JobFields(job)...)

	fields := recorded.All()[0].ContextMap()
	if fields["jobId"] != "j1" || fields["studentId"] != "s1" || fields["event"] != "absence_first" {
		t.Fatalf("unexpected fields: %v", fields)
	}

	recorded.TakeAll()
	logger.Info("broadcast", JobFields(domain.NotificationJob{ID: "j2", Event: domain.EventBroadcast})...)
	if _, ok := recorded.All()[0].ContextMap()["studentId"]; ok {
		t.Fatal("studentId should be omitted when empty")
	}
}
