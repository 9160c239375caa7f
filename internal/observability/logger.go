package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type triggerIDKey struct{}

func NewLogger(level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var parsed zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}

	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return parsed, nil
}

// WithTriggerID tags ctx with the id of the inbound trigger (scan, payment,
// sweep) so logs from the gate and composer can be joined.
func WithTriggerID(ctx context.Context, triggerID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, triggerIDKey{}, triggerID)
}

func TriggerIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	triggerID, ok := ctx.Value(triggerIDKey{}).(string)
	if !ok || triggerID == "" {
		return "", false
	}

	return triggerID, true
}

func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	triggerID, ok := TriggerIDFromContext(ctx)
	if !ok {
		return logger
	}

	return logger.With(zap.String("triggerId", triggerID))
}

// JobFields are the fields logged for every delivery step of a job.
func JobFields(job domain.NotificationJob) []zap.Field {
	fields := []zap.Field{
		zap.String("jobId", job.ID),
		zap.String("event", job.Event.String()),
		zap.String("contact", job.Contact),
	}
	if job.StudentID != "" {
		fields = append(fields, zap.String("studentId", job.StudentID))
	}
	return fields
}
