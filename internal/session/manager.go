package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/observability"
	"go.uber.org/zap"
)

const (
	DefaultAuthTimeout = 300 * time.Second
	DefaultSendTimeout = 30 * time.Second
	DefaultMinDigits   = 10
	DefaultMaxDigits   = 15
	DefaultCountryCode = "20"
	DefaultBaseURL     = "https://web.whatsapp.com"
)

type Config struct {
	AuthTimeout time.Duration
	SendTimeout time.Duration
	MinDigits   int
	MaxDigits   int
	CountryCode string
	BaseURL     string
}

func (c Config) withDefaults() Config {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.MinDigits <= 0 {
		c.MinDigits = DefaultMinDigits
	}
	if c.MaxDigits < c.MinDigits {
		c.MaxDigits = max(DefaultMaxDigits, c.MinDigits)
	}
	if c.CountryCode == "" {
		c.CountryCode = DefaultCountryCode
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	return c
}

// Manager owns the process-wide channel session. It is created lazily on
// first dispatch and reused until a failure invalidates it. All use is
// serialized by mu.
type Manager struct {
	launcher Launcher
	cfg      Config
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	session Session
	closed  bool
}

func NewManager(launcher Launcher, cfg Config, logger *zap.Logger, metrics *observability.Metrics) (*Manager, error) {
	if launcher == nil {
		return nil, fmt.Errorf("session launcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		launcher: launcher,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Acquire returns the live session, initializing one if needed.
func (m *Manager) Acquire(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireLocked(ctx)
}

// Dispatch delivers message to contact and returns the number of
// session-level attempts used. A failed first attempt tears the session
// down, reinitializes it once and replays the same target.
//
// Errors: a *DispatchError for terminal delivery failures, ErrNoCapacity
// when no session could be initialized for the first attempt, or the
// context error when ctx ended mid-dispatch.
func (m *Manager) Dispatch(ctx context.Context, contact, message string) (int, error) {
	digits := Digits(contact)
	if len(digits) < m.cfg.MinDigits || len(digits) > m.cfg.MaxDigits {
		return 0, &DispatchError{
			Contact: contact,
			Cause: fmt.Errorf("%w: %d digits, want %d-%d",
				ErrInvalidFormat, len(digits), m.cfg.MinDigits, m.cfg.MaxDigits),
		}
	}

	phone := Normalize(digits, m.cfg.CountryCode)
	target := Target{
		Phone:   phone,
		Message: message,
		URL:     SendURL(m.cfg.BaseURL, phone, message),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.acquireLocked(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %v", ErrNoCapacity, err)
	}

	firstErr := m.send(ctx, sess, target)
	if firstErr == nil {
		return 1, nil
	}
	if ctx.Err() != nil {
		m.invalidateLocked()
		return 1, ctx.Err()
	}

	m.logger.Warn("dispatch failed, restarting channel session",
		zap.String("contact", phone),
		zap.Error(firstErr),
	)
	m.invalidateLocked()

	sess, err = m.acquireLocked(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 1, ctx.Err()
		}
		return 1, &DispatchError{
			Contact:  contact,
			Attempts: 1,
			First:    firstErr,
			Cause:    fmt.Errorf("reinitialize session: %w", err),
		}
	}

	secondErr := m.send(ctx, sess, target)
	if secondErr == nil {
		m.logger.Info("dispatch succeeded after session restart", zap.String("contact", phone))
		return 2, nil
	}
	if ctx.Err() != nil {
		return 2, ctx.Err()
	}

	return 2, &DispatchError{
		Contact:  contact,
		Attempts: 2,
		First:    firstErr,
		Cause:    secondErr,
	}
}

// Invalidate closes the current session; the next dispatch starts a new one.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked()
}

// Active reports whether an initialized session is currently held.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}

func (m *Manager) acquireLocked(ctx context.Context) (Session, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if m.session != nil {
		return m.session, nil
	}

	authCtx, cancel := context.WithTimeout(ctx, m.cfg.AuthTimeout)
	defer cancel()

	start := time.Now()
	sess, err := m.launcher.Launch(authCtx)
	if err == nil && sess == nil {
		err = errors.New("launcher returned no session")
	}
	if err != nil {
		m.metrics.IncSessionInit(false)
		m.logger.Error("channel session initialization failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	m.metrics.IncSessionInit(true)
	m.logger.Info("channel session ready", zap.Duration("elapsed", time.Since(start)))
	m.session = sess
	return sess, nil
}

func (m *Manager) invalidateLocked() {
	if m.session == nil {
		return
	}
	if err := m.session.Close(); err != nil {
		m.logger.Warn("failed to close channel session", zap.Error(err))
	}
	m.session = nil
}

// send runs one bounded attempt. Running out of SendTimeout while waiting for
// the channel is reported as ErrNoSendAffordance.
func (m *Manager) send(ctx context.Context, sess Session, target Target) error {
	sendCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
	defer cancel()

	err := sess.Send(sendCtx, target)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil &&
		errors.Is(sendCtx.Err(), context.DeadlineExceeded) &&
		!errors.Is(err, ErrChannelRejected) &&
		!errors.Is(err, ErrNoSendAffordance) {
		return fmt.Errorf("%w: %v", ErrNoSendAffordance, err)
	}
	return err
}
