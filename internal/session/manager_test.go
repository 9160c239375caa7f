package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestManager(t *testing.T, launcher Launcher, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(launcher, cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestManagerDispatchSuccessReusesSession(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{}
	launcher := launcherFor(sess)
	m := newTestManager(t, launcher, Config{BaseURL: "https://chat.example"})

	for i := 0; i < 2; i++ {
		attempts, err := m.Dispatch(context.Background(), "0100-123-4567", "hello there")
		if err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		if attempts != 1 {
			t.Fatalf("attempts = %d, want 1", attempts)
		}
	}

	if launcher.Launches() != 1 {
		t.Fatalf("launches = %d, want 1", launcher.Launches())
	}
	if len(sess.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(sess.sent))
	}
	target := sess.sent[0]
	if target.Phone != "+201001234567" {
		t.Fatalf("phone = %q, want +201001234567", target.Phone)
	}
	if !strings.HasPrefix(target.URL, "https://chat.example/send?") || !strings.Contains(target.URL, "text=hello+there") {
		t.Fatalf("url = %q", target.URL)
	}
}

func TestManagerDispatchInvalidFormatFailsFast(t *testing.T) {
	t.Parallel()

	launcher := launcherFor(&fakeSession{})
	m := newTestManager(t, launcher, Config{})

	for _, contact := range []string{"12345", "1234567890123456", ""} {
		attempts, err := m.Dispatch(context.Background(), contact, "hi")
		if !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("Dispatch(%q) error = %v, want ErrInvalidFormat", contact, err)
		}
		if attempts != 0 {
			t.Fatalf("attempts = %d, want 0", attempts)
		}
	}
	if launcher.Launches() != 0 {
		t.Fatalf("launches = %d, want 0 for invalid contacts", launcher.Launches())
	}
}

func TestManagerDispatchRetriesOnFreshSession(t *testing.T) {
	t.Parallel()

	broken := &fakeSession{sendFn: func(ctx context.Context, target Target) error {
		return errors.New("target closed")
	}}
	healthy := &fakeSession{}
	launcher := launcherFor(broken, healthy)
	m := newTestManager(t, launcher, Config{})

	attempts, err := m.Dispatch(context.Background(), "01001234567", "hi")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if !broken.closed {
		t.Fatal("failed session should be torn down")
	}
	if launcher.Launches() != 2 {
		t.Fatalf("launches = %d, want 2", launcher.Launches())
	}
	if len(healthy.sent) != 1 || healthy.sent[0] != broken.sent[0] {
		t.Fatal("replay should resend the identical target")
	}
}

func TestManagerDispatchBothAttemptsFail(t *testing.T) {
	t.Parallel()

	failing := &fakeSession{sendFn: func(ctx context.Context, target Target) error {
		return errors.New("websocket closed")
	}}
	launcher := &fakeLauncher{launchFn: func(ctx context.Context) (Session, error) { return failing, nil }}
	m := newTestManager(t, launcher, Config{})

	attempts, err := m.Dispatch(context.Background(), "01001234567", "hi")
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}

	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) {
		t.Fatalf("Dispatch() error = %T %v, want *DispatchError", err, err)
	}
	if dispatchErr.Attempts != 2 || dispatchErr.First == nil {
		t.Fatalf("dispatch error = %+v", dispatchErr)
	}
	if launcher.Launches() != 2 {
		t.Fatalf("launches = %d, want 2 (never more than one reinit)", launcher.Launches())
	}
	if len(failing.sent) != 2 {
		t.Fatalf("sends = %d, want 2", len(failing.sent))
	}
}

func TestManagerDispatchNoCapacity(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{launchFn: func(ctx context.Context) (Session, error) {
		return nil, errors.New("login timed out")
	}}
	m := newTestManager(t, launcher, Config{})

	attempts, err := m.Dispatch(context.Background(), "01001234567", "hi")
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("Dispatch() error = %v, want ErrNoCapacity", err)
	}
	if attempts != 0 {
		t.Fatalf("attempts = %d, want 0", attempts)
	}
	if m.Active() {
		t.Fatal("no session should be held after failed init")
	}
}

func TestManagerDispatchReinitFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	first := &fakeSession{sendFn: func(ctx context.Context, target Target) error { return errors.New("crashed") }}
	launcher := &fakeLauncher{launchFn: func(ctx context.Context) (Session, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return nil, errors.New("chrome failed to start")
	}}
	m := newTestManager(t, launcher, Config{})

	attempts, err := m.Dispatch(context.Background(), "01001234567", "hi")
	var dispatchErr *DispatchError
	if !errors.As(err, &dispatchErr) {
		t.Fatalf("Dispatch() error = %v, want *DispatchError", err)
	}
	if attempts != 1 || dispatchErr.Attempts != 1 {
		t.Fatalf("attempts = %d / %d, want 1", attempts, dispatchErr.Attempts)
	}
	if errors.Is(err, ErrNoCapacity) {
		t.Fatal("reinit failure mid-dispatch is a terminal failure, not missing capacity")
	}
}

func TestManagerSendTimeoutMapsToNoSendAffordance(t *testing.T) {
	t.Parallel()

	stuck := &fakeSession{sendFn: func(ctx context.Context, target Target) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	launcher := &fakeLauncher{launchFn: func(ctx context.Context) (Session, error) { return stuck, nil }}
	m := newTestManager(t, launcher, Config{SendTimeout: 20 * time.Millisecond})

	_, err := m.Dispatch(context.Background(), "01001234567", "hi")
	if !errors.Is(err, ErrNoSendAffordance) {
		t.Fatalf("Dispatch() error = %v, want ErrNoSendAffordance", err)
	}
}

func TestManagerLaunchBoundedByAuthTimeout(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{launchFn: func(ctx context.Context) (Session, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	m := newTestManager(t, launcher, Config{AuthTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := m.Acquire(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Acquire() should give up after the auth timeout")
	}
}

func TestManagerDispatchContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	sess := &fakeSession{sendFn: func(c context.Context, target Target) error {
		cancel()
		return c.Err()
	}}
	launcher := &fakeLauncher{launchFn: func(ctx context.Context) (Session, error) { return sess, nil }}
	m := newTestManager(t, launcher, Config{})

	_, err := m.Dispatch(ctx, "01001234567", "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Dispatch() error = %v, want context.Canceled", err)
	}
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		t.Fatal("shutdown should not produce a terminal dispatch failure")
	}
}

func TestManagerCloseAndInvalidate(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{}
	launcher := &fakeLauncher{launchFn: func(ctx context.Context) (Session, error) { return sess, nil }}
	m := newTestManager(t, launcher, Config{})

	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	m.Invalidate()
	if !sess.closed || m.Active() {
		t.Fatal("Invalidate() should close and drop the session")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := m.Acquire(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Acquire() after Close error = %v, want ErrClosed", err)
	}
}
