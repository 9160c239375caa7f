package session

import (
	"context"
	"sync"
)

type fakeSession struct {
	sendFn  func(ctx context.Context, target Target) error
	closeFn func() error

	mu     sync.Mutex
	sent   []Target
	closed bool
}

func (f *fakeSession) Send(ctx context.Context, target Target) error {
	f.mu.Lock()
	f.sent = append(f.sent, target)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, target)
	}
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeLauncher struct {
	launchFn func(ctx context.Context) (Session, error)

	mu       sync.Mutex
	launches int
}

func (f *fakeLauncher) Launch(ctx context.Context) (Session, error) {
	f.mu.Lock()
	f.launches++
	f.mu.Unlock()
	if f.launchFn != nil {
		return f.launchFn(ctx)
	}
	return &fakeSession{}, nil
}

func (f *fakeLauncher) Launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches
}

// launcherFor hands out the given sessions in order, one per launch.
func launcherFor(sessions ...*fakeSession) *fakeLauncher {
	var mu sync.Mutex
	next := 0
	return &fakeLauncher{
		launchFn: func(ctx context.Context) (Session, error) {
			mu.Lock()
			defer mu.Unlock()
			s := sessions[next]
			if next < len(sessions)-1 {
				next++
			}
			return s, nil
		},
	}
}
