package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	// ReadySelector appears once the web client is logged in.
	ReadySelector = `div[contenteditable='true']`
	// SendButtonXPath is the send control of an opened chat.
	SendButtonXPath = `//span[@data-icon='send']/parent::button`
	// ErrorPopupSelector is the modal the web client shows for unknown numbers.
	ErrorPopupSelector = `div[data-animate-modal-popup='true']`

	chromePollInterval = 250 * time.Millisecond
	chromeSettleDelay  = 2 * time.Second
)

// outcomeCheck reports "send" once the send control exists, "error:<text>"
// when the error popup is shown and "" while the chat is still loading.
var outcomeCheck = fmt.Sprintf(`(() => {
  const popup = document.querySelector(%q);
  if (popup) { return "error:" + popup.innerText; }
  const btn = document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  return btn ? "send" : "";
})()`, ErrorPopupSelector, SendButtonXPath)

type ChromeConfig struct {
	BaseURL    string
	ProfileDir string
	Headless   bool
}

// ChromeLauncher drives the channel's web client in a Chrome instance with a
// persistent profile, so the login survives restarts.
type ChromeLauncher struct {
	cfg ChromeConfig
}

var _ Launcher = (*ChromeLauncher)(nil)

func NewChromeLauncher(cfg ChromeConfig) (*ChromeLauncher, error) {
	if strings.TrimSpace(cfg.ProfileDir) == "" {
		return nil, fmt.Errorf("chrome profile dir is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if err := os.MkdirAll(cfg.ProfileDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create chrome profile dir: %w", err)
	}
	return &ChromeLauncher{cfg: cfg}, nil
}

// Launch starts the browser and waits, bounded by ctx, for the logged-in
// composer to appear. The first run needs an operator to scan the login code
// in a non-headless window.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(l.cfg.ProfileDir),
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("start-maximized", true),
	)

	// The browser outlives the launch call, so it hangs off a detached context.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	sess := &chromeSession{
		browserCtx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}

	// Allocate on the browser context itself: a first Run on a derived,
	// deadline-bound context would tie the browser to that deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	runCtx, cancel := sess.scoped(ctx)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(l.cfg.BaseURL),
		chromedp.WaitReady(ReadySelector, chromedp.ByQuery),
	)
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("channel login not ready: %w", err)
	}

	return sess, nil
}

type chromeSession struct {
	browserCtx context.Context
	cancel     context.CancelFunc
}

func (s *chromeSession) Send(ctx context.Context, target Target) error {
	runCtx, cancel := s.scoped(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(target.URL)); err != nil {
		return fmt.Errorf("open chat: %w", err)
	}

	ticker := time.NewTicker(chromePollInterval)
	defer ticker.Stop()

	for {
		var state string
		if err := chromedp.Run(runCtx, chromedp.Evaluate(outcomeCheck, &state)); err != nil {
			if runCtx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrNoSendAffordance, err)
			}
			return fmt.Errorf("check chat state: %w", err)
		}

		switch {
		case strings.HasPrefix(state, "error:"):
			return fmt.Errorf("%w: %s", ErrChannelRejected, strings.TrimSpace(strings.TrimPrefix(state, "error:")))
		case state == "send":
			err := chromedp.Run(runCtx,
				chromedp.Click(SendButtonXPath, chromedp.BySearch),
				chromedp.Sleep(chromeSettleDelay),
			)
			if err != nil {
				return fmt.Errorf("click send: %w", err)
			}
			return nil
		}

		select {
		case <-runCtx.Done():
			return fmt.Errorf("%w: %v", ErrNoSendAffordance, runCtx.Err())
		case <-ticker.C:
		}
	}
}

func (s *chromeSession) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// scoped derives a context that carries the browser target but ends with
// ctx. Cancelling it does not close the browser.
func (s *chromeSession) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(s.browserCtx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		prev := cancel
		cancel = func() {
			cancelDeadline()
			prev()
		}
	}

	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
