package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	gatewayPollInterval   = 2 * time.Second
)

type gatewayStatus struct {
	Ready bool   `json:"ready"`
	State string `json:"state,omitempty"`
}

type gatewayMessage struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

// GatewayError is a non-2xx answer or transport failure from the gateway.
type GatewayError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "gateway error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// GatewayLauncher talks to a self-hosted HTTP bridge that holds the channel
// login: GET /session/status reports readiness, POST /messages sends.
type GatewayLauncher struct {
	client       *resty.Client
	endpoint     string
	pollInterval time.Duration
}

var _ Launcher = (*GatewayLauncher)(nil)

func NewGatewayLauncher(endpoint, token string) (*GatewayLauncher, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)
	if token != "" {
		client.SetAuthToken(token)
	}

	return NewGatewayLauncherWithClient(endpoint, client)
}

func NewGatewayLauncherWithClient(endpoint string, client *resty.Client) (*GatewayLauncher, error) {
	trimmedEndpoint := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &GatewayLauncher{
		client:       client,
		endpoint:     trimmedEndpoint,
		pollInterval: gatewayPollInterval,
	}, nil
}

// Launch polls the gateway status until it reports a logged-in session.
func (l *GatewayLauncher) Launch(ctx context.Context) (Session, error) {
	if l == nil || l.client == nil {
		return nil, fmt.Errorf("gateway launcher is not initialized")
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		var status gatewayStatus
		response, err := l.client.R().
			SetContext(ctx).
			SetResult(&status).
			Get(l.endpoint + "/session/status")
		switch {
		case err != nil:
			lastErr = &GatewayError{Message: "status request failed", Cause: err}
		case response.IsSuccess() && status.Ready:
			return &gatewaySession{client: l.client, endpoint: l.endpoint}, nil
		case response.IsSuccess():
			lastErr = fmt.Errorf("gateway session not ready (state %q)", status.State)
		default:
			lastErr = &GatewayError{
				StatusCode: response.StatusCode(),
				Message:    gatewayErrorMessage(response.StatusCode(), strings.TrimSpace(response.String())),
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gateway not ready: %w (last: %v)", ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}

type gatewaySession struct {
	client   *resty.Client
	endpoint string
}

func (s *gatewaySession) Send(ctx context.Context, target Target) error {
	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(gatewayMessage{Phone: target.Phone, Text: target.Message}).
		Post(s.endpoint + "/messages")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrNoSendAffordance, err)
		}
		return &GatewayError{Message: "send request failed", Cause: err}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(response.String())
	gwErr := &GatewayError{
		StatusCode: statusCode,
		Message:    gatewayErrorMessage(statusCode, body),
	}
	if isRejectionStatus(statusCode) {
		gwErr.Cause = ErrChannelRejected
	}
	return gwErr
}

func (s *gatewaySession) Close() error {
	return nil
}

// isRejectionStatus reports statuses the gateway uses for contacts the
// channel does not know. Other statuses are session faults.
func isRejectionStatus(statusCode int) bool {
	return statusCode == http.StatusNotFound ||
		statusCode == http.StatusUnprocessableEntity ||
		statusCode == http.StatusBadRequest
}

func gatewayErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
