package transport

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
	app.Get("/conflict", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusConflict, "attendance already recorded")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("pq: connection refused")
	})

	tests := []struct {
		path   string
		status int
		body   string
		level  zapcore.Level
	}{
		{path: "/conflict", status: fiber.StatusConflict, body: `{"error":"attendance already recorded"}`, level: zapcore.WarnLevel},
		{path: "/boom", status: fiber.StatusInternalServerError, body: `{"error":"internal server error"}`, level: zapcore.ErrorLevel},
	}

	for i, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode != tt.status {
			t.Fatalf("%s status = %d, want %d", tt.path, resp.StatusCode, tt.status)
		}
		if strings.TrimSpace(string(body)) != tt.body {
			t.Fatalf("%s body = %s, want %s", tt.path, body, tt.body)
		}
		entry := logs.All()[i]
		if entry.Level != tt.level {
			t.Fatalf("%s log level = %s, want %s", tt.path, entry.Level, tt.level)
		}
	}
}
