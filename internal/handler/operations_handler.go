package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/service"
)

type SweepService interface {
	Run(ctx context.Context, date time.Time) (*service.SweepReport, error)
}

type BroadcastService interface {
	Send(ctx context.Context, title, content string) (*domain.Broadcast, error)
}

// OperationsHandler serves the batch triggers: the absentee sweep and
// broadcasts.
type OperationsHandler struct {
	sweeper     SweepService
	broadcaster BroadcastService
	clock       Clock
}

func NewOperationsHandler(sweeper SweepService, broadcaster BroadcastService, clock Clock) (*OperationsHandler, error) {
	if sweeper == nil || broadcaster == nil {
		return nil, fmt.Errorf("sweep and broadcast services are required")
	}
	return &OperationsHandler{sweeper: sweeper, broadcaster: broadcaster, clock: clock}, nil
}

func RegisterOperationsRoutes(router fiber.Router, sweeper SweepService, broadcaster BroadcastService, clock Clock) error {
	h, err := NewOperationsHandler(sweeper, broadcaster, clock)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/sweeps", h.RunSweep)
	v1.Post("/broadcasts", h.Broadcast)

	return nil
}

type broadcastRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type sweepResponse struct {
	Date                string         `json:"date"`
	MarkedAbsent        int            `json:"markedAbsent"`
	Skipped             int            `json:"skipped"`
	JobsEnqueued        int            `json:"jobsEnqueued"`
	Tiers               map[string]int `json:"tiers"`
	LowAttendanceAlerts int            `json:"lowAttendanceAlerts"`
	HighRiskAlerts      int            `json:"highRiskAlerts"`
}

type broadcastResponse struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Recipients int        `json:"recipients"`
	SentAt     *time.Time `json:"sentAt,omitempty"`
}

func (h *OperationsHandler) RunSweep(c *fiber.Ctx) error {
	var req dateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	date, err := h.clock.parseDate(req.Date, "date")
	if err != nil {
		return toHTTPError(err)
	}

	report, err := h.sweeper.Run(c.Context(), date)
	if err != nil {
		return toHTTPError(err)
	}

	tiers := make(map[string]int, len(report.Tiers))
	for tag, n := range report.Tiers {
		tiers[tag.String()] = n
	}
	return c.Status(fiber.StatusOK).JSON(sweepResponse{
		Date:                report.Date.Format(time.DateOnly),
		MarkedAbsent:        report.MarkedAbsent,
		Skipped:             report.Skipped,
		JobsEnqueued:        report.JobsEnqueued,
		Tiers:               tiers,
		LowAttendanceAlerts: report.LowAttendanceAlerts,
		HighRiskAlerts:      report.HighRiskAlerts,
	})
}

func (h *OperationsHandler) Broadcast(c *fiber.Ctx) error {
	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	broadcast, err := h.broadcaster.Send(c.Context(), req.Title, req.Content)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(broadcastResponse{
		ID:         broadcast.ID,
		Title:      broadcast.Title,
		Recipients: broadcast.Recipients,
		SentAt:     broadcast.SentAt,
	})
}
