package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/service"
)

const (
	defaultDeliveryLimit = 50
	maxDeliveryLimit     = 200
)

type RiskAssessor interface {
	Assess(ctx context.Context, studentID string, today time.Time) (*service.RiskReport, error)
}

type DeliveryHistory interface {
	Deliveries(ctx context.Context, studentID string, limit int) ([]domain.DeliveryOutcome, error)
}

type ContactFixer interface {
	FixContact(ctx context.Context, studentID, contact string) (*service.FixContactResult, error)
}

type StudentHandler struct {
	risk       RiskAssessor
	deliveries DeliveryHistory
	contacts   ContactFixer
	clock      Clock
}

func NewStudentHandler(risk RiskAssessor, deliveries DeliveryHistory, contacts ContactFixer, clock Clock) (*StudentHandler, error) {
	if risk == nil || deliveries == nil || contacts == nil {
		return nil, fmt.Errorf("risk, delivery and contact services are required")
	}
	return &StudentHandler{risk: risk, deliveries: deliveries, contacts: contacts, clock: clock}, nil
}

func RegisterStudentRoutes(router fiber.Router, risk RiskAssessor, deliveries DeliveryHistory, contacts ContactFixer, clock Clock) error {
	h, err := NewStudentHandler(risk, deliveries, contacts, clock)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/students/:id/risk", h.GetRisk)
	v1.Get("/students/:id/deliveries", h.ListDeliveries)
	v1.Put("/students/:id/contact", h.UpdateContact)

	return nil
}

type riskResponse struct {
	StudentID   string   `json:"studentId"`
	StudentName string   `json:"studentName"`
	Level       string   `json:"level"`
	Reasons     []string `json:"reasons"`
}

type deliveryResponse struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	Event       string    `json:"event"`
	Contact     string    `json:"contact"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Attempts    int       `json:"attempts"`
	CompletedAt time.Time `json:"completedAt"`
}

type contactRequest struct {
	Contact string `json:"contact"`
}

func (h *StudentHandler) GetRisk(c *fiber.Ctx) error {
	id, err := studentIDParam(c)
	if err != nil {
		return toHTTPError(err)
	}
	report, err := h.risk.Assess(c.Context(), id, h.clock.today())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(riskResponse{
		StudentID:   report.Student.ID,
		StudentName: report.Student.Name,
		Level:       report.Assessment.Level.String(),
		Reasons:     report.Assessment.Reasons,
	})
}

func (h *StudentHandler) ListDeliveries(c *fiber.Ctx) error {
	id, err := studentIDParam(c)
	if err != nil {
		return toHTTPError(err)
	}
	limit := c.QueryInt("limit", defaultDeliveryLimit)
	if limit < 1 || limit > maxDeliveryLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxDeliveryLimit))
	}

	outcomes, err := h.deliveries.Deliveries(c.Context(), id, limit)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryResponse, 0, len(outcomes))
	for _, o := range outcomes {
		data = append(data, deliveryResponse{
			ID:          o.ID,
			JobID:       o.JobID,
			Event:       o.Event.String(),
			Contact:     o.Contact,
			Status:      o.Status.String(),
			Reason:      o.Reason.String(),
			Detail:      o.Detail,
			Attempts:    o.Attempts,
			CompletedAt: o.CompletedAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *StudentHandler) UpdateContact(c *fiber.Ctx) error {
	id, err := studentIDParam(c)
	if err != nil {
		return toHTTPError(err)
	}
	var req contactRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.contacts.FixContact(c.Context(), id, req.Contact)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"studentId":            result.Student.ID,
		"contact":              result.Student.Contact,
		"failureRecordRemoved": result.PreviousEntry != nil,
	})
}
