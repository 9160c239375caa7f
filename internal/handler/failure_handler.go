package handler

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/failures"
)

type FailureService interface {
	Records() ([]domain.FailureRecord, error)
	Summary() (failures.Summary, error)
	Export(w io.Writer) error
	Remove(contact string) error
	Clear() error
}

type FailureHandler struct {
	service FailureService
}

func NewFailureHandler(service FailureService) (*FailureHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("failure service is required")
	}
	return &FailureHandler{service: service}, nil
}

func RegisterFailureRoutes(router fiber.Router, service FailureService) error {
	h, err := NewFailureHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/failures", h.ListFailures)
	v1.Get("/failures/summary", h.GetSummary)
	v1.Get("/failures/export", h.Export)
	v1.Delete("/failures/:contact", h.RemoveFailure)
	v1.Delete("/failures", h.ClearFailures)

	return nil
}

type summaryResponse struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"byReason"`
}

func (h *FailureHandler) ListFailures(c *fiber.Ctx) error {
	records, err := h.service.Records()
	if err != nil {
		return err
	}
	if reason := strings.TrimSpace(c.Query("reason")); reason != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.Reason.String() == reason {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": records})
}

func (h *FailureHandler) GetSummary(c *fiber.Ctx) error {
	summary, err := h.service.Summary()
	if err != nil {
		return err
	}
	byReason := make(map[string]int, len(summary.ByReason))
	for reason, n := range summary.ByReason {
		byReason[reason.String()] = n
	}
	return c.Status(fiber.StatusOK).JSON(summaryResponse{Total: summary.Total, ByReason: byReason})
}

func (h *FailureHandler) Export(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.service.Export(&buf); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="failed_contacts.csv"`)
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}

func (h *FailureHandler) RemoveFailure(c *fiber.Ctx) error {
	if err := h.service.Remove(c.Params("contact")); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *FailureHandler) ClearFailures(c *fiber.Ctx) error {
	if err := h.service.Clear(); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
