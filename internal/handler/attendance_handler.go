package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/service"
)

type GateService interface {
	RecordAttendance(ctx context.Context, studentID string, date time.Time) (*domain.AttendanceRecord, error)
	GrantFreeTry(ctx context.Context, studentID string, date time.Time) (*service.TrialResult, error)
	RecordPayment(ctx context.Context, studentID string, month time.Time) (*service.PaymentResult, error)
	PayAndAttend(ctx context.Context, studentID string, date time.Time) (*service.PayAndAttendResult, error)
	Scan(ctx context.Context, barcode string, date time.Time, arrivedAt time.Time) (*service.ScanResult, error)
}

type AttendanceHandler struct {
	gate  GateService
	clock Clock
}

func NewAttendanceHandler(gate GateService, clock Clock) (*AttendanceHandler, error) {
	if gate == nil {
		return nil, fmt.Errorf("gate service is required")
	}
	return &AttendanceHandler{gate: gate, clock: clock}, nil
}

func RegisterAttendanceRoutes(router fiber.Router, gate GateService, clock Clock) error {
	h, err := NewAttendanceHandler(gate, clock)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/scans", h.Scan)
	v1.Post("/students/:id/attendance", h.RecordAttendance)
	v1.Post("/students/:id/free-try", h.GrantFreeTry)
	v1.Post("/students/:id/payments", h.RecordPayment)

	return nil
}

type scanRequest struct {
	Barcode string `json:"barcode"`
	Date    string `json:"date"`
}

type dateRequest struct {
	Date string `json:"date"`
}

type paymentRequest struct {
	Month  string `json:"month"`
	Date   string `json:"date"`
	Attend bool   `json:"attend"`
}

type attendanceResponse struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"studentId"`
	Date        string     `json:"date"`
	Absent      bool       `json:"absent"`
	ArrivalTime *time.Time `json:"arrivalTime,omitempty"`
}

type scanResponse struct {
	Status          string              `json:"status"`
	StudentID       string              `json:"studentId"`
	StudentName     string              `json:"studentName"`
	Late            bool                `json:"late"`
	TrialsRemaining int                 `json:"trialsRemaining"`
	Attendance      *attendanceResponse `json:"attendance,omitempty"`
}

type paymentResponse struct {
	ID         string              `json:"id"`
	StudentID  string              `json:"studentId"`
	Month      string              `json:"month"`
	PaidAt     time.Time           `json:"paidAt"`
	Created    bool                `json:"created"`
	Attendance *attendanceResponse `json:"attendance,omitempty"`
}

func (h *AttendanceHandler) Scan(c *fiber.Ctx) error {
	var req scanRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	date, err := h.clock.parseDate(req.Date, "date")
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.gate.Scan(c.Context(), req.Barcode, date, h.clock.now())
	if err != nil {
		return toHTTPError(err)
	}

	resp := scanResponse{
		Status:          string(result.Status),
		Late:            result.Late,
		TrialsRemaining: result.TrialsRemaining,
		Attendance:      toAttendanceResponse(result.Attendance),
	}
	if result.Student != nil {
		resp.StudentID = result.Student.ID
		resp.StudentName = result.Student.Name
	}

	status := fiber.StatusCreated
	if result.Status == service.ScanPaymentRequired {
		status = fiber.StatusPaymentRequired
	}
	return c.Status(status).JSON(resp)
}

func (h *AttendanceHandler) RecordAttendance(c *fiber.Ctx) error {
	id, date, err := h.studentAndDate(c)
	if err != nil {
		return toHTTPError(err)
	}

	record, err := h.gate.RecordAttendance(c.Context(), id, date)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toAttendanceResponse(record))
}

func (h *AttendanceHandler) GrantFreeTry(c *fiber.Ctx) error {
	id, date, err := h.studentAndDate(c)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.gate.GrantFreeTry(c.Context(), id, date)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"trialsRemaining": result.TrialsRemaining,
		"attendance":      toAttendanceResponse(result.Attendance),
	})
}

// RecordPayment records a month's payment; with attend=true it also records
// attendance for date in the same step.
func (h *AttendanceHandler) RecordPayment(c *fiber.Ctx) error {
	id, err := studentIDParam(c)
	if err != nil {
		return toHTTPError(err)
	}
	var req paymentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	if c.QueryBool("attend", false) {
		req.Attend = true
	}

	if req.Attend {
		date, err := h.clock.parseDate(req.Date, "date")
		if err != nil {
			return toHTTPError(err)
		}
		result, err := h.gate.PayAndAttend(c.Context(), id, date)
		if err != nil {
			return toHTTPError(err)
		}
		resp := toPaymentResponse(result.Payment, result.Created)
		resp.Attendance = toAttendanceResponse(result.Attendance)
		return c.Status(fiber.StatusCreated).JSON(resp)
	}

	month, err := h.clock.parseMonth(req.Month)
	if err != nil {
		return toHTTPError(err)
	}
	result, err := h.gate.RecordPayment(c.Context(), id, month)
	if err != nil {
		return toHTTPError(err)
	}

	status := fiber.StatusOK
	if result.Created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(toPaymentResponse(result.Payment, result.Created))
}

func (h *AttendanceHandler) studentAndDate(c *fiber.Ctx) (string, time.Time, error) {
	id, err := studentIDParam(c)
	if err != nil {
		return "", time.Time{}, err
	}
	var req dateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return "", time.Time{}, fmt.Errorf("%w: invalid request body", domain.ErrValidation)
		}
	}
	date, err := h.clock.parseDate(req.Date, "date")
	if err != nil {
		return "", time.Time{}, err
	}
	return id, date, nil
}

func toAttendanceResponse(r *domain.AttendanceRecord) *attendanceResponse {
	if r == nil {
		return nil
	}
	return &attendanceResponse{
		ID:          r.ID,
		StudentID:   r.StudentID,
		Date:        r.Date.Format(time.DateOnly),
		Absent:      r.Absent,
		ArrivalTime: r.ArrivalTime,
	}
}

func toPaymentResponse(p *domain.PaymentRecord, created bool) paymentResponse {
	if p == nil {
		return paymentResponse{}
	}
	return paymentResponse{
		ID:        p.ID,
		StudentID: p.StudentID,
		Month:     p.Month.Format("2006-01"),
		PaidAt:    p.PaidAt,
		Created:   created,
	}
}
