package handler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/attendance-notifier/internal/domain"
)

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateRecord):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrTrialsExhausted):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrSettingsMissing):
		return fiber.NewError(fiber.StatusPreconditionFailed, err.Error())
	default:
		return err
	}
}

// Clock resolves "today" for requests that omit a date.
type Clock struct {
	Location *time.Location
	Now      func() time.Time
}

func (c Clock) now() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}

func (c Clock) today() time.Time {
	return domain.Day(c.now())
}

// parseDate reads a YYYY-MM-DD value, falling back to today when empty.
func (c Clock) parseDate(value string, field string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return c.today(), nil
	}
	t, err := time.Parse(time.DateOnly, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", domain.ErrValidation, field)
	}
	return domain.Day(t), nil
}

// parseMonth reads a YYYY-MM value, falling back to the current month.
func (c Clock) parseMonth(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return domain.MonthStart(c.now()), nil
	}
	t, err := time.Parse("2006-01", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: month must be YYYY-MM", domain.ErrValidation)
	}
	return domain.MonthStart(t), nil
}

func studentIDParam(c *fiber.Ctx) (string, error) {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return "", fmt.Errorf("%w: student id is required", domain.ErrValidation)
	}
	return id, nil
}
