package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/emirozbir/micro-triage/internal/models"
)

var ErrInvalidAlert = errors.New("invalid alert")

var requiredFields = []string{"activity_name", "status"}

// Validate rejects raw events the pipeline must not see. It runs at the
// boundary (API, CLI); the pipeline itself does not re-check status values.
func Validate(raw models.RawAlert) error {
	for _, field := range requiredFields {
		v, ok := raw[field]
		if !ok || v == nil {
			return fmt.Errorf("%w: missing required field: %s", ErrInvalidAlert, field)
		}
	}

	status, err := cast.ToStringE(raw["status"])
	if err != nil {
		return fmt.Errorf("%w: status is not a string", ErrInvalidAlert)
	}
	if !models.Status(strings.ToLower(status)).Valid() {
		return fmt.Errorf("%w: invalid status: %s", ErrInvalidAlert, status)
	}

	return nil
}

// ValidateAll returns one error per invalid event, joined, with its index.
func ValidateAll(raws []models.RawAlert) error {
	var errs []error
	for i, raw := range raws {
		if err := Validate(raw); err != nil {
			errs = append(errs, fmt.Errorf("alert %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
