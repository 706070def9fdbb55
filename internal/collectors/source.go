package collectors

import (
	"context"

	"github.com/emirozbir/micro-triage/internal/models"
)

// Source produces raw health-check events for the pipeline.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]models.RawAlert, error)
}
