package notify

import (
	"go.uber.org/zap"

	"github.com/hookpace/hookpace/internal/domain"
)

// Renderer is the human-visible surface for progress state. The production
// implementation writes structured log lines; a UI collaborator can swap in
// its own widget-backed implementation.
type Renderer interface {
	Render(ev domain.ProgressEvent)
	Clear(destinationID string)
}

// LogRenderer renders progress state as zap log lines.
type LogRenderer struct {
	logger *zap.Logger
}

func NewLogRenderer(logger *zap.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) Render(ev domain.ProgressEvent) {
	r.logger.Info("deliveries queued",
		zap.String("destination_id", ev.DestinationID),
		zap.String("destination_name", ev.DestinationName),
		zap.Int("position", ev.Position),
		zap.Int("estimated_seconds", ev.EstimatedSeconds),
	)
}

func (r *LogRenderer) Clear(destinationID string) {
	r.logger.Debug("progress cleared",
		zap.String("destination_id", destinationID),
	)
}

// compile-time check that LogRenderer implements Renderer
var _ Renderer = (*LogRenderer)(nil)
