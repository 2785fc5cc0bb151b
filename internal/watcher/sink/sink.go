// Package sink delivers poll loop output to its consumers.
package sink

import (
	"context"

	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

// Sink consumes batches and status events.
type Sink interface {
	Name() string
	PublishBatch(ctx context.Context, batch models.Batch) error
	PublishStatus(ctx context.Context, event models.StatusEvent) error
}

// Emitter is the poll loop's view of its outputs. Emit calls never block.
type Emitter interface {
	EmitBatch(batch models.Batch)
	EmitStatus(event models.StatusEvent)
}
