package interfaces

import (
	"context"

	"github.com/m-mizutani/twinmind/pkg/model"
)

// MemoryRelay performs store and search operations against a memory service
type MemoryRelay interface {
	// Execute runs one operation and returns its normalized result. It never
	// returns nil.
	Execute(ctx context.Context, op model.Operation, userID, text string) *model.Result
}
