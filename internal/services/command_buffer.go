package services

import (
	"context"

	"github.com/fieldops/backend/internal/infrastructure/buffer"
)

// StoreBuffer adapts the Bolt command store to the dispatcher's buffer port.
type StoreBuffer struct {
	store *buffer.Store
}

// NewStoreBuffer wraps a Bolt store.
func NewStoreBuffer(store *buffer.Store) *StoreBuffer {
	return &StoreBuffer{store: store}
}

// BufferCommand persists one idempotent command for later replay.
func (b *StoreBuffer) BufferCommand(_ context.Context, jobID, name string, args []byte) error {
	return b.store.Enqueue(buffer.Command{
		JobID: jobID,
		Name:  name,
		Args:  append([]byte(nil), args...),
	})
}
