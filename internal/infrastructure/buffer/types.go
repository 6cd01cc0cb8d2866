package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Command is an idempotent field command held back while primary storage is
// unreachable. Only replay-safe commands (checklist toggles, quality
// records, step completions) are ever buffered.
type Command struct {
	ID       string          `json:"id"`
	JobID    string          `json:"job_id"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args"`
	Retries  int             `json:"retries"`
	QueuedAt time.Time       `json:"queued_at"`

	bucketKey []byte
}

func (c *Command) normalize() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.QueuedAt.IsZero() {
		c.QueuedAt = time.Now()
	}
}
