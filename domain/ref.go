package domain

import (
	"encoding/json"
	"fmt"
)

// Ref points at an external entity (employee, apartment, service, contract).
// On the wire it is either a bare id string or an object carrying "_id" plus
// a display snapshot. The engine stores only the id; snapshots are attached
// at the query boundary and never influence lifecycle decisions.
type Ref struct {
	ID       string            `json:"_id,omitempty"`
	Snapshot map[string]string `json:"snapshot,omitempty"`
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.ID == ""
}

// Normalized strips any resolved snapshot, leaving the bare id.
func (r Ref) Normalized() Ref {
	return Ref{ID: r.ID}
}

// WithSnapshot returns a copy carrying display fields for read responses.
func (r Ref) WithSnapshot(snapshot map[string]string) Ref {
	return Ref{ID: r.ID, Snapshot: snapshot}
}

// UnmarshalJSON accepts either "abc123" or {"_id":"abc123", ...}.
func (r *Ref) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*r = Ref{}
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref{ID: id}
		return nil
	}
	var obj struct {
		ID       string            `json:"_id"`
		Snapshot map[string]string `json:"snapshot"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	*r = Ref{ID: obj.ID, Snapshot: obj.Snapshot}
	return nil
}

// MarshalJSON emits the bare id unless a snapshot has been attached.
func (r Ref) MarshalJSON() ([]byte, error) {
	if len(r.Snapshot) == 0 {
		return json.Marshal(r.ID)
	}
	return json.Marshal(struct {
		ID       string            `json:"_id"`
		Snapshot map[string]string `json:"snapshot"`
	}{ID: r.ID, Snapshot: r.Snapshot})
}
