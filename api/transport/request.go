package transport

import "encoding/json"

// CommandRequest is the body of POST /jobs/{id}/commands/{name}.
// Args are decoded by the command's own handler.
type CommandRequest struct {
	Args json.RawMessage `json:"args,omitempty"`
}

// ListMeta echoes pagination back to the caller.
type ListMeta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}
