package client

import "encoding/json"

// QueueItem is the backend's acknowledgement of a queued prompt
type QueueItem struct {
	PromptID   string          `json:"prompt_id"`
	Number     int             `json:"number"`
	NodeErrors json.RawMessage `json:"node_errors"`
	ClientID   string          `json:"-"`
}
