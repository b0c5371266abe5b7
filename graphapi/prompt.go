package graphapi

// Prompt is the data that is enqueued to an instance of ComfyUI
type Prompt struct {
	ClientID string    `json:"client_id"`
	Nodes    *Workflow `json:"prompt"`
}

// NewPrompt wraps a bound workflow for submission under the given client id
func NewPrompt(clientID string, wf *Workflow) *Prompt {
	return &Prompt{
		ClientID: clientID,
		Nodes:    wf,
	}
}
