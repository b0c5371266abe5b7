package client

// our cast of characters, as forwarded to MessageHandlers:
// started
// executing
// progress
// data

type PromptMessageStarted struct {
	PromptID string `json:"prompt_id"`
}

type PromptMessageExecuting struct {
	PromptID string
	NodeID   string
	// Title is the node's _meta title when the workflow carries one, else its class type
	Title string
}

type PromptMessageProgress struct {
	PromptID string
	NodeID   string
	Max      int
	Value    int
}

type PromptMessageData struct {
	PromptID string
	NodeID   string
	Images   []ImageRef
}
