package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// ImageRef points at one image output held by the backend
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
	NodeID    string `json:"-"` // the output node that produced it
}

// Image is a retrieved image payload
type Image struct {
	Ref         ImageRef
	Data        []byte
	ContentType string
}

// JobResult describes one finished job
type JobResult struct {
	PromptID string
	ClientID string
	Images   []ImageRef
	Duration time.Duration
}

type SystemStats struct {
	System  System `json:"system"`
	Devices []GPU  `json:"devices"`
}

type System struct {
	OS             string `json:"os"`
	PythonVersion  string `json:"python_version"`
	EmbeddedPython bool   `json:"embedded_python"`
	ComfyUIVersion string `json:"comfyui_version"`
}

type GPU struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	Index            int    `json:"index"`
	VRAM_Total       int64  `json:"vram_total"`
	VRAM_Free        int64  `json:"vram_free"`
	Torch_VRAM_Total int64  `json:"torch_vram_total"`
	Torch_VRAM_Free  int64  `json:"torch_vram_free"`
}

type QueueExecInfo struct {
	ExecInfo struct {
		QueueRemaining int `json:"queue_remaining"`
	} `json:"exec_info"`
}

type PromptError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details"`
	ExtraInfo map[string]interface{} `json:"extra_info"`
}

// PromptErrorMessage is the body of a rejected POST /prompt, e.g.
//
//	{"error": {"type": "prompt_no_outputs", "message": "Prompt has no outputs", ...}, "node_errors": {}}
type PromptErrorMessage struct {
	Error      PromptError     `json:"error"`
	NodeErrors json.RawMessage `json:"node_errors"`
}

// ExecutionError is reported when the backend fails or interrupts a job
type ExecutionError struct {
	PromptID         string
	NodeID           string
	NodeType         string
	ExceptionType    string
	ExceptionMessage string
	Traceback        []string
	Interrupted      bool
}

func (e *ExecutionError) Error() string {
	if e.Interrupted {
		return fmt.Sprintf("prompt %s interrupted at node %s (%s)", e.PromptID, e.NodeID, e.NodeType)
	}
	return fmt.Sprintf("prompt %s failed at node %s (%s): %s: %s", e.PromptID, e.NodeID, e.NodeType, e.ExceptionType, e.ExceptionMessage)
}

// parseImageRefs reads an output "images" list. Entries that are not image
// references (text outputs, animated flags) are skipped.
func parseImageRefs(nodeID string, raw json.RawMessage) []ImageRef {
	retv := make([]ImageRef, 0)
	if len(raw) == 0 {
		return retv
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		slog.Warn("output images is not a list", "node", nodeID, "error", err)
		return retv
	}
	for _, e := range entries {
		var ref ImageRef
		if err := json.Unmarshal(e, &ref); err != nil || ref.Filename == "" {
			slog.Warn("skipping output entry of unknown type", "node", nodeID, "entry", string(e))
			continue
		}
		ref.NodeID = nodeID
		retv = append(retv, ref)
	}
	return retv
}
