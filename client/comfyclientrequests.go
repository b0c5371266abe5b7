package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/richinsley/comfymcp/graphapi"
	"github.com/richinsley/comfymcp/metrics"
)

/*
@routes.get("/view")
@routes.get("/system_stats")
@routes.get("/prompt")
@routes.get("/object_info")
@routes.get("/history/{prompt_id}")

@routes.post("/prompt")
@routes.post("/interrupt")
@routes.post("/queue")
@routes.post("/upload/image")
*/

// ErrHistoryNotFound means the history has no entry for a prompt id
var ErrHistoryNotFound = errors.New("prompt not found in history")

func (c *ComfyClient) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.endpoint("/system_stats", nil), nil)
	if err != nil {
		return nil, err
	}

	retv := &SystemStats{}
	if err := json.Unmarshal(body, retv); err != nil {
		return nil, fmt.Errorf("decode system stats: %w", err)
	}
	return retv, nil
}

func (c *ComfyClient) GetQueueExecutionInfo(ctx context.Context) (*QueueExecInfo, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.endpoint("/prompt", nil), nil)
	if err != nil {
		return nil, err
	}

	queue_exec := &QueueExecInfo{}
	if err := json.Unmarshal(body, queue_exec); err != nil {
		return nil, fmt.Errorf("decode queue info: %w", err)
	}
	return queue_exec, nil
}

// GetObjectInfos retrieves the node type catalog of the backend
func (c *ComfyClient) GetObjectInfos(ctx context.Context) (*graphapi.NodeObjects, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.endpoint("/object_info", nil), nil)
	if err != nil {
		return nil, err
	}

	result, err := graphapi.NewNodeObjectsFromJson(body)
	if err != nil {
		return nil, fmt.Errorf("decode object info: %w", err)
	}
	return result, nil
}

// QueuePrompt submits a bound workflow under the given client id
func (c *ComfyClient) QueuePrompt(ctx context.Context, wf *graphapi.Workflow, clientID string) (*QueueItem, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("queue prompt: %w", err)
		}
	}

	data, err := json.Marshal(graphapi.NewPrompt(clientID, wf))
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}

	body, _, err := c.do(ctx, http.MethodPost, c.endpoint("/prompt", nil), bytes.NewReader(data))
	if err != nil {
		var herr *HTTPError
		if errors.As(err, &herr) {
			perror := &PromptErrorMessage{}
			if json.Unmarshal([]byte(herr.Body), perror) == nil && perror.Error.Message != "" {
				slog.Error("prompt rejected", "type", perror.Error.Type, "details", perror.Error.Details, "node_errors", string(perror.NodeErrors))
				return nil, fmt.Errorf("prompt rejected: %s: %w", perror.Error.Message, err)
			}
		}
		return nil, err
	}

	item := &QueueItem{ClientID: clientID}
	if err := json.Unmarshal(body, item); err != nil {
		return nil, fmt.Errorf("decode queue response: %w", err)
	}
	if item.PromptID == "" {
		return nil, errors.New("queue response carries no prompt_id")
	}
	return item, nil
}

// GetHistory returns every image reference produced by a finished prompt, in
// the order the history lists output nodes and their images. The backend
// announces completion on the event channel before it stores the history
// entry, so a read issued straight after the announcement can miss it and
// yield ErrHistoryNotFound. Callers may retry that error.
func (c *ComfyClient) GetHistory(ctx context.Context, promptID string) ([]ImageRef, error) {
	body, _, err := c.do(ctx, http.MethodGet, c.endpoint("/history/"+url.PathEscape(promptID), nil), nil)
	if err != nil {
		return nil, err
	}

	history := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	entry, ok := history[promptID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHistoryNotFound, promptID)
	}

	var item struct {
		Outputs json.RawMessage `json:"outputs"`
	}
	if err := json.Unmarshal(entry, &item); err != nil {
		return nil, fmt.Errorf("decode history entry: %w", err)
	}

	retv := make([]ImageRef, 0)
	if len(item.Outputs) == 0 || string(item.Outputs) == "null" {
		return retv, nil
	}
	err = graphapi.DecodeOrderedObject(item.Outputs, func(nodeID string, raw json.RawMessage) error {
		var out struct {
			Images json.RawMessage `json:"images"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			slog.Warn("skipping undecodable output", "node", nodeID, "error", err)
			return nil
		}
		retv = append(retv, parseImageRefs(nodeID, out.Images)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode history outputs: %w", err)
	}
	return retv, nil
}

// ViewURL builds the retrieval url of an image reference
func (c *ComfyClient) ViewURL(ref ImageRef) string {
	params := url.Values{}
	params.Add("filename", ref.Filename)
	params.Add("subfolder", ref.Subfolder)
	params.Add("type", ref.Type)
	return c.endpoint("/view", params)
}

// GetImage downloads the bytes of an image reference
func (c *ComfyClient) GetImage(ctx context.Context, ref ImageRef) (*Image, error) {
	body, header, err := c.do(ctx, http.MethodGet, c.ViewURL(ref), nil)
	if err != nil {
		return nil, err
	}
	metrics.ImageBytesTotal.Add(float64(len(body)))

	ct := header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(body)
	}
	return &Image{Ref: ref, Data: body, ContentType: ct}, nil
}

// Interrupt asks the backend to stop promptID if it is the job currently
// running. An empty promptID stops whatever job is running.
func (c *ComfyClient) Interrupt(ctx context.Context, promptID string) error {
	payload := map[string]string{}
	if promptID != "" {
		payload["prompt_id"] = promptID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, _, err = c.do(ctx, http.MethodPost, c.endpoint("/interrupt", nil), bytes.NewReader(data))
	return err
}

// DeleteQueued removes prompts that are still waiting in the queue. Prompts
// already running are left alone.
func (c *ComfyClient) DeleteQueued(ctx context.Context, promptIDs ...string) error {
	data, err := json.Marshal(map[string][]string{"delete": promptIDs})
	if err != nil {
		return err
	}
	_, _, err = c.do(ctx, http.MethodPost, c.endpoint("/queue", nil), bytes.NewReader(data))
	return err
}
