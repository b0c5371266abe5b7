package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/richinsley/comfymcp/graphapi"
	"github.com/richinsley/comfymcp/metrics"
)

// ErrCompletionTimeout is returned when a job does not finish within the completion timeout
var ErrCompletionTimeout = errors.New("timed out waiting for prompt completion")

// MessageHandlers defines optional callback functions for the progress frames of a job.
// All handlers are optional - only provide handlers for the messages you care about.
type MessageHandlers struct {
	// OnStarted is called when execution begins
	OnStarted func(*PromptMessageStarted)

	// OnExecuting is called when a node starts executing
	OnExecuting func(*PromptMessageExecuting)

	// OnProgress is called with progress updates during node execution
	OnProgress func(*PromptMessageProgress)

	// OnData is called when an output node reports its images
	OnData func(*PromptMessageData)

	// OnComplete is called after the wait ends, regardless of success or failure
	OnComplete func()
}

// DefaultMessageHandlers returns MessageHandlers that log started and executing messages
func DefaultMessageHandlers() *MessageHandlers {
	return &MessageHandlers{
		OnStarted: func(msg *PromptMessageStarted) {
			slog.Info("Execution started", "prompt_id", msg.PromptID)
		},
		OnExecuting: func(msg *PromptMessageExecuting) {
			slog.Debug("Executing node", "prompt_id", msg.PromptID, "node_id", msg.NodeID, "title", msg.Title)
		},
	}
}

// WithStartedHandler adds a started handler (builder pattern)
func (h *MessageHandlers) WithStartedHandler(fn func(*PromptMessageStarted)) *MessageHandlers {
	h.OnStarted = fn
	return h
}

// WithExecutingHandler adds an executing handler (builder pattern)
func (h *MessageHandlers) WithExecutingHandler(fn func(*PromptMessageExecuting)) *MessageHandlers {
	h.OnExecuting = fn
	return h
}

// WithProgressHandler adds a progress handler (builder pattern)
func (h *MessageHandlers) WithProgressHandler(fn func(*PromptMessageProgress)) *MessageHandlers {
	h.OnProgress = fn
	return h
}

// WithDataHandler adds a data handler (builder pattern)
func (h *MessageHandlers) WithDataHandler(fn func(*PromptMessageData)) *MessageHandlers {
	h.OnData = fn
	return h
}

// WithCompleteHandler adds a complete handler (builder pattern)
func (h *MessageHandlers) WithCompleteHandler(fn func()) *MessageHandlers {
	h.OnComplete = fn
	return h
}

// AwaitCompletion consumes frames until the backend reports that promptID
// finished. Binary frames, undecodable frames and frames of other prompts are
// skipped. A failed or interrupted prompt yields an *ExecutionError. The wait
// ends early when ctx is done or the channel closes. wf is only used to give
// executing nodes a title and may be nil.
func (w *WebSocketConnection) AwaitCompletion(ctx context.Context, promptID string, wf *graphapi.Workflow, handlers *MessageHandlers) error {
	if handlers == nil {
		handlers = &MessageHandlers{}
	}
	if handlers.OnComplete != nil {
		defer handlers.OnComplete()
	}

	for {
		var f Frame
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok = <-w.frames:
		}
		if !ok {
			if err := w.readErr; err != nil {
				return fmt.Errorf("%w: %v", ErrEventChannelClosed, err)
			}
			return ErrEventChannelClosed
		}

		if f.Binary {
			// preview images
			metrics.FramesTotal.WithLabelValues("binary").Inc()
			continue
		}
		message := &WSStatusMessage{}
		if err := json.Unmarshal(f.Data, message); err != nil {
			metrics.FramesTotal.WithLabelValues("invalid").Inc()
			slog.Debug("skipping undecodable frame", "error", err)
			continue
		}
		metrics.FramesTotal.WithLabelValues(frameLabel(message.Type)).Inc()
		if message.PromptID != promptID {
			continue
		}

		switch message.Type {
		case "execution_start":
			if handlers.OnStarted != nil {
				handlers.OnStarted(&PromptMessageStarted{PromptID: promptID})
			}
		case "executing":
			s := message.Data.(*WSMessageDataExecuting)
			if s.Node == nil {
				// final node was processed
				return nil
			}
			if handlers.OnExecuting != nil {
				handlers.OnExecuting(&PromptMessageExecuting{
					PromptID: promptID,
					NodeID:   *s.Node,
					Title:    nodeTitle(wf, *s.Node),
				})
			}
		case "progress":
			s := message.Data.(*WSMessageDataProgress)
			if handlers.OnProgress != nil {
				handlers.OnProgress(&PromptMessageProgress{
					PromptID: promptID,
					NodeID:   s.Node,
					Max:      s.Max,
					Value:    s.Value,
				})
			}
		case "executed":
			s := message.Data.(*WSMessageDataExecuted)
			if handlers.OnData != nil {
				handlers.OnData(&PromptMessageData{
					PromptID: promptID,
					NodeID:   s.Node,
					Images:   s.Images(),
				})
			}
		case "execution_success":
			return nil
		case "execution_interrupted":
			s := message.Data.(*WSMessageExecutionInterrupted)
			return &ExecutionError{
				PromptID:    promptID,
				NodeID:      s.Node,
				NodeType:    s.NodeType,
				Interrupted: true,
			}
		case "execution_error":
			s := message.Data.(*WSMessageExecutionError)
			return &ExecutionError{
				PromptID:         promptID,
				NodeID:           s.Node,
				NodeType:         s.NodeType,
				ExceptionType:    s.ExceptionType,
				ExceptionMessage: s.ExceptionMessage,
				Traceback:        s.Traceback,
			}
		}
	}
}

// nodeTitle looks up a display title; compound ids like "57:8" use the outer node
func nodeTitle(wf *graphapi.Workflow, id string) string {
	if wf == nil {
		return id
	}
	n, ok := wf.Node(id)
	if !ok {
		outer, _, found := strings.Cut(id, ":")
		if !found {
			return id
		}
		if n, ok = wf.Node(outer); !ok {
			return id
		}
	}
	return n.Title()
}

func frameLabel(t string) string {
	switch t {
	case "status", "execution_start", "execution_cached", "executing", "progress", "executed",
		"execution_success", "execution_interrupted", "execution_error":
		return t
	}
	return "other"
}

// Execute runs a bound workflow to completion: it opens a fresh event channel,
// queues the prompt, waits for it to finish and reads the image list from the
// history. The event channel is always closed before Execute returns. When the
// completion timeout expires the prompt is removed from the queue and
// interrupted. The history is read once; see GetHistory for the case where
// it is not yet stored.
func (c *ComfyClient) Execute(ctx context.Context, wf *graphapi.Workflow, handlers *MessageHandlers) (*JobResult, error) {
	clientID := uuid.New().String()

	// the channel must be listening before the prompt is queued so no frame is missed
	ws, err := c.OpenEventChannel(ctx, clientID)
	if err != nil {
		metrics.JobsTotal.WithLabelValues("transport").Inc()
		return nil, err
	}
	defer ws.Close()

	item, err := c.QueuePrompt(ctx, wf, clientID)
	if err != nil {
		metrics.JobsTotal.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("failed to queue prompt: %w", err)
	}
	slog.Info("prompt queued", "prompt_id", item.PromptID, "client_id", clientID, "number", item.Number)

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, c.completionTimeout)
	err = ws.AwaitCompletion(waitCtx, item.PromptID, wf, handlers)
	cancel()
	if err != nil {
		var eerr *ExecutionError
		switch {
		case errors.As(err, &eerr) && eerr.Interrupted:
			metrics.JobsTotal.WithLabelValues("interrupted").Inc()
		case errors.As(err, &eerr):
			metrics.JobsTotal.WithLabelValues("error").Inc()
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			metrics.JobsTotal.WithLabelValues("timeout").Inc()
			c.interruptAfterTimeout(ctx, item.PromptID)
			return nil, fmt.Errorf("%w: prompt %s after %s", ErrCompletionTimeout, item.PromptID, c.completionTimeout)
		default:
			metrics.JobsTotal.WithLabelValues("transport").Inc()
		}
		return nil, err
	}
	elapsed := time.Since(start)
	metrics.JobDuration.Observe(elapsed.Seconds())

	images, err := c.GetHistory(ctx, item.PromptID)
	if err != nil {
		metrics.JobsTotal.WithLabelValues("transport").Inc()
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	metrics.JobsTotal.WithLabelValues("success").Inc()
	slog.Info("prompt finished", "prompt_id", item.PromptID, "images", len(images), "duration", elapsed)

	return &JobResult{
		PromptID: item.PromptID,
		ClientID: clientID,
		Images:   images,
		Duration: elapsed,
	}, nil
}

// interruptAfterTimeout drops promptID from the queue if it never started and
// interrupts it if it is running. Jobs of other clients are not touched.
func (c *ComfyClient) interruptAfterTimeout(ctx context.Context, promptID string) {
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.openTimeout)
	defer cancel()
	if err := c.DeleteQueued(ictx, promptID); err != nil {
		slog.Warn("queue delete after timeout failed", "prompt_id", promptID, "error", err)
	}
	if err := c.Interrupt(ictx, promptID); err != nil {
		slog.Warn("interrupt after timeout failed", "prompt_id", promptID, "error", err)
		return
	}
	slog.Warn("prompt interrupted after completion timeout", "prompt_id", promptID)
}
