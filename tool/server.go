package tool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/richinsley/comfymcp/client"
	"github.com/richinsley/comfymcp/metrics"
)

const (
	GenerateToolName = "generate_image"
	InfoToolName     = "comfyui_info"

	// FailureText is the only thing a caller learns about a failed generation
	FailureText = "Image generation request failed."

	advisoryText = "The generated images are attached and are shown to the user. Do not describe or repeat them unless asked."
)

// NewServer creates an MCP server with the image tools registered
func NewServer(t *ImageTool, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "comfymcp", Version: version}, nil)
	t.Register(server)
	return server
}

// Register adds the generate and info tools to server
func (t *ImageTool) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        GenerateToolName,
		Description: "Generate images from a text prompt with ComfyUI.",
		InputSchema: t.RequestSchema(),
	}, t.handleGenerate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        InfoToolName,
		Description: "List the models, samplers or schedulers the ComfyUI server accepts.",
		InputSchema: InfoSchema(),
	}, t.handleInfo)
}

func failure() *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: FailureText}},
	}
}

func (t *ImageTool) handleGenerate(ctx context.Context, _ *mcp.CallToolRequest, input GenerateInput) (*mcp.CallToolResult, interface{}, error) {
	res, err := t.Generate(ctx, input.Request(), client.DefaultMessageHandlers())
	if err != nil {
		metrics.ToolCallsTotal.WithLabelValues(GenerateToolName, "error").Inc()
		slog.Error("image generation failed", "error", err)
		return failure(), nil, nil
	}
	metrics.ToolCallsTotal.WithLabelValues(GenerateToolName, "success").Inc()

	content := make([]mcp.Content, 0, len(res.Images)+1)
	content = append(content, &mcp.TextContent{Text: advisoryText})
	for _, img := range res.Images {
		content = append(content, &mcp.ImageContent{Data: img.Data, MIMEType: img.ContentType})
	}
	return &mcp.CallToolResult{Content: content}, nil, nil
}

func (t *ImageTool) handleInfo(ctx context.Context, _ *mcp.CallToolRequest, input InfoInput) (*mcp.CallToolResult, interface{}, error) {
	if _, ok := infoLookups[input.InfoType]; !ok {
		metrics.ToolCallsTotal.WithLabelValues(InfoToolName, "error").Inc()
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("unknown info_type %q", input.InfoType)}},
		}, nil, nil
	}

	choices := t.QueryChoices(ctx, input.InfoType)
	metrics.ToolCallsTotal.WithLabelValues(InfoToolName, "success").Inc()

	text := "No " + string(input.InfoType) + " available."
	if len(choices) > 0 {
		text = strings.Join(choices, "\n")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}
