package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/richinsley/comfymcp/client"
	"github.com/richinsley/comfymcp/graphapi"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var generateFlags struct {
	prompt    string
	negative  string
	model     string
	sampler   string
	scheduler string
	seed      int64
	width     int
	height    int
	cfg       int
	steps     int
	out       string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation and save the images",
	RunE:  runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&generateFlags.prompt, "prompt", "p", "", "Prompt text (required)")
	f.StringVar(&generateFlags.negative, "negative", "", "Negative prompt")
	f.StringVar(&generateFlags.model, "model", "", "Checkpoint name")
	f.StringVar(&generateFlags.sampler, "sampler", "", "Sampler name")
	f.StringVar(&generateFlags.scheduler, "scheduler", "", "Scheduler name")
	f.Int64Var(&generateFlags.seed, "seed", 0, "Seed (random when omitted)")
	f.IntVar(&generateFlags.width, "width", 0, "Image width")
	f.IntVar(&generateFlags.height, "height", 0, "Image height")
	f.IntVar(&generateFlags.cfg, "cfg", 0, "Guidance scale")
	f.IntVar(&generateFlags.steps, "steps", 0, "Sampling steps")
	f.StringVarP(&generateFlags.out, "out", "o", ".", "Directory the images are written to")

	_ = generateCmd.MarkFlagRequired("prompt")
}

// generateRequest copies only the flags that were set
func generateRequest(cmd *cobra.Command) *graphapi.GenerationRequest {
	req := &graphapi.GenerationRequest{Prompt: generateFlags.prompt}
	f := cmd.Flags()
	if f.Changed("negative") {
		req.NegativePrompt = &generateFlags.negative
	}
	if f.Changed("model") {
		req.Model = &generateFlags.model
	}
	if f.Changed("sampler") {
		req.Sampler = &generateFlags.sampler
	}
	if f.Changed("scheduler") {
		req.Scheduler = &generateFlags.scheduler
	}
	if f.Changed("seed") {
		req.Seed = &generateFlags.seed
	}
	if f.Changed("width") {
		req.Width = &generateFlags.width
	}
	if f.Changed("height") {
		req.Height = &generateFlags.height
	}
	if f.Changed("cfg") {
		req.Cfg = &generateFlags.cfg
	}
	if f.Changed("steps") {
		req.Steps = &generateFlags.steps
	}
	return req
}

// progressHandlers draws one progress bar per executing node
func progressHandlers() *client.MessageHandlers {
	var bar *progressbar.ProgressBar
	var currentNodeTitle string

	return client.DefaultMessageHandlers().
		WithExecutingHandler(func(msg *client.PromptMessageExecuting) {
			if bar != nil {
				bar.Finish()
			}
			bar = nil
			currentNodeTitle = msg.Title
			slog.Debug("executing", "node", msg.NodeID, "title", msg.Title)
		}).
		WithProgressHandler(func(msg *client.PromptMessageProgress) {
			if bar == nil {
				bar = progressbar.Default(int64(msg.Max), currentNodeTitle)
			}
			bar.Set(msg.Value)
		}).
		WithCompleteHandler(func() {
			if bar != nil {
				bar.Finish()
			}
		})
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	t, _, err := newTool(ctx)
	if err != nil {
		return err
	}

	res, err := t.Generate(ctx, generateRequest(cmd), progressHandlers())
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	if err := os.MkdirAll(generateFlags.out, 0o755); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, img := range res.Images {
		path := filepath.Join(generateFlags.out, filepath.Base(img.Ref.Filename))
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		fmt.Fprintf(out, "%s\t%s\n", path, res.URLs[i])
	}
	for _, uri := range res.Stored {
		fmt.Fprintf(out, "stored\t%s\n", uri)
	}
	return nil
}
