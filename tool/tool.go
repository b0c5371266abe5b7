// Package tool exposes a ComfyUI workflow as an agent callable image generation tool.
package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/richinsley/comfymcp/client"
	"github.com/richinsley/comfymcp/graphapi"
	"github.com/richinsley/comfymcp/metrics"
	"github.com/richinsley/comfymcp/storage"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWidth  = 512
	DefaultHeight = 512
	DefaultCfg    = 4

	// images are fetched with at most this many concurrent requests per call
	maxConcurrentFetches = 4
)

// ErrNotConfigured is returned by Generate when the tool runs without a workflow
var ErrNotConfigured = errors.New("image tool has no workflow configured")

// Backend is the part of the ComfyUI client the tool depends on
type Backend interface {
	Execute(ctx context.Context, wf *graphapi.Workflow, handlers *client.MessageHandlers) (*client.JobResult, error)
	GetImage(ctx context.Context, ref client.ImageRef) (*client.Image, error)
	GetObjectInfos(ctx context.Context) (*graphapi.NodeObjects, error)
	ViewURL(ref client.ImageRef) string
}

// Options configures New
type Options struct {
	// Workflow is the template every request is bound into. It may be nil only in override mode.
	Workflow *graphapi.Workflow
	NodeMap  graphapi.NodeMap
	Resolver graphapi.ResolverOptions
	// Uploader, when set, also stores every generated image
	Uploader storage.Uploader
	// BindOptions are passed through to graphapi.Bind
	BindOptions []graphapi.BindOption
}

// ImageTool generates images from one workflow template. The template and
// its bindings are read only after New returns, so an ImageTool serves
// concurrent calls.
type ImageTool struct {
	backend  Backend
	template *graphapi.Workflow
	bindings *graphapi.Bindings
	override bool
	uploader storage.Uploader
	bindOpts []graphapi.BindOption
}

// Result is the outcome of one Generate call
type Result struct {
	PromptID string
	Images   []*client.Image
	// URLs are the backend /view urls, in the same order as Images
	URLs []string
	// Stored holds the uploader URIs of the images that were persisted
	Stored []string
}

// New resolves the workflow roles. A workflow whose positive prompt node
// cannot be located is rejected with a *graphapi.ConfigError.
func New(backend Backend, opts Options) (*ImageTool, error) {
	if backend == nil {
		return nil, &graphapi.ConfigError{Field: "backend", Err: errors.New("backend is required")}
	}
	bindings, err := graphapi.Resolve(opts.Workflow, opts.NodeMap, opts.Resolver)
	if err != nil {
		return nil, err
	}

	for _, r := range graphapi.AllRoles {
		v := 0.0
		if bindings.Has(r) {
			v = 1
		}
		metrics.RolesResolved.WithLabelValues(string(r)).Set(v)
	}
	if !opts.Resolver.Override {
		slog.Info("workflow roles resolved", "roles", bindings.Table(), "seed_input", bindings.SeedInput())
	}

	return &ImageTool{
		backend:  backend,
		template: opts.Workflow,
		bindings: bindings,
		override: opts.Resolver.Override || opts.Workflow == nil,
		uploader: opts.Uploader,
		bindOpts: opts.BindOptions,
	}, nil
}

// Bindings returns the resolved role table
func (t *ImageTool) Bindings() *graphapi.Bindings {
	return t.bindings
}

// withDefaults fills width, height and cfg when their role exists and the request leaves them out
func (t *ImageTool) withDefaults(req graphapi.GenerationRequest) graphapi.GenerationRequest {
	if req.Width == nil && t.bindings.Has(graphapi.RoleWidth) {
		w := DefaultWidth
		req.Width = &w
	}
	if req.Height == nil && t.bindings.Has(graphapi.RoleHeight) {
		h := DefaultHeight
		req.Height = &h
	}
	if req.Cfg == nil && t.bindings.Has(graphapi.RoleCfg) {
		c := DefaultCfg
		req.Cfg = &c
	}
	return req
}

// Generate binds the request into a private copy of the template, runs it and
// retrieves every output image
func (t *ImageTool) Generate(ctx context.Context, req *graphapi.GenerationRequest, handlers *client.MessageHandlers) (*Result, error) {
	if t.override || t.template == nil {
		return nil, ErrNotConfigured
	}
	if req == nil {
		return nil, graphapi.ErrEmptyPrompt
	}

	r := t.withDefaults(*req)
	wf, err := graphapi.Bind(t.template, t.bindings, &r, t.bindOpts...)
	if err != nil {
		return nil, fmt.Errorf("bind request: %w", err)
	}

	job, err := t.backend.Execute(ctx, wf, handlers)
	if err != nil {
		return nil, err
	}

	images, err := t.fetchImages(ctx, job.Images)
	if err != nil {
		return nil, err
	}

	res := &Result{
		PromptID: job.PromptID,
		Images:   images,
		URLs:     make([]string, len(job.Images)),
	}
	for i, ref := range job.Images {
		res.URLs[i] = t.backend.ViewURL(ref)
	}
	res.Stored = t.store(ctx, images)
	return res, nil
}

// fetchImages downloads all images concurrently, keeping their order.
// No partial result is returned.
func (t *ImageTool) fetchImages(ctx context.Context, refs []client.ImageRef) ([]*client.Image, error) {
	images := make([]*client.Image, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, ref := range refs {
		g.Go(func() error {
			img, err := t.backend.GetImage(gctx, ref)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", ref.Filename, err)
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// store hands images to the uploader. Failures are logged only.
func (t *ImageTool) store(ctx context.Context, images []*client.Image) []string {
	if t.uploader == nil {
		return nil
	}
	stored := make([]string, 0, len(images))
	for _, img := range images {
		uri, err := t.uploader.Upload(ctx, path.Base(img.Ref.Filename), img.Data, img.ContentType)
		if err != nil {
			metrics.UploadsTotal.WithLabelValues("error").Inc()
			slog.Warn("image upload failed", "filename", img.Ref.Filename, "error", err)
			continue
		}
		metrics.UploadsTotal.WithLabelValues("success").Inc()
		slog.Info("image stored", "filename", img.Ref.Filename, "uri", uri)
		stored = append(stored, uri)
	}
	return stored
}
