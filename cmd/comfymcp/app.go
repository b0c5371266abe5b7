package main

import (
	"context"
	"fmt"

	"github.com/richinsley/comfymcp/client"
	"github.com/richinsley/comfymcp/storage"
	"github.com/richinsley/comfymcp/tool"
)

func newClient() (*client.ComfyClient, error) {
	c, err := client.NewComfyClient(cfg.URL, cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

// newTool validates the configuration and resolves the workflow roles
func newTool(ctx context.Context) (*tool.ImageTool, *client.ComfyClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	c, err := newClient()
	if err != nil {
		return nil, nil, err
	}

	wf, err := cfg.LoadWorkflow()
	if err != nil {
		return nil, nil, err
	}
	nodeMap, err := cfg.LoadNodeMap()
	if err != nil {
		return nil, nil, err
	}

	resolver := cfg.Resolver
	resolver.Override = cfg.Override
	opts := tool.Options{
		Workflow: wf,
		NodeMap:  nodeMap,
		Resolver: resolver,
	}
	if cfg.S3.Enabled() {
		up, err := storage.NewS3Uploader(ctx, &cfg.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("create s3 uploader: %w", err)
		}
		opts.Uploader = up
	} else if cfg.CopyToInput {
		opts.Uploader = c
	}

	t, err := tool.New(c, opts)
	if err != nil {
		return nil, nil, err
	}
	return t, c, nil
}
