// Package metrics provides Prometheus metrics for the image generation tool.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts submitted jobs by outcome.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comfymcp",
			Subsystem: "client",
			Name:      "jobs_total",
			Help:      "Total number of jobs submitted to ComfyUI",
		},
		[]string{"result"}, // "success", "error", "interrupted", "timeout", "transport"
	)

	// JobDuration tracks time from submission to completion.
	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "comfymcp",
			Subsystem: "client",
			Name:      "job_duration_seconds",
			Help:      "Job duration in seconds, submission to completion",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		},
	)

	// FramesTotal counts event channel frames by type.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comfymcp",
			Subsystem: "client",
			Name:      "event_frames_total",
			Help:      "Total number of event channel frames received",
		},
		[]string{"type"},
	)

	// EventChannelsActive tracks open event channel connections.
	EventChannelsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "comfymcp",
			Subsystem: "client",
			Name:      "event_channels_active",
			Help:      "Number of open event channel connections",
		},
	)

	// ImageBytesTotal counts image bytes retrieved from /view.
	ImageBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "comfymcp",
			Subsystem: "client",
			Name:      "image_bytes_total",
			Help:      "Total number of image bytes retrieved",
		},
	)

	// ToolCallsTotal counts tool invocations by tool and outcome.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comfymcp",
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"tool", "result"},
	)

	// RolesResolved reports whether each workflow role resolved (1) or not (0).
	RolesResolved = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "comfymcp",
			Subsystem: "tool",
			Name:      "role_resolved",
			Help:      "Whether a workflow role resolved at startup",
		},
		[]string{"role"},
	)

	// UploadsTotal counts image uploads to the configured store by outcome.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comfymcp",
			Subsystem: "storage",
			Name:      "uploads_total",
			Help:      "Total number of image uploads",
		},
		[]string{"result"},
	)
)
