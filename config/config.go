// Package config provides configuration loading for the image generation tool.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/richinsley/comfymcp/client"
	"github.com/richinsley/comfymcp/graphapi"
	"github.com/richinsley/comfymcp/storage"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the tool.
type Config struct {
	// Backend
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`

	// Workflow is the API format workflow JSON text; WorkflowFile may point at a
	// .json file or a generated .png instead
	Workflow     string `yaml:"workflow"`
	WorkflowFile string `yaml:"workflow_file"`

	// NodeMap entries win over discovery. NodeMapText and NodeMapFile hold JSON
	// and are merged over NodeMap.
	NodeMap     graphapi.NodeMap `yaml:"node_map"`
	NodeMapText string           `yaml:"node_map_json"`
	NodeMapFile string           `yaml:"node_map_file"`

	// Override skips node resolution, used before a workflow is available
	Override bool                     `yaml:"override"`
	Resolver graphapi.ResolverOptions `yaml:"resolver"`

	// Timeouts and throttling
	OpenTimeout       time.Duration `yaml:"open_timeout"`
	CompletionTimeout time.Duration `yaml:"completion_timeout"`
	SubmitRPS         float64       `yaml:"submit_rps"`
	SubmitBurst       int           `yaml:"submit_burst"`

	// Optional image persistence. S3 wins when both are set.
	S3 storage.S3Config `yaml:"s3"`
	// CopyToInput uploads every generated image into the backend's input folder
	CopyToInput bool `yaml:"copy_to_input"`

	// HTTP transport for the MCP server
	HTTPAddr string `yaml:"http_addr"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		URL:               "http://127.0.0.1:8188",
		Resolver:          graphapi.DefaultResolverOptions(),
		OpenTimeout:       client.DefaultOpenTimeout,
		CompletionTimeout: client.DefaultCompletionTimeout,
		SubmitBurst:       1,
		HTTPAddr:          ":8080",
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Load reads .env (if present), then the YAML file at path (if non empty), then
// environment variables. Later sources win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.URL = getEnv("COMFYUI_URL", c.URL)
	c.APIKey = getEnv("COMFYUI_API_KEY", c.APIKey)
	c.Workflow = getEnv("COMFYUI_WORKFLOW", c.Workflow)
	c.WorkflowFile = getEnv("COMFYUI_WORKFLOW_FILE", c.WorkflowFile)
	c.NodeMapText = getEnv("COMFYUI_NODE_MAP", c.NodeMapText)
	c.NodeMapFile = getEnv("COMFYUI_NODE_MAP_FILE", c.NodeMapFile)
	c.HTTPAddr = getEnv("COMFYUI_HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.S3.Endpoint = getEnv("COMFYUI_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.Bucket = getEnv("COMFYUI_S3_BUCKET", c.S3.Bucket)
	c.S3.Region = getEnv("COMFYUI_S3_REGION", c.S3.Region)
	c.S3.AccessKeyID = getEnv("COMFYUI_S3_ACCESS_KEY_ID", c.S3.AccessKeyID)
	c.S3.SecretAccessKey = getEnv("COMFYUI_S3_SECRET_ACCESS_KEY", c.S3.SecretAccessKey)
	c.S3.PathPrefix = getEnv("COMFYUI_S3_PATH_PREFIX", c.S3.PathPrefix)

	var err error
	if c.Override, err = getBool("COMFYUI_OVERRIDE", c.Override); err != nil {
		return err
	}
	if c.S3.UseSSL, err = getBool("COMFYUI_S3_USE_SSL", c.S3.UseSSL); err != nil {
		return err
	}
	if c.CopyToInput, err = getBool("COMFYUI_COPY_TO_INPUT", c.CopyToInput); err != nil {
		return err
	}
	if c.OpenTimeout, err = getDuration("COMFYUI_OPEN_TIMEOUT", c.OpenTimeout); err != nil {
		return err
	}
	if c.CompletionTimeout, err = getDuration("COMFYUI_COMPLETION_TIMEOUT", c.CompletionTimeout); err != nil {
		return err
	}
	if c.SubmitRPS, err = getFloat("COMFYUI_SUBMIT_RPS", c.SubmitRPS); err != nil {
		return err
	}
	if c.SubmitBurst, err = getInt("COMFYUI_SUBMIT_BURST", c.SubmitBurst); err != nil {
		return err
	}
	return nil
}

// Validate checks that everything required outside override mode is present
func (c *Config) Validate() error {
	if c.Override {
		return nil
	}
	if strings.TrimSpace(c.URL) == "" {
		return &graphapi.ConfigError{Field: "url", Err: errors.New("backend url is required")}
	}
	if strings.TrimSpace(c.Workflow) == "" && c.WorkflowFile == "" {
		return &graphapi.ConfigError{Field: "workflow", Err: errors.New("workflow or workflow_file is required")}
	}
	if c.OpenTimeout < 0 || c.CompletionTimeout < 0 {
		return &graphapi.ConfigError{Field: "timeouts", Err: errors.New("timeouts must not be negative")}
	}
	return nil
}

// LoadWorkflow returns the configured workflow template. In override mode
// without a workflow it returns nil.
func (c *Config) LoadWorkflow() (*graphapi.Workflow, error) {
	var wf *graphapi.Workflow
	var err error
	switch {
	case strings.TrimSpace(c.Workflow) != "":
		wf, err = graphapi.NewWorkflowFromJsonString(c.Workflow)
	case c.WorkflowFile != "":
		wf, err = graphapi.NewWorkflowFromFile(c.WorkflowFile)
	case c.Override:
		return nil, nil
	default:
		return nil, &graphapi.ConfigError{Field: "workflow", Err: errors.New("no workflow configured")}
	}
	if err != nil {
		return nil, &graphapi.ConfigError{Field: "workflow", Err: err}
	}
	return wf, nil
}

// LoadNodeMap merges the YAML node map with the JSON text and file forms
func (c *Config) LoadNodeMap() (graphapi.NodeMap, error) {
	retv := make(graphapi.NodeMap)
	for r, id := range c.NodeMap {
		retv[r] = id
	}

	texts := make([]string, 0, 2)
	if c.NodeMapFile != "" {
		data, err := os.ReadFile(c.NodeMapFile)
		if err != nil {
			return nil, &graphapi.ConfigError{Field: "node_map_file", Err: err}
		}
		texts = append(texts, string(data))
	}
	if strings.TrimSpace(c.NodeMapText) != "" {
		texts = append(texts, c.NodeMapText)
	}
	for _, text := range texts {
		nm, err := graphapi.ParseNodeMap(text)
		if err != nil {
			return nil, &graphapi.ConfigError{Field: "node_map", Err: err}
		}
		for r, id := range nm {
			retv[r] = id
		}
	}
	return retv, nil
}

// ClientOptions translates the backend settings into client options
func (c *Config) ClientOptions() []client.Option {
	return []client.Option{
		client.WithAPIKey(c.APIKey),
		client.WithOpenTimeout(c.OpenTimeout),
		client.WithCompletionTimeout(c.CompletionTimeout),
		client.WithSubmitLimit(c.SubmitRPS, c.SubmitBurst),
	}
}

// SlogLevel parses LogLevel, falling back to info
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	if val := os.Getenv(key); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return i, nil
	}
	return defaultVal, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

func getBool(key string, defaultVal bool) (bool, error) {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return false, fmt.Errorf("%s: %w", key, err)
		}
		return b, nil
	}
	return defaultVal, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}
