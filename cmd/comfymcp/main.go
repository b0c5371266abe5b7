// comfymcp exposes a ComfyUI workflow as an MCP image generation tool.
//
// Usage:
//
//	comfymcp serve [--http]
//	comfymcp generate --prompt "a red fox" [--out dir]
//	comfymcp info models|samplers|schedulers
//	comfymcp roles
//	comfymcp check
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/richinsley/comfymcp/config"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

// cfg is loaded before any subcommand runs
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "comfymcp",
	Short: "ComfyUI image generation as an MCP tool",
	Long:  "comfymcp binds agent requests into a ComfyUI workflow template,\nruns it on a ComfyUI server and returns the generated images.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load(rootFlags.configPath)
		if err != nil {
			return err
		}
		cfg = c
		setupLogging(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", "", "YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.Version = version
}

// setupLogging installs the default logger. Logs go to stderr so stdout stays
// free for the stdio transport.
func setupLogging(c *config.Config) {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	var handler slog.Handler
	if c.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
