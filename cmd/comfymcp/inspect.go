package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/richinsley/comfymcp/graphapi"
	"github.com/richinsley/comfymcp/tool"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:       "info models|samplers|schedulers",
	Short:     "List the choices the ComfyUI server accepts",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(tool.InfoModels), string(tool.InfoSamplers), string(tool.InfoSchedulers)},
	RunE:      runInfo,
}

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Show which workflow node each parameter is bound to",
	RunE:  runRoles,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show ComfyUI system stats and queue state",
	RunE:  runCheck,
}

func runInfo(cmd *cobra.Command, args []string) error {
	kind := tool.InfoKind(args[0])
	if !slices.Contains(tool.InfoKinds, kind) {
		return fmt.Errorf("unknown info type %q", args[0])
	}
	t, _, err := newTool(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, choice := range t.QueryChoices(cmd.Context(), kind) {
		fmt.Fprintln(out, choice)
	}
	return nil
}

func runRoles(cmd *cobra.Command, _ []string) error {
	t, _, err := newTool(cmd.Context())
	if err != nil {
		return err
	}
	b := t.Bindings()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tNODE\tINPUT")
	for _, r := range graphapi.AllRoles {
		id, ok := b.Get(r)
		if !ok {
			fmt.Fprintf(w, "%s\t-\t-\n", r)
			continue
		}
		field, _ := r.Field()
		if r == graphapi.RoleSeed {
			field = b.SeedInput()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r, id, field)
	}
	return w.Flush()
}

func runCheck(cmd *cobra.Command, _ []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	stats, err := c.GetSystemStats(ctx)
	if err != nil {
		return fmt.Errorf("system stats: %w", err)
	}
	queue, err := c.GetQueueExecutionInfo(ctx)
	if err != nil {
		return fmt.Errorf("queue info: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server:   %s\n", c.BaseURL())
	fmt.Fprintf(out, "ComfyUI:  %s\n", stats.System.ComfyUIVersion)
	fmt.Fprintf(out, "OS:       %s\n", stats.System.OS)
	fmt.Fprintf(out, "Python:   %s\n", stats.System.PythonVersion)
	fmt.Fprintf(out, "Queue:    %d remaining\n", queue.ExecInfo.QueueRemaining)
	for _, dev := range stats.Devices {
		fmt.Fprintf(out, "Device %d: %s (%s) VRAM %d/%d free\n", dev.Index, dev.Name, dev.Type, dev.VRAM_Free, dev.VRAM_Total)
	}
	return nil
}
