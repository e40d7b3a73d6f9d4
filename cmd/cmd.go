package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/spaghettifunk/anima-compute/engine"
	"github.com/spaghettifunk/anima-compute/engine/compute"
	"github.com/spaghettifunk/anima-compute/engine/core"
	"github.com/spaghettifunk/anima-compute/testbed"
)

// loadConfig reads --config and applies the flag overrides on top of it.
func loadConfig(cmd *cobra.Command) (*engine.ApplicationConfig, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := engine.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("backend") {
		cfg.Application.Backend, _ = cmd.Flags().GetString("backend")
	}
	if cmd.Flags().Changed("assets") {
		cfg.Application.AssetsDir, _ = cmd.Flags().GetString("assets")
	}
	if cmd.Flags().Changed("validation") {
		cfg.Vulkan.Validation, _ = cmd.Flags().GetBool("validation")
	}
	if cmd.Flags().Changed("log-level") {
		level, _ := cmd.Flags().GetString("log-level")
		cfg.Application.LogLevel = core.LogLevel(level)
	}
	if f := cmd.Flags().Lookup("phases"); f != nil && f.Changed {
		phases, _ := cmd.Flags().GetStringSlice("phases")
		cfg.Application.Phases = phases
	}
	return cfg, nil
}

func RunHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	e, err := engine.New(testbed.NewHelloCompute(), cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer e.Shutdown()

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer close(sigCh)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			e.Stop()
		}
	}()

	if err := e.Initialize(); err != nil {
		return err
	}
	return e.Run()
}

func DevicesHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	devices, err := engine.ListDevices(testbed.NewHelloCompute(), cfg)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No physical devices found.")
		return nil
	}

	writeDeviceTable(cmd.OutOrStdout(), devices)
	return nil
}

func writeDeviceTable(w io.Writer, devices []compute.PhysicalDevice) {
	var data [][]string
	for _, d := range devices {
		for _, f := range d.QueueFamilies {
			data = append(data, []string{
				strconv.Itoa(d.Index),
				d.Name,
				string(d.Type),
				d.APIVersion,
				strconv.Itoa(int(f.Index)),
				strconv.Itoa(int(f.QueueCount)),
				familyCapabilities(f),
			})
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"DEVICE", "NAME", "TYPE", "API", "FAMILY", "QUEUES", "CAPABILITIES"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func familyCapabilities(f compute.QueueFamily) string {
	var caps []string
	if f.Graphics {
		caps = append(caps, "graphics")
	}
	if f.Compute {
		caps = append(caps, "compute")
	}
	if f.Transfer {
		caps = append(caps, "transfer")
	}
	if len(caps) == 0 {
		return "-"
	}
	return strings.Join(caps, ",")
}

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "anima-compute",
		Short: "Hello compute on Vulkan",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
	}

	rootCmd.PersistentFlags().String("config", "config.toml", "Configuration file")
	rootCmd.PersistentFlags().String("backend", engine.BackendVulkan, "Compute backend (vulkan|host)")
	rootCmd.PersistentFlags().String("assets", "assets", "Assets directory")
	rootCmd.PersistentFlags().Bool("validation", false, "Enable the Vulkan validation layers")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug|info|warn|error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scalar, copy and dispatch phases",
		Args:  cobra.NoArgs,
		RunE:  RunHandler,
	}
	runCmd.Flags().StringSlice("phases", nil, "Phases to run (init,scalar,copy,dispatch)")

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List physical devices and their queue families",
		Args:  cobra.NoArgs,
		RunE:  DevicesHandler,
	}

	rootCmd.AddCommand(runCmd, devicesCmd)
	return rootCmd
}
