package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cwbudde/hellocl/internal/gpu"
)

var infoBackend string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print platform and device information",
	Long:  `Opens the first platform and its first GPU device and prints their properties.`,
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().StringVar(&infoBackend, "backend", string(gpu.BackendOpenCL), backendFlagUsage())
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	backend, err := gpu.NewBackend(infoBackend)
	if err != nil {
		return err
	}

	ctx, err := backend.Open()
	if err != nil {
		return fmt.Errorf("failed initializing OpenCL: %w", err)
	}
	defer func() {
		if err := ctx.Close(); err != nil {
			slog.Warn("Failed to release OpenCL context", "error", err)
		}
	}()

	platform, device, err := ctx.Info()
	if err != nil {
		return fmt.Errorf("failed reading OpenCL info: %w", err)
	}
	printInfo(cmd.OutOrStdout(), platform, device)
	return nil
}

func printInfo(w io.Writer, platform gpu.PlatformInfo, device gpu.DeviceInfo) {
	fmt.Fprintf(w, "\n-=-=-=- Platform Information -=-=-=-\n\n")
	fmt.Fprintf(w, "Platform Name: %s\n", platform.Name)
	fmt.Fprintf(w, "Platform Profile: %s\n", platform.Profile)
	fmt.Fprintf(w, "Platform Version: %s\n", platform.Version)
	fmt.Fprintf(w, "Platform Vendor: %s\n", platform.Vendor)

	fmt.Fprintf(w, "\n-=-=-=- Device Information -=-=-=-\n\n")
	fmt.Fprintf(w, "Device Name: %s\n", device.Name)
	fmt.Fprintf(w, "Device Type: %s\n", device.Type)
	fmt.Fprintf(w, "Device Profile: %s\n", device.Profile)
	fmt.Fprintf(w, "Device Version: %s\n", device.Version)
	fmt.Fprintf(w, "Device Vendor: %s\n", device.Vendor)
	fmt.Fprintf(w, "Device Max Work Item Dimensions: %d-D\n", device.MaxWorkItemDimensions)
	fmt.Fprintf(w, "Device Max Work Group Size: %d\n", device.MaxWorkGroupSize)
}
