package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/hellocl/internal/gpu"
	"github.com/cwbudde/hellocl/internal/roundtrip"
)

var (
	kernelPath string
	seed       int64
	globalSize int
	localSize  int
	runBackend string
	reportDir  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the host/device round trip",
	Long: `Builds the hello_world kernel, copies a buffer of random bytes through it,
verifies the result and prints GPU and CPU process times.`,
	RunE: runRoundTrip,
}

func init() {
	runCmd.Flags().StringVar(&kernelPath, "kernel", roundtrip.DefaultKernelPath, "Kernel source path")
	runCmd.Flags().Int64Var(&seed, "seed", roundtrip.DefaultSeed, "Random seed for the input bytes")
	runCmd.Flags().IntVar(&globalSize, "global-size", roundtrip.DefaultGlobalSize, "Work items, one byte each")
	runCmd.Flags().IntVar(&localSize, "local-size", roundtrip.DefaultLocalSize, "Work-group size")
	runCmd.Flags().StringVar(&runBackend, "backend", string(gpu.BackendOpenCL), backendFlagUsage())
	runCmd.Flags().StringVar(&reportDir, "report-dir", "", "Save a run report and stage trace under this directory")

	rootCmd.AddCommand(runCmd)
}

func runRoundTrip(cmd *cobra.Command, args []string) error {
	backend, err := gpu.NewBackend(runBackend)
	if err != nil {
		return err
	}

	cfg := roundtrip.DefaultConfig()
	cfg.KernelPath = kernelPath
	cfg.Seed = seed
	cfg.GlobalSize = globalSize
	cfg.LocalSize = localSize

	runID := uuid.New().String()
	progress := &progressPrinter{w: cmd.OutOrStdout(), kernelName: cfg.KernelName}
	observe := progress.observe

	var recorder *reportRecorder
	if reportDir != "" {
		recorder, err = newReportRecorder(reportDir, runID)
		if err != nil {
			return err
		}
		observe = func(ev roundtrip.StageEvent) {
			progress.observe(ev)
			recorder.trace(ev)
		}
	}

	slog.Info("Starting round trip",
		"runID", runID,
		"backend", backend.Name(),
		"kernel", cfg.KernelPath,
		"globalSize", cfg.GlobalSize,
		"localSize", cfg.LocalSize,
		"seed", cfg.Seed)

	report, runErr := roundtrip.Run(backend, cfg, observe)

	if recorder != nil {
		dir, err := recorder.save(report, runErr)
		if err != nil {
			slog.Error("Failed to save run report", "runID", runID, "error", err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "\nReport saved: %s\n", dir)
		}
	}

	if runErr != nil {
		return runErr
	}
	slog.Info("Round trip finished",
		"runID", runID,
		"diverged", report.Diverged,
		"softErrors", len(report.SoftErrors),
		"gpuMs", roundtrip.Millis(report.GPUTime),
		"cpuMs", roundtrip.Millis(report.CPUTime))
	return nil
}

// progressPrinter renders stage events as the classic hello-world progress
// stream.
type progressPrinter struct {
	w          io.Writer
	kernelName string
}

func (p *progressPrinter) observe(ev roundtrip.StageEvent) {
	w := p.w
	failed := ev.Err != nil

	switch ev.Stage {
	case roundtrip.StageConfig:
		fmt.Fprintf(w, "\nInvalid configuration\n")

	case roundtrip.StageInit:
		if failed {
			fmt.Fprintf(w, "\nFailed Initializing OpenCL\n")
			return
		}
		fmt.Fprintf(w, "\nInitializing OpenCL: Ok\n")

	case roundtrip.StageInfo:
		if failed {
			fmt.Fprintf(w, "\nFailed reading OpenCL Info\n")
			return
		}
		printInfo(w, ev.Report.Platform, ev.Report.Device)

	case roundtrip.StageLoad:
		if failed {
			fmt.Fprintf(w, "\nFailed loading %s kernel\n", p.kernelName)
			return
		}
		fmt.Fprintf(w, "\nLoading CL programs: %s Ok\n", p.kernelName)

	case roundtrip.StageBuild:
		if failed {
			fmt.Fprintf(w, "\nBuilding %s kernel: Failed Building %s kernel\n", p.kernelName, p.kernelName)
			var buildErr *gpu.BuildError
			if errors.As(ev.Err, &buildErr) && buildErr.Log != "" {
				fmt.Fprintf(w, "%s\n", buildErr.Log)
			}
			return
		}
		fmt.Fprintf(w, "\nBuilding %s kernel: Ok - %d ms\n", p.kernelName, roundtrip.Millis(ev.Elapsed))

	case roundtrip.StageKernel:
		if failed {
			fmt.Fprintf(w, "\nCreating CL kernel... Failed Creating %s program\n", p.kernelName)
			return
		}
		fmt.Fprintf(w, "\nCreating CL kernel... Ok - %d ms\n", roundtrip.Millis(ev.Elapsed))

	case roundtrip.StageBuffers:
		if failed {
			fmt.Fprintf(w, "\nAllocating buffers... Failed Allocation %s buffers\n", p.kernelName)
			return
		}
		fmt.Fprintf(w, "\nAllocating buffers... Ok\n")

	case roundtrip.StageWrite:
		if failed {
			fmt.Fprintf(w, "\nError writing input buffer\n")
		}

	case roundtrip.StageLaunch:
		if failed {
			fmt.Fprintf(w, "\nError launching %s kernel\n", p.kernelName)
		}

	case roundtrip.StageRead:
		if failed {
			fmt.Fprintf(w, "\nError reading output buffer\n")
		}

	case roundtrip.StageVerify:
		if ev.Report.Diverged {
			fmt.Fprintf(w, "\noutput buffer is different from input\n")
		} else {
			fmt.Fprintf(w, "\nAll values successfully copied\n")
		}
		fmt.Fprintf(w, "\nProcess time (gpu) = %d ms\n", roundtrip.Millis(ev.Report.GPUTime))

	case roundtrip.StageCPUCopy:
		fmt.Fprintf(w, "\nProcess time (cpu) = %d ms\n", roundtrip.Millis(ev.Elapsed))

	case roundtrip.StageTeardown:
		if failed {
			fmt.Fprintf(w, "\nFinishing OpenCL... Failed\n")
			return
		}
		fmt.Fprintf(w, "\nFinishing OpenCL...OK\n")
	}
}
