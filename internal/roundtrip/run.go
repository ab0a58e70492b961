package roundtrip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/cwbudde/hellocl/internal/gpu"
	"github.com/cwbudde/hellocl/internal/kernelsrc"
)

// Run executes one host/device round trip on backend.
//
// Setup failures (init, load, build, kernel, buffers) abort the run and are
// returned as *StageError. Transfer and launch failures are recorded in
// Report.SoftErrors and the run continues. Every acquired handle is released
// in reverse acquisition order before Run returns, on all paths. The report
// is non-nil even when err is.
func Run(backend gpu.Backend, cfg Config, observe Observer) (*Report, error) {
	if observe == nil {
		observe = func(StageEvent) {}
	}
	r := &run{
		backend: backend,
		cfg:     cfg,
		observe: observe,
		report:  &Report{Backend: backend.Name(), Config: cfg},
	}
	err := r.execute()
	r.teardown()
	return r.report, err
}

type releaser struct {
	name    string
	release func() error
}

type run struct {
	backend gpu.Backend
	cfg     Config
	observe Observer
	report  *Report

	ctx       gpu.Context
	releasers []releaser
}

func (r *run) acquire(name string, release func() error) {
	r.releasers = append(r.releasers, releaser{name: name, release: release})
}

func (r *run) done(stage Stage, elapsed time.Duration) {
	slog.Debug("Stage complete", "stage", stage, "elapsed", elapsed)
	r.observe(StageEvent{Stage: stage, Elapsed: elapsed, Report: r.report})
}

func (r *run) soft(stage Stage, elapsed time.Duration, err error) {
	slog.Warn("Stage failed, continuing", "stage", stage, "error", err)
	r.report.SoftErrors = append(r.report.SoftErrors, fmt.Sprintf("%s: %v", stage, err))
	r.observe(StageEvent{Stage: stage, Elapsed: elapsed, Err: err, Report: r.report})
}

func (r *run) fatal(stage Stage, elapsed time.Duration, err error) error {
	slog.Error("Stage failed", "stage", stage, "error", err)
	r.observe(StageEvent{Stage: stage, Elapsed: elapsed, Fatal: true, Err: err, Report: r.report})
	return &StageError{Stage: stage, Err: err}
}

func (r *run) execute() error {
	if err := r.cfg.Validate(); err != nil {
		return r.fatal(StageConfig, 0, err)
	}

	size := r.cfg.WorkloadBytes()
	input := make([]byte, size)
	output := make([]byte, size)
	FillRandom(input, r.cfg.Seed)

	start := time.Now()
	ctx, err := r.backend.Open()
	if err != nil {
		return r.fatal(StageInit, time.Since(start), err)
	}
	r.ctx = ctx
	r.acquire("context", ctx.Close)
	r.done(StageInit, time.Since(start))

	start = time.Now()
	platform, device, err := ctx.Info()
	if err != nil {
		r.soft(StageInfo, time.Since(start), err)
	} else {
		r.report.Platform = platform
		r.report.Device = device
		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			slog.Debug("Selected device", "platform", spew.Sdump(platform), "device", spew.Sdump(device))
		}
		r.done(StageInfo, time.Since(start))
	}

	start = time.Now()
	src, err := kernelsrc.Load(r.cfg.KernelPath)
	if err != nil {
		return r.fatal(StageLoad, time.Since(start), err)
	}
	r.done(StageLoad, time.Since(start))

	start = time.Now()
	program, err := ctx.BuildProgram(src.Bytes(), r.cfg.BuildOptions)
	r.report.BuildTime = time.Since(start)
	if err != nil {
		return r.fatal(StageBuild, r.report.BuildTime, err)
	}
	r.acquire("program", program.Release)
	r.done(StageBuild, r.report.BuildTime)

	start = time.Now()
	kernel, err := program.CreateKernel(r.cfg.KernelName)
	r.report.KernelTime = time.Since(start)
	if err != nil {
		return r.fatal(StageKernel, r.report.KernelTime, err)
	}
	r.acquire("kernel", kernel.Release)
	r.done(StageKernel, r.report.KernelTime)

	start = time.Now()
	in, err := ctx.NewBuffer(gpu.MemReadOnly, size)
	if err != nil {
		return r.fatal(StageBuffers, time.Since(start), fmt.Errorf("input buffer: %w", err))
	}
	r.acquire("input buffer", in.Release)
	out, err := ctx.NewBuffer(gpu.MemWriteOnly, size)
	if err != nil {
		return r.fatal(StageBuffers, time.Since(start), fmt.Errorf("output buffer: %w", err))
	}
	r.acquire("output buffer", out.Release)
	if err := kernel.SetBufferArg(0, in); err != nil {
		return r.fatal(StageBuffers, time.Since(start), fmt.Errorf("kernel arg 0: %w", err))
	}
	if err := kernel.SetBufferArg(1, out); err != nil {
		return r.fatal(StageBuffers, time.Since(start), fmt.Errorf("kernel arg 1: %w", err))
	}
	r.done(StageBuffers, time.Since(start))

	r.dispatch(kernel, in, out, input, output)
	r.verify(input, output)
	return nil
}

func (r *run) dispatch(kernel gpu.Kernel, in, out gpu.Buffer, input, output []byte) {
	start := time.Now()
	if err := r.ctx.WriteBuffer(in, input); err != nil {
		r.soft(StageWrite, time.Since(start), err)
	} else {
		r.done(StageWrite, time.Since(start))
	}

	start = time.Now()
	err := r.ctx.EnqueueKernel(kernel, r.cfg.GlobalSize, r.cfg.LocalSize)
	if err == nil {
		err = r.ctx.Flush()
	}
	r.report.GPUTime = time.Since(start)
	if err != nil {
		// Nothing was launched, so there is nothing to read back.
		r.soft(StageLaunch, r.report.GPUTime, err)
		return
	}
	r.done(StageLaunch, r.report.GPUTime)

	start = time.Now()
	if err := r.ctx.ReadBuffer(out, output); err != nil {
		r.soft(StageRead, time.Since(start), err)
		return
	}
	r.done(StageRead, time.Since(start))
}

func (r *run) verify(input, output []byte) {
	start := time.Now()
	r.report.Diverged = Diverges(input, output)
	r.report.InputDigest = Digest(input)
	r.report.OutputDigest = Digest(output)
	if r.report.Diverged {
		slog.Warn("Output buffer differs from input",
			"input", r.report.InputDigest, "output", r.report.OutputDigest)
	}
	r.done(StageVerify, time.Since(start))

	r.report.CPUTime = TimeCPUCopy(output, input)
	r.done(StageCPUCopy, r.report.CPUTime)
}

// teardown drains the queue and releases every handle, newest first.
func (r *run) teardown() {
	if r.ctx == nil {
		return
	}
	start := time.Now()
	var errs []error
	if err := r.ctx.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	if err := r.ctx.Finish(); err != nil {
		errs = append(errs, fmt.Errorf("finish: %w", err))
	}
	for i := len(r.releasers) - 1; i >= 0; i-- {
		rel := r.releasers[i]
		if err := rel.release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", rel.name, err))
		}
	}
	r.releasers = nil
	r.ctx = nil

	if err := errors.Join(errs...); err != nil {
		r.soft(StageTeardown, time.Since(start), err)
		return
	}
	r.done(StageTeardown, time.Since(start))
}
