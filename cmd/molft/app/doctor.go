package app

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/cpuid/v2"
	"github.com/spf13/cobra"

	"github.com/bioagent/molft/internal/device"
	"github.com/bioagent/molft/internal/launch"
)

// NewDoctorCommand creates the doctor command.
//
// The doctor command reports what a launch on this host would see: CPU,
// GPUs, launcher programs, Docker and the exported environment.
func NewDoctorCommand(globalOpts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the host for training readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(contextOrBackground(cmd.Context()), cmd.OutOrStdout(), globalOpts)
		},
	}
}

// runDoctor executes the doctor command logic. Problems are reported, not
// returned as errors.
func runDoctor(ctx context.Context, w io.Writer, opts *GlobalOptions) error {
	fmt.Fprintln(w, "CPU:")
	fmt.Fprintf(w, "  Model:   %s (%s/%s)\n", cpuid.CPU.BrandName, runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "  Cores:   %d physical, %d logical\n", cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
	if cpuid.CPU.Cache.L3 > 0 {
		fmt.Fprintf(w, "  L3:      %s\n", humanize.IBytes(uint64(cpuid.CPU.Cache.L3)))
	}
	fmt.Fprintf(w, "  AVX2:    %v\n", cpuid.CPU.Supports(cpuid.AVX2))
	fmt.Fprintf(w, "  AVX512F: %v\n", cpuid.CPU.Supports(cpuid.AVX512F))

	fmt.Fprintln(w, "\nGPUs:")
	gpus, err := device.DetectGPUs()
	switch {
	case err != nil:
		fmt.Fprintf(w, "  detection failed: %v\n", err)
	case len(gpus) == 0:
		fmt.Fprintln(w, "  none found")
	default:
		for _, g := range gpus {
			fmt.Fprintf(w, "  %s  %s %s:%s\n", g.BusAddress, g.VendorName, g.VendorID, g.DeviceID)
		}
	}
	n := launch.ResolveNumGPUs(0, 0, opts.env.NumGPUs, func() (int, error) { return len(gpus), err })
	fmt.Fprintf(w, "  Default worker count: %d\n", n)

	fmt.Fprintln(w, "\nPrograms:")
	for _, prog := range []string{opts.env.DeepSpeed, opts.env.Python} {
		if path, err := exec.LookPath(prog); err == nil {
			fmt.Fprintf(w, "  %-10s %s\n", prog, path)
		} else {
			fmt.Fprintf(w, "  %-10s not found\n", prog)
		}
	}

	fmt.Fprintln(w, "\nDocker:")
	if version, err := launch.PingDocker(ctx); err != nil {
		fmt.Fprintf(w, "  unavailable: %v\n", err)
	} else {
		fmt.Fprintf(w, "  reachable (API %s)\n", version)
	}

	fmt.Fprintln(w, "\nEnvironment:")
	cmd := &launch.Command{Env: launch.BuildEnvironment(opts.env, nil)}
	if len(cmd.Env) == 0 {
		fmt.Fprintln(w, "  nothing exported")
	}
	masked := cmd.MaskedEnv()
	for _, k := range cmd.EnvKeys() {
		fmt.Fprintf(w, "  %s=%s\n", k, masked[k])
	}
	fmt.Fprintf(w, "  Work dir: %s\n", opts.env.WorkDir)
	fmt.Fprintf(w, "  Config:   %s\n", opts.config.Storage.ConfigDir)
	return nil
}
