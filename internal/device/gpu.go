// Package device detects local GPUs for the distributed launcher.
//
// Detection reads the PCI devices exposed in sysfs and falls back to
// parsing `lspci -nn`. Only the presence of accelerators is reported; no
// vendor driver or management library is consulted.
package device

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/bioagent/molft/internal/logger"
)

// GPUVendor is a PCI vendor whose display and 3D controllers count as
// accelerators.
type GPUVendor struct {
	// VendorID is the PCI vendor ID (e.g., "0x10de")
	VendorID string

	// VendorName is the human-readable vendor name
	VendorName string
}

// KnownVendors lists the GPU vendors the trainer can use.
var KnownVendors = []GPUVendor{
	{VendorID: "0x10de", VendorName: "NVIDIA"},
	{VendorID: "0x1002", VendorName: "AMD"},
}

// PCI base classes and subclasses of accelerators: VGA (0300), 3D (0302),
// display (0380) and processing accelerators (1200).
var gpuClassPrefixes = []string{"0x0300", "0x0302", "0x0380", "0x1200"}

// GPU is a detected accelerator.
type GPU struct {
	PCIDevice
	VendorName string
}

// VendorName returns the name of a known GPU vendor, or "".
func VendorName(vendorID string) string {
	vendorID = strings.ToLower(vendorID)
	for _, v := range KnownVendors {
		if v.VendorID == vendorID {
			return v.VendorName
		}
	}
	return ""
}

// IsGPU reports whether d is an accelerator from a known vendor.
//
// A device without a class code (lspci without -nn class) is accepted on
// vendor alone.
func IsGPU(d PCIDevice) bool {
	if VendorName(d.VendorID) == "" {
		return false
	}
	if d.Class == "" {
		return true
	}
	for _, p := range gpuClassPrefixes {
		if strings.HasPrefix(d.Class, p) {
			return true
		}
	}
	return false
}

// FilterGPUs returns the accelerators among devices.
func FilterGPUs(devices []PCIDevice) []GPU {
	var gpus []GPU
	for _, d := range devices {
		if IsGPU(d) {
			gpus = append(gpus, GPU{PCIDevice: d, VendorName: VendorName(d.VendorID)})
		}
	}
	return gpus
}

// DetectGPUs finds local accelerators.
//
// sysfs is tried first; when it is unavailable `lspci -nn` is run with a
// 5 second timeout.
func DetectGPUs() ([]GPU, error) {
	devices, err := ScanPCIDevices(SysfsPCIPath)
	if err == nil {
		return FilterGPUs(devices), nil
	}
	logger.Debug("sysfs PCI scan failed: %v, trying lspci", err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, lspciErr := exec.CommandContext(ctx, "lspci", "-nn").Output()
	if lspciErr != nil {
		return nil, fmt.Errorf("failed to detect GPUs: %w (lspci: %v)", err, lspciErr)
	}
	return FilterGPUs(ParseLspciOutput(string(out))), nil
}

// PrimaryGPUs returns the GPUs of the vendor with the most devices.
//
// A launch drives a single vendor stack, so an integrated GPU from another
// vendor is left out. Ties go to the vendor listed first in KnownVendors.
func PrimaryGPUs(gpus []GPU) []GPU {
	var primary []GPU
	for _, v := range KnownVendors {
		var same []GPU
		for _, g := range gpus {
			if strings.EqualFold(g.VendorID, v.VendorID) {
				same = append(same, g)
			}
		}
		if len(same) > len(primary) {
			primary = same
		}
	}
	return primary
}

// CountGPUs returns the number of local accelerators of the primary vendor.
func CountGPUs() (int, error) {
	gpus, err := DetectGPUs()
	if err != nil {
		return 0, err
	}
	primary := PrimaryGPUs(gpus)
	if len(primary) < len(gpus) {
		logger.Debug("ignoring %d GPU(s) from other vendors", len(gpus)-len(primary))
	}
	return len(primary), nil
}
