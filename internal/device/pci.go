package device

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SysfsPCIPath is where Linux exposes PCI devices.
const SysfsPCIPath = "/sys/bus/pci/devices"

// PCIDevice represents a PCI device with its identifiers
type PCIDevice struct {
	// VendorID is the PCI vendor ID (e.g., "0x10de")
	VendorID string

	// DeviceID is the PCI device ID
	DeviceID string

	// SubsystemVendorID is the subsystem vendor ID (optional)
	SubsystemVendorID string

	// SubsystemDeviceID is the subsystem device ID (optional)
	SubsystemDeviceID string

	// BusAddress is the PCI bus address (e.g., "0000:01:00.0")
	BusAddress string

	// Class is the PCI class code (e.g., "0x030200")
	Class string
}

// ScanPCIDevices scans a sysfs PCI directory for devices
//
// root is normally SysfsPCIPath; tests point it at a fake tree.
// Entries whose vendor or device file cannot be read are skipped.
//
// Returns:
//   - Slice of PCIDevice found under root
//   - Error if root does not exist or cannot be listed
func ScanPCIDevices(root string) ([]PCIDevice, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, fmt.Errorf("PCI devices path not found: %s", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCI devices: %w", err)
	}

	var devices []PCIDevice
	for _, entry := range entries {
		// PCI device entries are symlinks, not directories
		device, err := readPCIDevice(filepath.Join(root, entry.Name()), entry.Name())
		if err != nil {
			continue
		}
		devices = append(devices, device)
	}

	return devices, nil
}

// readPCIDevice reads PCI device information from sysfs
func readPCIDevice(devicePath, busAddress string) (PCIDevice, error) {
	device := PCIDevice{
		BusAddress: busAddress,
	}

	vendorID, err := readPCIFile(filepath.Join(devicePath, "vendor"))
	if err != nil {
		return device, err
	}
	device.VendorID = strings.ToLower(vendorID)

	deviceID, err := readPCIFile(filepath.Join(devicePath, "device"))
	if err != nil {
		return device, err
	}
	device.DeviceID = strings.ToLower(deviceID)

	if subsysVendor, err := readPCIFile(filepath.Join(devicePath, "subsystem_vendor")); err == nil {
		device.SubsystemVendorID = subsysVendor
	}
	if subsysDevice, err := readPCIFile(filepath.Join(devicePath, "subsystem_device")); err == nil {
		device.SubsystemDeviceID = subsysDevice
	}
	if class, err := readPCIFile(filepath.Join(devicePath, "class")); err == nil {
		device.Class = strings.ToLower(class)
	}

	return device, nil
}

// readPCIFile reads a single line from a PCI sysfs file
func readPCIFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ParseLspciOutput parses the output of `lspci -nn`
//
// This is the fallback for systems where sysfs access is restricted.
// Each line looks like:
//
//	01:00.0 3D controller [0302]: NVIDIA Corporation GA100 [A100 SXM4 40GB] [10de:20b0] (rev a1)
//
// Parameters:
//   - output: The output from lspci -nn
//
// Returns:
//   - Slice of PCIDevice parsed from the output; malformed lines are skipped
func ParseLspciOutput(output string) []PCIDevice {
	var devices []PCIDevice

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if device := parseLspciLine(scanner.Text()); device != nil {
			devices = append(devices, *device)
		}
	}

	return devices
}

// parseLspciLine parses a single line from lspci -nn output
func parseLspciLine(line string) *PCIDevice {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil
	}

	device := &PCIDevice{
		BusAddress: fields[0],
	}

	// The class code is the first bracketed group, the ids the last one
	// containing a colon. A trailing "(rev xx)" is ignored.
	var groups []string
	rest := line
	for {
		open := strings.Index(rest, "[")
		if open == -1 {
			break
		}
		end := strings.Index(rest[open:], "]")
		if end == -1 {
			break
		}
		groups = append(groups, rest[open+1:open+end])
		rest = rest[open+end+1:]
	}
	if len(groups) == 0 {
		return nil
	}

	for i := len(groups) - 1; i >= 0; i-- {
		parts := strings.Split(groups[i], ":")
		if len(parts) == 2 && isHex(parts[0]) && isHex(parts[1]) {
			device.VendorID = "0x" + strings.ToLower(parts[0])
			device.DeviceID = "0x" + strings.ToLower(parts[1])
			break
		}
	}
	if device.VendorID == "" {
		return nil
	}

	if isHex(groups[0]) && len(groups[0]) == 4 {
		device.Class = "0x" + strings.ToLower(groups[0])
	}

	return device
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
