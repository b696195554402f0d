package device

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFakeDevice(t *testing.T, root, addr string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, addr)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanPCIDevices(t *testing.T) {
	root := t.TempDir()
	writeFakeDevice(t, root, "0000:01:00.0", map[string]string{
		"vendor": "0x10DE", "device": "0x20b0", "class": "0x030200",
	})
	writeFakeDevice(t, root, "0000:02:00.0", map[string]string{
		"vendor": "0x8086", "device": "0x1572", "class": "0x020000",
	})
	writeFakeDevice(t, root, "0000:03:00.0", map[string]string{
		"vendor": "0x1002", "device": "0x740f", "class": "0x038000",
	})
	writeFakeDevice(t, root, "0000:04:00.0", map[string]string{"vendor": "0x10de"})

	devices, err := ScanPCIDevices(root)
	if err != nil {
		t.Fatalf("ScanPCIDevices: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3 (entry without device id skipped)", len(devices))
	}
	if devices[0].VendorID != "0x10de" || devices[0].BusAddress != "0000:01:00.0" {
		t.Errorf("first device = %+v", devices[0])
	}

	gpus := FilterGPUs(devices)
	if len(gpus) != 2 {
		t.Fatalf("got %d GPUs, want 2", len(gpus))
	}
	if gpus[0].VendorName != "NVIDIA" || gpus[1].VendorName != "AMD" {
		t.Errorf("vendors = %s, %s", gpus[0].VendorName, gpus[1].VendorName)
	}
}

func TestScanPCIDevicesMissingRoot(t *testing.T) {
	if _, err := ScanPCIDevices(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for a missing sysfs path")
	}
}

func TestParseLspciOutput(t *testing.T) {
	output := `00:02.0 VGA compatible controller [0300]: Intel Corporation Device [8086:46a6] (rev 0c)
01:00.0 3D controller [0302]: NVIDIA Corporation GA100 [A100 SXM4 40GB] [10de:20b0] (rev a1)
81:00.0 Display controller [0380]: Advanced Micro Devices, Inc. [AMD/ATI] Aldebaran [1002:740f] (rev 02)
garbage
`
	devices := ParseLspciOutput(output)
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3: %+v", len(devices), devices)
	}

	want := PCIDevice{BusAddress: "01:00.0", VendorID: "0x10de", DeviceID: "0x20b0", Class: "0x0302"}
	if devices[1] != want {
		t.Errorf("devices[1] = %+v, want %+v", devices[1], want)
	}
	if devices[2].VendorID != "0x1002" || devices[2].Class != "0x0380" {
		t.Errorf("devices[2] = %+v", devices[2])
	}

	if gpus := FilterGPUs(devices); len(gpus) != 2 {
		t.Errorf("got %d GPUs, want 2", len(gpus))
	}
}

func TestIsGPU(t *testing.T) {
	tests := []struct {
		name string
		dev  PCIDevice
		want bool
	}{
		{"nvidia 3d", PCIDevice{VendorID: "0x10de", Class: "0x030200"}, true},
		{"nvidia audio", PCIDevice{VendorID: "0x10de", Class: "0x040300"}, false},
		{"amd accelerator", PCIDevice{VendorID: "0x1002", Class: "0x120000"}, true},
		{"unknown vendor", PCIDevice{VendorID: "0x8086", Class: "0x030000"}, false},
		{"no class", PCIDevice{VendorID: "0x10DE"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsGPU(tt.dev); got != tt.want {
				t.Errorf("IsGPU(%+v) = %v, want %v", tt.dev, got, tt.want)
			}
		})
	}
}

func TestPrimaryGPUs(t *testing.T) {
	nvidia := PCIDevice{VendorID: "0x10de", Class: "0x030200"}
	amd := PCIDevice{VendorID: "0x1002", Class: "0x030000"}

	tests := []struct {
		name       string
		devices    []PCIDevice
		wantCount  int
		wantVendor string
	}{
		{"discrete nvidia with integrated amd", []PCIDevice{amd, nvidia, nvidia}, 2, "NVIDIA"},
		{"amd only", []PCIDevice{amd, amd}, 2, "AMD"},
		{"tie prefers nvidia", []PCIDevice{amd, nvidia}, 1, "NVIDIA"},
		{"none", nil, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PrimaryGPUs(FilterGPUs(tt.devices))
			if len(got) != tt.wantCount {
				t.Fatalf("got %d GPUs, want %d", len(got), tt.wantCount)
			}
			for _, g := range got {
				if g.VendorName != tt.wantVendor {
					t.Errorf("vendor = %q, want %q", g.VendorName, tt.wantVendor)
				}
			}
		})
	}
}
