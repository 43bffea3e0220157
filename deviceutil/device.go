package deviceutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// Device is a PCI ethernet device, identified by its bus address (BDF).
type Device struct {
	bdf  string
	path string
}

// BDF returns the PCI bus address, e.g. "0000:03:00.0".
func (d Device) BDF() string { return d.bdf }

// Path returns the device's sysfs directory.
func (d Device) Path() string { return d.path }

// Name returns the device's network interface name, read from the device's
// net/ subdirectory.
func (d Device) Name() (string, error) {
	entries, err := os.ReadDir(filepath.Join(d.path, "net"))
	if err != nil {
		return "", fmt.Errorf("deviceutil: read interface name of %s: %w", d.bdf, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("deviceutil: device %s has no interface name: %w", d.bdf, ErrDeviceNotFound)
	}
	return entries[0].Name(), nil
}

// ListDevices returns every PCI device that exposes a network interface.
func (s *Sysfs) ListDevices() ([]Device, error) {
	entries, err := os.ReadDir(s.devicePath)
	if err != nil {
		return nil, fmt.Errorf("deviceutil: read %s: %w", s.devicePath, err)
	}
	var devices []Device
	for _, entry := range entries {
		path := filepath.Join(s.devicePath, entry.Name())
		if _, err := os.Stat(filepath.Join(path, "net")); err != nil {
			continue
		}
		devices = append(devices, Device{bdf: entry.Name(), path: path})
	}
	return devices, nil
}

// FindDevice returns the ethernet device with the given bus address.
func (s *Sysfs) FindDevice(bdf string) (Device, error) {
	devices, err := s.ListDevices()
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		if d.bdf == bdf {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("deviceutil: %s: %w", bdf, ErrDeviceNotFound)
}
