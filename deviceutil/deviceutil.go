// Package deviceutil inspects and rebinds the PCI drivers of ethernet
// devices through sysfs. Switching a NIC between its vendor driver and a
// userspace-friendly one is routine setup around AF_XDP deployments; this is
// the thin filesystem wrapper that does it.
package deviceutil

import "errors"

// Default sysfs locations.
const (
	DevicePath = "/sys/bus/pci/devices"
	DriverPath = "/sys/bus/pci/drivers"
)

var (
	// ErrDeviceNotFound reports that no ethernet device matched.
	ErrDeviceNotFound = errors.New("deviceutil: device not found")

	// ErrDriverNotFound reports that no driver matched.
	ErrDriverNotFound = errors.New("deviceutil: driver not found")
)

// Sysfs is a view of the PCI bus rooted at configurable paths. The zero
// value is not usable; New returns the real bus.
type Sysfs struct {
	devicePath string
	driverPath string
}

// New returns the system PCI bus.
func New() *Sysfs {
	return &Sysfs{devicePath: DevicePath, driverPath: DriverPath}
}

// NewAt returns a bus rooted at the given device and driver directories.
func NewAt(devicePath, driverPath string) *Sysfs {
	return &Sysfs{devicePath: devicePath, driverPath: driverPath}
}
