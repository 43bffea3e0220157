package deviceutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// Driver is a PCI driver registered on the bus.
type Driver struct {
	name string
	path string
}

// Name returns the driver name, e.g. "vfio-pci".
func (d Driver) Name() string { return d.name }

// Path returns the driver's sysfs directory.
func (d Driver) Path() string { return d.path }

// ListDrivers returns every registered PCI driver.
func (s *Sysfs) ListDrivers() ([]Driver, error) {
	entries, err := os.ReadDir(s.driverPath)
	if err != nil {
		return nil, fmt.Errorf("deviceutil: read %s: %w", s.driverPath, err)
	}
	drivers := make([]Driver, 0, len(entries))
	for _, entry := range entries {
		drivers = append(drivers, Driver{name: entry.Name(), path: filepath.Join(s.driverPath, entry.Name())})
	}
	return drivers, nil
}

// FindDriver returns the driver with the given name.
func (s *Sysfs) FindDriver(name string) (Driver, error) {
	drivers, err := s.ListDrivers()
	if err != nil {
		return Driver{}, err
	}
	for _, d := range drivers {
		if d.name == name {
			return d, nil
		}
	}
	return Driver{}, fmt.Errorf("deviceutil: %s: %w", name, ErrDriverNotFound)
}

// DriverFor returns the driver currently bound to the device.
func (s *Sysfs) DriverFor(dev Device) (Driver, error) {
	drivers, err := s.ListDrivers()
	if err != nil {
		return Driver{}, err
	}
	for _, d := range drivers {
		if _, err := os.Stat(filepath.Join(d.path, dev.BDF())); err == nil {
			return d, nil
		}
	}
	return Driver{}, fmt.Errorf("deviceutil: no driver bound to %s: %w", dev.BDF(), ErrDriverNotFound)
}

// Bind attaches the device to this driver.
func (d Driver) Bind(dev Device) error {
	if err := os.WriteFile(filepath.Join(d.path, "bind"), []byte(dev.BDF()), 0o200); err != nil {
		return fmt.Errorf("deviceutil: bind %s to %s: %w", dev.BDF(), d.name, err)
	}
	return nil
}

// Unbind detaches the device from this driver.
func (d Driver) Unbind(dev Device) error {
	if err := os.WriteFile(filepath.Join(d.path, "unbind"), []byte(dev.BDF()), 0o200); err != nil {
		return fmt.Errorf("deviceutil: unbind %s from %s: %w", dev.BDF(), d.name, err)
	}
	return nil
}

// Override pins the device to this driver regardless of ID matching, via the
// device's driver_override attribute. The next bind (or probe) picks it up.
func (d Driver) Override(dev Device) error {
	if err := os.WriteFile(filepath.Join(dev.Path(), "driver_override"), []byte(d.name), 0o200); err != nil {
		return fmt.Errorf("deviceutil: override driver of %s to %s: %w", dev.BDF(), d.name, err)
	}
	return nil
}
