package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/onager-net/onager/deviceutil"
)

func newDevicesCmd(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List PCI ethernet devices and their drivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDevices(logger)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "bind <bdf> <driver>",
		Short: "Bind a device to a driver via driver_override",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rebindDevice(args[0], args[1])
		},
	})

	return cmd
}

func listDevices(logger *logrus.Logger) error {
	bus := deviceutil.New()
	devices, err := bus.ListDevices()
	if err != nil {
		return err
	}
	for _, dev := range devices {
		name, err := dev.Name()
		if err != nil {
			name = "-"
		}
		driver := "-"
		if d, err := bus.DriverFor(dev); err == nil {
			driver = d.Name()
		}
		fmt.Printf("%-14s %-16s %s\n", dev.BDF(), name, driver)
	}
	if len(devices) == 0 {
		logger.Info("no PCI ethernet devices found")
	}
	return nil
}

func rebindDevice(bdf, driverName string) error {
	bus := deviceutil.New()
	dev, err := bus.FindDevice(bdf)
	if err != nil {
		return err
	}
	driver, err := bus.FindDriver(driverName)
	if err != nil {
		return err
	}
	if current, err := bus.DriverFor(dev); err == nil {
		if err := current.Unbind(dev); err != nil {
			return err
		}
	}
	if err := driver.Override(dev); err != nil {
		return err
	}
	return driver.Bind(dev)
}
