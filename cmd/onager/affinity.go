package main

import (
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// pinToCPU locks the calling goroutine to its OS thread and binds that
// thread to one core. Keeping the rx and tx burst loops on separate, fixed
// cores avoids cross-core bouncing of the ring cachelines.
func pinToCPU(logger *logrus.Logger, core int) {
	runtime.LockOSThread()

	if core >= runtime.NumCPU() {
		logger.WithFields(logrus.Fields{
			"core": core,
			"max":  runtime.NumCPU() - 1,
		}).Warn("CPU core not available, using core 0")
		core = 0
	}

	var cpuSet unix.CPUSet
	cpuSet.Zero()
	cpuSet.Set(core)

	tid := unix.Gettid()
	if err := unix.SchedSetaffinity(tid, &cpuSet); err != nil {
		logger.WithError(err).WithField("core", core).Warn("failed to set CPU affinity")
		return
	}
	logger.WithFields(logrus.Fields{"core": core, "tid": tid}).Debug("pinned loop to CPU core")
}
