package main

import (
	"context"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/onager-net/onager/xsk"
)

const forwardBatchSize = 64

func newForwardCmd(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Echo every frame received on a queue back out of it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForward(logger)
		},
	}

	flags := cmd.Flags()
	flags.String("interface", "", "network interface to bind")
	flags.Uint32("queue", 0, "interface queue id")
	flags.Uint32("ring-size", xsk.DefaultRingSize, "ring capacity (power of two)")
	flags.Uint32("frame-size", xsk.DefaultFrameSize, "frame payload bytes")
	flags.Uint32("headroom", xsk.DefaultHeadroomSize, "headroom bytes per frame")
	flags.Bool("zero-copy", false, "require zero-copy mode")
	flags.Bool("hugepages", false, "back the frame area with huge pages")
	flags.String("metrics-addr", ":9090", "prometheus listen address, empty to disable")
	flags.Int("rx-cpu", -1, "pin the rx loop to this CPU core")
	flags.Int("tx-cpu", -1, "pin the tx loop to this CPU core")
	cmd.MarkFlagRequired("interface")
	viper.BindPFlags(flags)

	return cmd
}

func runForward(logger *logrus.Logger) error {
	cfg := xsk.Config{
		FrameSize:     viper.GetUint32("frame-size"),
		HeadroomSize:  viper.GetUint32("headroom"),
		RingSize:      viper.GetUint32("ring-size"),
		UseHugePages:  viper.GetBool("hugepages"),
		ForceZeroCopy: viper.GetBool("zero-copy"),
		Logger:        logger,
	}

	if addr := viper.GetString("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		cfg.Metrics = xsk.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.WithError(err).Warn("metrics listener stopped")
			}
		}()
	}

	rx, tx, err := xsk.New(viper.GetString("interface"), viper.GetUint32("queue"), cfg)
	if err != nil {
		return err
	}
	defer rx.Close()
	defer tx.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frames := make(chan xsk.Descriptor, 2*forwardBatchSize)

	go func() {
		if cpu := viper.GetInt("rx-cpu"); cpu >= 0 {
			pinToCPU(logger, cpu)
		}
		rxLoop(ctx, rx, frames)
	}()
	go func() {
		if cpu := viper.GetInt("tx-cpu"); cpu >= 0 {
			pinToCPU(logger, cpu)
		}
		txLoop(ctx, tx, frames)
	}()
	go statsLoop(ctx, logger, rx)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// rxLoop busy-polls the receive endpoint and hands frames to the tx side.
// Frames the tx side cannot absorb are recycled so the fill ring never
// starves. Sleeps back off while the queue is idle.
func rxLoop(ctx context.Context, rx *xsk.RxSocket, frames chan<- xsk.Descriptor) {
	const (
		minSleep = 100 * time.Nanosecond
		maxSleep = 10 * time.Microsecond
	)
	sleep := minSleep

	batch := make([]xsk.Descriptor, 0, forwardBatchSize)
	for ctx.Err() == nil {
		batch = batch[:0]
		n := rx.Receive(&batch)
		for _, d := range batch {
			select {
			case frames <- d:
			default:
				rx.Recycle(d)
			}
		}

		if n > 0 {
			sleep = minSleep
			continue
		}
		if sleep < maxSleep {
			sleep *= 2
		}
		if sleep > time.Microsecond {
			time.Sleep(sleep)
		} else {
			runtime.Gosched()
		}
	}
}

// txLoop batches frames from the rx side and submits them. Frames that do
// not fit in the tx ring stay at the front of the pending batch for the next
// attempt.
func txLoop(ctx context.Context, tx *xsk.TxSocket, frames <-chan xsk.Descriptor) {
	reap := time.NewTicker(100 * time.Microsecond)
	defer reap.Stop()

	pending := make([]xsk.Descriptor, 0, forwardBatchSize)
	for {
		if len(pending) == 0 {
			select {
			case <-ctx.Done():
				return
			case d := <-frames:
				pending = append(pending, d)
			case <-reap.C:
				// Keep reclaiming in-flight frames while idle so the rx
				// side never starves for buffers.
				tx.Reap()
				continue
			}
		}
	drain:
		for len(pending) < forwardBatchSize {
			select {
			case d := <-frames:
				pending = append(pending, d)
			default:
				break drain
			}
		}

		if tx.Send(&pending) == 0 {
			// Ring full; give the kernel a moment to complete in-flight
			// frames before retrying.
			time.Sleep(10 * time.Microsecond)
		}
	}
}

func statsLoop(ctx context.Context, logger *logrus.Logger, rx *xsk.RxSocket) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := rx.Stats()
			if err != nil {
				logger.WithError(err).Warn("failed to read socket statistics")
				continue
			}
			logger.WithFields(logrus.Fields{
				"rx_dropped":       stats.Rx_dropped,
				"rx_invalid_descs": stats.Rx_invalid_descs,
				"tx_invalid_descs": stats.Tx_invalid_descs,
				"rx_ring_full":     stats.Rx_ring_full,
				"rx_fill_empty":    stats.Rx_fill_ring_empty_descs,
				"tx_ring_empty":    stats.Tx_ring_empty_descs,
			}).Info("socket statistics")
		}
	}
}
