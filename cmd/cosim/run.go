package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/cosim/internal/comm"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/experiment"
	"github.com/san-kum/cosim/internal/monitoring"
	"github.com/san-kum/cosim/internal/protocol"
	"github.com/san-kum/cosim/internal/storage"
	"github.com/san-kum/cosim/internal/tracing"
	"github.com/san-kum/cosim/internal/viz"
)

// newSession builds the session with tracing and, when asked, a monitor.
// The returned cleanup flushes and closes them.
func newSession(cfg *config.Config, withMonitor bool, extra ...experiment.SessionOption) (*experiment.Session, func(), error) {
	opts := append([]experiment.SessionOption{experiment.WithLogger(newLogger())}, extra...)
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	rec, err := experiment.OpenTrace(cfg.Trace)
	if err != nil {
		return nil, cleanup, err
	}
	if rec != nil {
		opts = append(opts, experiment.WithHook(rec))
		cleanups = append(cleanups, func() { closeTrace(rec) })
	}

	if withMonitor && monitorAddr != "" {
		mon := monitoring.NewMonitor(cfg.Problem)
		mon.TrackProgress(cfg.Start, cfg.End)
		if _, err := mon.StartServer(monitorAddr); err != nil {
			cleanup()
			return nil, func() {}, err
		}
		opts = append(opts, experiment.WithHook(mon))
		cleanups = append(cleanups, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			mon.Shutdown(ctx)
		})
	}

	s, err := experiment.NewSession(cfg, experiment.NewRegistry(), opts...)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return s, cleanup, nil
}

func closeTrace(rec *tracing.Recorder) {
	if err := rec.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "trace:", err)
		return
	}
	fmt.Fprintf(os.Stderr, "trace run id: %s\n", rec.RunID())
}

func runLocal(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	s, cleanup, err := newSession(cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s with %s over [%g, %g]...\n", cfg.Problem, cfg.Integrator, cfg.Start, cfg.End)
	res, err := s.RunLocal(ctx)
	if err != nil {
		return err
	}
	return finish(s, res)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	feed := viz.NewFeed(64)
	s, cleanup, err := newSession(cfg, false, experiment.WithHook(feed))
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res *experiment.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.RunLocal(ctx)
		feed.Finish(res.Report, err)
		done <- outcome{res, err}
	}()

	if err := viz.Run(viz.NewModel(feed, cfg.Problem, cfg.Start, cfg.End)); err != nil {
		cancel()
		return err
	}
	// The view is gone; stop the run if the user quit early.
	feed.Stop()
	cancel()

	out := <-done
	if out.err != nil {
		if errors.Is(out.err, context.Canceled) {
			fmt.Println("run canceled")
			return nil
		}
		return out.err
	}
	return finish(s, out.res)
}

func serveMQTT(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	s, cleanup, err := newSession(cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	mq, err := comm.DialMQTT(comm.MQTTConfig{
		URL:      cfg.MQTT.URL,
		ClientID: cfg.MQTT.ClientID + "-controller",
		TopicIn:  cfg.MQTT.TopicIn,
		TopicOut: cfg.MQTT.TopicOut,
	})
	if err != nil {
		return err
	}
	defer mq.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("controller for %s waiting on %s...\n", cfg.Problem, cfg.MQTT.TopicIn)
	res, err := s.Serve(ctx, mq)
	if err != nil {
		return err
	}
	return finish(s, res)
}

func driveMQTT(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	s, cleanup, err := newSession(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	// The driver listens where the controller publishes.
	mq, err := comm.DialMQTT(comm.MQTTConfig{
		URL:      cfg.MQTT.URL,
		ClientID: cfg.MQTT.ClientID + "-driver",
		TopicIn:  cfg.MQTT.TopicOut,
		TopicOut: cfg.MQTT.TopicIn,
	})
	if err != nil {
		return err
	}
	defer mq.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sum, err := s.Drive(ctx, mq)
	if err != nil {
		return err
	}

	fmt.Printf("final: %s\n", viz.FlagBadge(sum.Final))
	fmt.Printf("t: %g\n", sum.Time)
	fmt.Printf("intervals: %d (adjustments %d, continuations %d)\n", sum.Intervals, sum.Adjustments, sum.Continuations)
	if sum.Final == protocol.FlagFailed {
		return errRunFailed
	}
	return nil
}

// finish prints and stores a controller-side result.
func finish(s *experiment.Session, res *experiment.Result) error {
	rep := res.Report

	fmt.Printf("completed in %v\n", res.Duration.Round(time.Microsecond))
	fmt.Printf("final: %s\n", viz.FlagBadge(rep.Final))
	fmt.Printf("t: %g\n", rep.Time)
	fmt.Printf("intervals: %d, turns: %d, sent: %d, received: %d\n", rep.Intervals, rep.Turns, rep.Sent, rep.Received)
	if rep.Cause != nil {
		fmt.Printf("cause: %v\n", rep.Cause)
	}

	if len(res.Metrics) > 0 {
		fmt.Println("\nmetrics:")
		names := make([]string, 0, len(res.Metrics))
		for name := range res.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s: %.6g\n", name, res.Metrics[name])
		}
	}

	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(s.Metadata(res), res.Records)
		if err != nil {
			return err
		}
		fmt.Printf("\nrun id: %s\n", runID)
	}

	if res.Failed() {
		return errRunFailed
	}
	return nil
}
