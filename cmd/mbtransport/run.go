// cmd/mbtransport/run.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tamzrod/modbus-transport/internal/config"
	"github.com/tamzrod/modbus-transport/internal/endpoint"
	"github.com/tamzrod/modbus-transport/internal/manager"
	"github.com/tamzrod/modbus-transport/internal/poller"
	"github.com/tamzrod/modbus-transport/internal/status"
	"github.com/tamzrod/modbus-transport/internal/writer"
)

type runFlags struct {
	configFile string
}

func newRunCmd(g *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll sources and mirror them into targets until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.configFile == "" && len(args) > 0 {
				flags.configFile = args[0]
			}
			logger, err := g.logger()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(flags.configFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPipelines(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&flags.configFile, "config", "", "Path to the YAML configuration (required)")
	return cmd
}

// managerOptions maps the transport section onto manager options.
func managerOptions(t config.TransportConfig) manager.Options {
	opts := manager.DefaultOptions()
	opts.SchedulerWorkers = t.SchedulerWorkers
	opts.CallbackWorkers = t.CallbackWorkers
	opts.MonitorInterval = t.MonitorInterval()
	opts.QueueWarnThreshold = t.QueueWarnThreshold
	return opts
}

// applyEndpointOverrides installs per-endpoint pool configurations.
func applyEndpointOverrides(m *manager.Manager, eps []config.EndpointConfig) error {
	for _, e := range eps {
		ep, err := endpoint.Parse(e.URL)
		if err != nil {
			return err
		}
		pc := e.PoolConfig(endpoint.DefaultPoolConfig(ep.Kind))
		m.SetPoolConfig(ep, &pc)
	}
	return nil
}

// runPipelines wires one poller, data writer and optional status writer per unit
// and blocks until ctx is done.
func runPipelines(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	m := manager.New(logger, managerOptions(cfg.Transport))
	defer m.Close()

	if err := applyEndpointOverrides(m, cfg.Transport.Endpoints); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(cfg.Transport.Units))

	for _, unit := range cfg.Transport.Units {
		p, err := poller.Build(unit, m, logger)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("poller build failed (unit=%s): %w", unit.ID, err)
		}

		plan, err := writer.BuildPlan(unit)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("writer plan failed (unit=%s): %w", unit.ID, err)
		}

		dataWriter := writer.New(plan, m, logger)
		statusWriter, statusEnabled := writer.NewDeviceStatusWriter(plan, m, logger)

		out := make(chan poller.PollResult)
		ulog := logger.With().Str("unit", unit.ID).Logger()

		wg.Add(2)
		go func() {
			defer wg.Done()
			orchestrate(ctx, out, dataWriter, statusWriter, statusEnabled, ulog)
		}()
		go func() {
			defer wg.Done()
			if err := p.Run(ctx, out); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}

	logger.Info().Int("units", len(cfg.Transport.Units)).Msg("running")

	<-ctx.Done()
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	logger.Info().Msg("stopped")
	return nil
}

// orchestrate owns the unit's status tracker: poll results drive it and a 1 Hz tick
// advances seconds_in_error.
func orchestrate(
	ctx context.Context,
	in <-chan poller.PollResult,
	dataWriter writer.Writer,
	statusWriter writer.StatusWriter,
	statusEnabled bool,
	logger zerolog.Logger,
) {
	tracker := status.NewTracker()

	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	writeStatus := func(reason string) {
		if !statusEnabled {
			return
		}
		if err := statusWriter.WriteStatus(tracker.Snapshot()); err != nil {
			logger.Warn().Err(err).Str("reason", reason).Msg("status write failed")
		}
	}

	// identity re-assert on start
	writeStatus("start")

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-in:
			if err := dataWriter.Write(res); err != nil {
				logger.Error().Err(err).Msg("writer error")
			}
			if tracker.Observe(res.Err) {
				s := tracker.Snapshot()
				logger.Debug().
					Str("health", status.HealthString(s.Health)).
					Uint16("last_error", s.LastErrorCode).
					Msg("status changed")
				writeStatus("poll")
			}

		case <-secTicker.C:
			if tracker.Tick() {
				writeStatus("tick")
			}
		}
	}
}
