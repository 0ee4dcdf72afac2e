package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/viewstate/internal/errors"
	"github.com/vango-dev/viewstate/internal/scenario"
	"github.com/vango-dev/viewstate/pkg/binding"
	"github.com/vango-dev/viewstate/pkg/devtools"
	"github.com/vango-dev/viewstate/pkg/scheduler"
	"github.com/vango-dev/viewstate/pkg/telemetry"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var (
		addr     string
		interval time.Duration
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "serve [scenario...]",
		Short: "Run the devtools server, optionally replaying scenarios",
		Long: `Start the devtools server. Flush telemetry streams over a WebSocket at
/events and Prometheus metrics are exposed at /metrics.

Scenario files given as arguments are replayed every --interval so the
stream has something to show.

Examples:
  viewstate serve
  viewstate serve --addr=:7070 --interval=2s testdata/todo.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch binding.Strategy(strategy) {
			case binding.StrategyDiff, binding.StrategyPatch:
			default:
				return errors.New("E501").WithDetail(fmt.Sprintf("unknown strategy %q", strategy))
			}
			if interval <= 0 {
				return errors.New("E501").WithDetail("--interval must be positive")
			}

			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			logger, closeLog, err := g.logger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()
			if addr == "" {
				addr = cfg.DevAddress()
			}

			scenarios := make([]*scenario.Scenario, 0, len(args))
			for _, path := range args {
				s, err := scenario.Load(path)
				if err != nil {
					return err
				}
				scenarios = append(scenarios, s)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics := telemetry.NewMetrics(telemetry.WithRegistry(reg))

			hub := devtools.NewHub(cfg.Devtools.EventBuffer, logger)
			srv := devtools.NewServer(devtools.ServerConfig{
				Address:  addr,
				Hub:      hub,
				Gatherer: reg,
				Logger:   logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			grp, gctx := errgroup.WithContext(ctx)
			grp.Go(func() error {
				return srv.Run(gctx)
			})
			if len(scenarios) > 0 {
				ro := scenario.RunOptions{
					Logger:  logger,
					Metrics: metrics,
					Tracer:  telemetry.NewTracer(""),
					Debug:   hub.Hook(),
				}
				// Replays run one at a time on this loop's goroutine.
				loop := scheduler.NewLoop()
				grp.Go(func() error {
					_ = loop.Run(gctx)
					return nil
				})
				grp.Go(func() error {
					return replayLoop(gctx, loop, scenarios, binding.Strategy(strategy), interval, hub, ro)
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "devtools on http://%s (events at ws://%s/events)\n", addr, addr)
			return grp.Wait()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 5*time.Second, "Delay between scenario replays")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", string(binding.StrategyPatch), "Engine for replays: diff or patch")
	return cmd
}

// replayLoop posts a replay of every scenario to loop, waits, and repeats
// until ctx ends. Scenario errors are logged and do not stop the server.
func replayLoop(ctx context.Context, loop *scheduler.Loop, scenarios []*scenario.Scenario, strategy binding.Strategy, interval time.Duration, hub *devtools.Hub, ro scenario.RunOptions) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, s := range scenarios {
			var err error
			if loop.Do(ctx, func() {
				hub.Reset(s.Name)
				_, err = scenario.Run(ctx, s, strategy, ro)
			}) != nil {
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				ro.Logger.Warn("scenario replay failed", "scenario", s.Name, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
