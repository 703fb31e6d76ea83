package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/agent"
	"github.com/openlares/openlares-sub000/internal/config"
	"github.com/openlares/openlares-sub000/internal/db"
	"github.com/openlares/openlares-sub000/internal/events"
	"github.com/openlares/openlares-sub000/internal/executor"
	"github.com/openlares/openlares-sub000/internal/metrics"
)

const shutdownTimeout = time.Minute

var (
	serveAgentID     string
	serveProjects    []string
	serveMetricsAddr string
	serveBackend     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the executor with metrics and the stale-claim sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applyExecutorFlags(cmd)

		bus := events.NewBus(256)
		defer bus.Close()
		bus.SubscribeAll(func(e events.Event) {
			log.Printf("event: %s %v", e.Type, e.Data)
		})

		if err := connectDB(ctx, db.WithPublisher(bus)); err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec := metrics.NewRecorder(reg)

		ex, err := newExecutor(ctx, cfg, bus, rec)
		if err != nil {
			return err
		}

		if cfg.Serve.MetricsAddr != "" {
			srv := metricsServer(cfg.Serve.MetricsAddr, reg)
			go func() {
				log.Printf("serve: metrics on %s/metrics", cfg.Serve.MetricsAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Printf("serve: metrics server: %v", err)
				}
			}()
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
		}

		sweeper, err := startSweep(ctx, cfg, rec)
		if err != nil {
			return err
		}
		defer sweeper.Stop()

		if err := ex.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		log.Println("serve: shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return ex.Stop(sctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	for _, c := range []*cobra.Command{serveCmd, runCmd} {
		c.Flags().StringVar(&serveAgentID, "agent-id", "", "agent identity used for claims (default: executor.agent_id)")
		c.Flags().StringSliceVar(&serveProjects, "project", nil, "only work these projects (repeatable)")
		c.Flags().StringVar(&serveBackend, "backend", "", "agent backend: gateway, anthropic, ollama or cli")
	}
	rootCmd.AddCommand(serveCmd)
}

// applyExecutorFlags folds executor flags into the configuration overrides.
// It must run before connectDB loads the configuration.
func applyExecutorFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if !flags.Changed("agent-id") && !flags.Changed("project") && !flags.Changed("backend") && !flags.Changed("metrics-addr") {
		return
	}
	c, err := loadConfig()
	if err != nil {
		return
	}
	if flags.Changed("agent-id") {
		c.Executor.AgentID = serveAgentID
	}
	if flags.Changed("project") {
		c.Executor.Projects = serveProjects
	}
	if flags.Changed("backend") {
		c.Agent.Backend = serveBackend
	}
	if flags.Changed("metrics-addr") {
		c.Serve.MetricsAddr = serveMetricsAddr
	}
}

// agentConfig maps the agent section of the configuration to a client
// configuration. The default gateway URL is not passed to other backends.
func agentConfig(c config.AgentConfig) agent.Config {
	ac := agent.Config{
		Backend:   c.Backend,
		URL:       c.URL,
		Token:     c.Token,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Command:   c.Command,
		WorkDir:   c.WorkDir,
		Timeout:   c.RequestTimeoutDuration(),
	}
	if c.Backend != agent.BackendGateway && c.URL == config.DefaultConfig().Agent.URL {
		ac.URL = ""
	}
	if c.Backend == agent.BackendAnthropic && ac.Token == "" {
		ac.Token = os.Getenv("ANTHROPIC_API_KEY")
	}
	return ac
}

// newExecutor builds an executor from the configuration.
func newExecutor(ctx context.Context, c *config.Config, pub events.Publisher, rec *metrics.Recorder) (*executor.Executor, error) {
	client, err := agent.New(agentConfig(c.Agent))
	if err != nil {
		return nil, fmt.Errorf("configuring agent: %w", err)
	}

	var projectIDs []string
	for _, ref := range c.Executor.Projects {
		p, err := store.ResolveProject(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolving project %q: %w", ref, err)
		}
		projectIDs = append(projectIDs, p.ID)
	}

	return executor.New(store, client, executor.Options{
		AgentID:          c.Executor.AgentID,
		ProjectIDs:       projectIDs,
		PollInterval:     c.Executor.PollIntervalDuration(),
		ExecutionTimeout: c.Executor.ExecutionTimeoutDuration(),
		HistoryTimeout:   c.Executor.HistoryTimeoutDuration(),
		Logger:           log.Default(),
		Events:           pub,
		Metrics:          rec,
	}), nil
}

// startSweep schedules the stale-claim sweep.
func startSweep(ctx context.Context, c *config.Config, rec *metrics.Recorder) (*cron.Cron, error) {
	timeout := c.Executor.ExecutionTimeoutDuration()
	msg := executor.TimeoutMessage(timeout)

	sched := cron.New()
	_, err := sched.AddFunc(c.Serve.SweepSchedule, func() {
		n, err := store.ExpireStaleClaims(ctx, timeout, msg)
		if err != nil {
			log.Printf("sweep: expiring stale claims: %v", err)
			return
		}
		if n > 0 {
			rec.Expired(n)
			log.Printf("sweep: expired %d stale claim(s)", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling sweep %q: %w", c.Serve.SweepSchedule, err)
	}
	sched.Start()
	return sched, nil
}

func metricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}
