package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ezenkico/deploy-commander/sequencer/metrics"
	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services/agent"
	"github.com/ezenkico/deploy-commander/sequencer/services/docker"
	"github.com/ezenkico/deploy-commander/sequencer/services/probe"
	"github.com/ezenkico/deploy-commander/sequencer/services/sequencer"
)

func newUpCommand(a *app) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start every service in dependency order, gating on health checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.up(cmd.Context(), cmd.OutOrStdout(), verify)
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "probe the published ports from the host once the stack is up")
	cmd.Flags().StringVar(&a.cfg.MetricsAddr, "metrics-addr", a.cfg.MetricsAddr, "serve Prometheus metrics on this address while running (env METRICS_ADDR)")

	return cmd
}

func (a *app) up(ctx context.Context, out io.Writer, verify bool) error {
	d, err := a.loadDeployment()
	if err != nil {
		return err
	}

	run := a.runConfiguration(d, models.ActionUp)
	logger := a.runLogger(run)

	p, err := docker.NewDockerPlatform(run, logger)
	if err != nil {
		return fmt.Errorf("connect docker: %w", err)
	}
	defer p.Close()

	if err := p.Ping(ctx); err != nil {
		return err
	}

	opts, err := a.sequencerOptions()
	if err != nil {
		return err
	}

	if a.cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, sequencer.WithMetrics(metrics.NewSequencer(reg)))

		srv := metrics.NewServer(a.cfg.MetricsAddr, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", a.cfg.MetricsAddr).Msg("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	seq := sequencer.New(p, run, logger, opts...)

	logger.Info().Int("services", len(d.Services)).Msg("starting stack")
	results, err := seq.Start(ctx, d)
	printResults(out, results)
	if a.cfg.AgentEndpoint != "" {
		a.reportRunEvents(ctx, out, logger, run.Run)
	}
	if err != nil {
		return err
	}

	if verify {
		return verifyDeployment(ctx, out, logger, d, results)
	}
	return nil
}

type eventLister interface {
	ListEvents(ctx context.Context, run uuid.UUID, service *string) ([]models.ServiceEvent, error)
}

// reportRunEvents prints what the agent recorded for this run. The agent is
// informational, so failures are only logged.
func (a *app) reportRunEvents(ctx context.Context, out io.Writer, logger zerolog.Logger, run uuid.UUID) {
	ac, err := agent.NewAgentCommunication(a.cfg.AgentEndpoint, a.cfg.Token)
	if err != nil {
		logger.Warn().Err(err).Msg("agent unavailable")
		return
	}
	if err := printRunEvents(ctx, out, ac, run); err != nil {
		logger.Warn().Err(err).Msg("list run events")
	}
}

func printRunEvents(ctx context.Context, out io.Writer, l eventLister, run uuid.UUID) error {
	events, err := l.ListEvents(ctx, run, nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "agent recorded %d events for run %s\n", len(events), run)

	services := []string{}
	byService := map[string][]string{}
	for _, ev := range events {
		if _, ok := byService[ev.Service]; !ok {
			services = append(services, ev.Service)
		}
		byService[ev.Service] = append(byService[ev.Service], string(ev.Type))
	}
	for _, svc := range services {
		fmt.Fprintf(out, "  %s: %s\n", svc, strings.Join(byService[svc], " -> "))
	}
	return nil
}

func printResults(out io.Writer, results []models.StartResult) {
	if len(results) == 0 {
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tCONTAINER\tPORTS\tHEALTHY\tWAITED")
	for _, r := range results {
		id := r.ContainerID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Service, id, formatPorts(r.Ports), formatHealthy(r), r.WaitedFor.Round(time.Millisecond))
	}
	tw.Flush()
}

func formatPorts(ports map[int]int) string {
	if len(ports) == 0 {
		return "-"
	}
	container := make([]int, 0, len(ports))
	for c := range ports {
		container = append(container, c)
	}
	sort.Ints(container)

	parts := make([]string, 0, len(container))
	for _, c := range container {
		parts = append(parts, fmt.Sprintf("%d->%d", ports[c], c))
	}
	return strings.Join(parts, ",")
}

func formatHealthy(r models.StartResult) string {
	switch {
	case r.Healthy:
		return "yes"
	case r.Attempts > 0:
		return fmt.Sprintf("no (%d attempts)", r.Attempts)
	default:
		return "n/a"
	}
}

// verifyDeployment checks every started service with a published port from
// the host: postgres services must accept connections, the others must
// answer HTTP.
func verifyDeployment(ctx context.Context, out io.Writer, logger zerolog.Logger, d models.Deployment, results []models.StartResult) error {
	for _, r := range results {
		svc, ok := d.Service(r.Service)
		if !ok || len(svc.Bindings) == 0 {
			continue
		}
		b := svc.Bindings[0]
		port, ok := r.HostPort(b.ContainerPort)
		if !ok {
			continue
		}
		host := probeHost(b)

		if isPostgres(svc) {
			if err := probe.PostgresReady(ctx, postgresDSN(svc, host, port), probe.DefaultBackoff); err != nil {
				return fmt.Errorf("verify %q: %w", svc.Name, err)
			}
			fmt.Fprintf(out, "%s: postgres accepting connections on %s:%d\n", svc.Name, host, port)
			continue
		}

		url := fmt.Sprintf("http://%s:%d/", host, port)
		status, err := probe.HTTPReachable(ctx, url, probe.DefaultBackoff)
		if err != nil {
			return fmt.Errorf("verify %q: %w", svc.Name, err)
		}
		logger.Info().Str("service", svc.Name).Str("url", url).Int("status", status).Msg("service reachable")
		fmt.Fprintf(out, "%s: %s answered %d\n", svc.Name, url, status)
	}
	return nil
}

func probeHost(b models.BindingSpec) string {
	if b.HostIP == "" || b.HostIP == "0.0.0.0" || b.HostIP == "::" {
		return "localhost"
	}
	return b.HostIP
}

func isPostgres(svc models.ServiceDescriptor) bool {
	if _, ok := svc.Environment["POSTGRES_DB"]; ok {
		return true
	}
	return strings.HasPrefix(svc.Image, "postgres:") || svc.Image == "postgres"
}

func postgresDSN(svc models.ServiceDescriptor, host string, port int) string {
	env := func(key, fallback string) string {
		if v := svc.Environment[key]; v != "" {
			return v
		}
		return fallback
	}
	user := env("POSTGRES_USER", "postgres")
	return probe.PostgresDSN(host, port, user, env("POSTGRES_PASSWORD", ""), env("POSTGRES_DB", user))
}
