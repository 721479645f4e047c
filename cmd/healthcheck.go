package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/taxidispatch/core/health"
	coremetrics "github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/infra/logger"
	"github.com/kilianp07/taxidispatch/infra/metrics"
	"github.com/kilianp07/taxidispatch/infra/transport"
)

var healthCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe the primary and activate the replica when it stops answering",
	RunE:  runHealthcheck,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logg := logger.New("health")
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}
	if cfg.Metrics.PrometheusAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, cfg.Metrics.PrometheusAddr, logg); err != nil {
				logg.Errorf("prom server: %v", err)
			}
		}()
	}

	target := cfg.Network.PrimaryHealthAddr()
	mon := health.NewMonitor(target,
		transport.NewProbeClient(target),
		transport.NewActivationClient(cfg.Network.ActivationAddr()),
		cfg.Health, logg)
	mon.SetMetricsSink(sink)
	return mon.Run(ctx)
}
