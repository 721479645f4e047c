package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/taxidispatch/infra/logger"
	"github.com/kilianp07/taxidispatch/infra/mqtt"
	"github.com/kilianp07/taxidispatch/simulator"
)

var (
	agentID    int
	agentCount int
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run simulated taxis",
	RunE:  runAgents,
}

func init() {
	agentCmd.Flags().IntVar(&agentID, "id", 1, "id of the first agent")
	agentCmd.Flags().IntVar(&agentCount, "count", 1, "number of agents with consecutive ids")
	rootCmd.AddCommand(agentCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	if agentID < 0 || agentCount < 1 {
		return fmt.Errorf("invalid --id %d or --count %d", agentID, agentCount)
	}
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logg := logger.New("agent")
	client, err := mqtt.NewClient(cfg.PublisherMQTT(""), logg)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()
	pub := mqtt.NewFeedPublisher(client)

	g, gctx := errgroup.WithContext(ctx)
	for id := agentID; id < agentID+agentCount; id++ {
		n := cfg.Network
		a := simulator.NewAgent(id, n.Bind(n.AgentPort(id)), n.AgentAddress(id), cfg.Agent, pub, logg)
		g.Go(func() error { return a.Run(gctx) })
	}
	return g.Wait()
}
