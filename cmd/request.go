package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/infra/logger"
	"github.com/kilianp07/taxidispatch/infra/transport"
	"github.com/kilianp07/taxidispatch/simulator"
)

var (
	userID       int
	userX        float64
	userY        float64
	reqTimeout   time.Duration
	userCount    int
	loadDuration time.Duration
	burstEvery   time.Duration
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Ask for a taxi at a position",
	Long: `Ask for a taxi at a position. With --count above one or a --duration,
run that many concurrent users at random grid positions instead, repeating
the burst until the duration elapses, and print a summary.`,
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().IntVar(&userID, "user", 1, "user id, the first id in load mode")
	requestCmd.Flags().Float64Var(&userX, "x", 0, "x position")
	requestCmd.Flags().Float64Var(&userY, "y", 0, "y position")
	requestCmd.Flags().DurationVar(&reqTimeout, "timeout", 30*time.Second, "reply timeout per server")
	requestCmd.Flags().IntVar(&userCount, "count", 1, "concurrent users per burst")
	requestCmd.Flags().DurationVar(&loadDuration, "duration", 0, "keep firing bursts for this long")
	requestCmd.Flags().DurationVar(&burstEvery, "burst", 500*time.Millisecond, "pause between bursts")
	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	if userCount < 1 || loadDuration < 0 {
		return fmt.Errorf("invalid --count %d or --duration %s", userCount, loadDuration)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n := cfg.Network
	cli := transport.NewRequestClient(reqTimeout, n.PrimaryRequestAddr(), n.ReplicaRequestAddr())

	if userCount > 1 || loadDuration > 0 {
		ctx, stop := signalContext()
		defer stop()
		grid := cfg.Agent
		grid.SetDefaults()
		rep, err := simulator.RunUsers(ctx, simulator.LoadConfig{
			Users:      userCount,
			Duration:   loadDuration,
			Interval:   burstEvery,
			FirstID:    userID,
			GridWidth:  grid.GridWidth,
			GridHeight: grid.GridHeight,
		}, cli, logger.New("users"))
		if werr := rep.Write(cmd.OutOrStdout()); werr != nil {
			return werr
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*reqTimeout)
	defer cancel()
	reply, err := cli.Request(ctx, model.ServiceRequest{Version: model.RequestSchemaVersion, UserID: userID, X: userX, Y: userY})
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
	return err
}
