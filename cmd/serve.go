package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/taxidispatch/app"
	"github.com/kilianp07/taxidispatch/infra/logger"
)

var replica bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a dispatch server, primary by default",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&replica, "replica", false, "start as standby on the replica ports")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.New(cfg, replica)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
