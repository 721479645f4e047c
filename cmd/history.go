package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/taxidispatch/core/journal"
	"github.com/kilianp07/taxidispatch/pkg/export"
)

var (
	histSince  time.Duration
	histAgent  int
	histLimit  int
	histFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print answered requests from the journal",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().DurationVar(&histSince, "since", 0, "only show requests newer than this")
	historyCmd.Flags().IntVar(&histAgent, "agent", -1, "only show requests for this agent")
	historyCmd.Flags().IntVar(&histLimit, "limit", 50, "most recent records to show, 0 for all")
	historyCmd.Flags().StringVar(&histFormat, "format", "table", "output format: table, csv, json or html")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := journal.Open(cfg.Journal)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer store.Close()

	q := journal.Query{Limit: histLimit}
	if histSince > 0 {
		q.Start = time.Now().Add(-histSince)
	}
	if histAgent >= 0 {
		q.AgentID = &histAgent
	}
	recs, err := store.Query(context.Background(), q)
	if err != nil {
		return err
	}
	switch histFormat {
	case "csv":
		return export.WriteCSV(cmd.OutOrStdout(), recs)
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), recs)
	case "html":
		page, err := export.LatencyChartHTML(recs)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), page)
		return err
	case "table":
	default:
		return fmt.Errorf("unknown format %q", histFormat)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tUSER\tPOSITION\tAGENT\tRESULT\tLATENCY")
	for _, r := range recs {
		agent := "-"
		if r.AgentID != nil {
			agent = fmt.Sprint(*r.AgentID)
		}
		result := "granted"
		if !r.Granted {
			result = r.Reason
		}
		fmt.Fprintf(w, "%s\t%d\t(%g,%g)\t%s\t%s\t%.1fms\n",
			r.Timestamp.Format(time.RFC3339), r.UserID, r.X, r.Y, agent, result, r.LatencyMS)
	}
	return w.Flush()
}
