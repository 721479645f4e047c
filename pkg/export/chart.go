package export

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/taxidispatch/core/journal"
)

// LatencyChartHTML renders the response time of each journal record as an
// HTML line chart. Granted and denied requests are separate series; a record
// missing from a series is left as a gap.
func LatencyChartHTML(recs []journal.Record) (string, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Dispatch response time"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Latency (ms)"}),
	)

	xAxis := make([]string, 0, len(recs))
	granted := make([]opts.LineData, 0, len(recs))
	denied := make([]opts.LineData, 0, len(recs))
	for _, r := range recs {
		xAxis = append(xAxis, r.Timestamp.Format("2006-01-02 15:04:05"))
		if r.Granted {
			granted = append(granted, opts.LineData{Value: r.LatencyMS})
			denied = append(denied, opts.LineData{Value: "-"})
		} else {
			granted = append(granted, opts.LineData{Value: "-"})
			denied = append(denied, opts.LineData{Value: r.LatencyMS})
		}
	}
	line.SetXAxis(xAxis).
		AddSeries("granted", granted).
		AddSeries("denied", denied)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return "", fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.String(), nil
}
