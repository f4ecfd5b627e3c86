package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarbstats/econ-cli/internal/monitoring"
	"github.com/sarbstats/econ-cli/internal/pipeline"
)

var (
	statusLookback int
	statusJSON     bool
	statusLimit    int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and pipeline health metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := warehousePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runLog := pipeline.NewRunLog(pool)
		collector := monitoring.NewCollector(runLog)

		metrics, err := collector.Collect(ctx, statusLookback)
		if err != nil {
			return err
		}

		entries, err := runLog.ListAll(ctx)
		if err != nil {
			return err
		}
		if statusLimit > 0 && len(entries) > statusLimit {
			entries = entries[:statusLimit]
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Metrics *monitoring.MetricsSnapshot `json:"metrics"`
				Runs    []pipeline.RunEntry         `json:"runs"`
			}{metrics, entries})
		}

		fmt.Printf("Last %dh: %d runs (%d complete, %d failed, %d running), fail rate %.0f%%\n",
			metrics.LookbackHours, metrics.RunsTotal, metrics.RunsComplete,
			metrics.RunsFailed, metrics.RunsRunning, metrics.RunFailRate*100)
		fmt.Printf("Records: %d landed (%d malformed), %d validated (%d rejected), %d runs annotated\n",
			metrics.Landed, metrics.LandedMalformed, metrics.Validated,
			metrics.ValidationRejected, metrics.Annotated)
		if metrics.LatestSnapshotDate != nil {
			fmt.Printf("Latest snapshot: %s\n", metrics.LatestSnapshotDate.Format("2006-01-02"))
		}

		fmt.Println("\nRecent runs:")
		for _, e := range entries {
			line := fmt.Sprintf("  %s  %-8s  started %s", e.RunID, e.Status, e.StartedAt.Format("2006-01-02 15:04:05"))
			if e.SnapshotDate != nil {
				line += "  snapshot " + e.SnapshotDate.Format("2006-01-02")
			}
			if e.Error != "" {
				line += "  error: " + e.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLookback, "lookback", 24, "metrics lookback window in hours")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "max runs to list")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit JSON instead of text")
	pipelineCmd.AddCommand(statusCmd)
}
