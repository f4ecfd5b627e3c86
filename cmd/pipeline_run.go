package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sarbstats/econ-cli/internal/model"
	"github.com/sarbstats/econ-cli/internal/pipeline"
)

var (
	runFile   string
	runFetch  bool
	runSource string
	runSkip   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a full pipeline run",
	Long:  "Lands the input batch, then validates, projects, and annotates. Stages can be skipped per run with --skip.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		skipFlag := runSkip
		if skipFlag == "" && len(cfg.Pipeline.SkipStages) > 0 {
			skipFlag = strings.Join(cfg.Pipeline.SkipStages, ",")
		}
		skip, err := parseSkipStages(skipFlag)
		if err != nil {
			return err
		}

		var obs []model.Observation
		tag := runSource
		if !skip[model.StageLand] {
			if runFile == "" && !runFetch {
				// Land with no input is a revalidation run over existing raw data.
				skip[model.StageLand] = true
			} else {
				obs, tag, err = gatherObservations(cmd, runFile, runFetch, runSource)
				if err != nil {
					return err
				}
			}
		}

		pool, err := warehousePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runner, err := buildRunner(ctx, pool)
		if err != nil {
			return err
		}

		report, err := runner.Run(ctx, pipeline.RunConfig{
			Observations: obs,
			SourceTag:    tag,
			SkipStages:   skip,
		})
		if err != nil {
			if eris.Is(err, pipeline.ErrRunInFlight) {
				return eris.New("run: another run holds the pipeline lock, try again later")
			}
			return err
		}

		printReport(report)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "CSV or XLSX file to land")
	runCmd.Flags().BoolVar(&runFetch, "fetch", false, "fetch observations from the SARB web API")
	runCmd.Flags().StringVar(&runSource, "source", "", "source tag recorded on landed rows")
	runCmd.Flags().StringVar(&runSkip, "skip", "", "comma-separated stages to skip (land,validate,project,annotate)")
	pipelineCmd.AddCommand(runCmd)
}

func printReport(report *model.RunReport) {
	fmt.Printf("Run %s: %s in %s\n", report.RunID, report.Status, report.Elapsed.Round(time.Millisecond))
	for _, st := range report.Stages {
		if st.Skipped {
			fmt.Printf("  %-10s skipped\n", st.Stage)
			continue
		}
		fmt.Printf("  %-10s accepted=%d rejected=%d\n", st.Stage, st.Accepted, st.Rejected)
	}
	if report.SnapshotDate != nil {
		fmt.Printf("Snapshot date: %s\n", report.SnapshotDate.Format("2006-01-02"))
	}
	if report.Annotated {
		fmt.Println("Insight annotation attached")
	}
}
