package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sarbstats/econ-cli/internal/fetcher"
	"github.com/sarbstats/econ-cli/internal/model"
	"github.com/sarbstats/econ-cli/internal/rawstore"
)

var (
	landFile   string
	landFetch  bool
	landSource string
)

var landCmd = &cobra.Command{
	Use:   "land",
	Short: "Append observations to the raw store without running the pipeline",
	Long:  "Lands a batch into the raw layer only. Use `pipeline run` to land and process in one go.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		obs, tag, err := gatherObservations(cmd, landFile, landFetch, landSource)
		if err != nil {
			return err
		}

		pool, err := warehousePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		raw := rawstore.New(pool)
		result, err := raw.Land(ctx, obs, tag)
		if err != nil {
			return err
		}

		fmt.Printf("Landed %d observations (%d duplicates flagged, %d malformed)\n",
			result.Accepted, result.Duplicates, len(result.Malformed))
		for _, rej := range result.Malformed {
			fmt.Printf("  rejected %s: %s\n", rej.Identity, rej.Reason)
		}
		return nil
	},
}

func init() {
	landCmd.Flags().StringVar(&landFile, "file", "", "CSV or XLSX file to land")
	landCmd.Flags().BoolVar(&landFetch, "fetch", false, "fetch observations from the SARB web API")
	landCmd.Flags().StringVar(&landSource, "source", "", "source tag recorded on landed rows (default derived from input)")
	pipelineCmd.AddCommand(landCmd)
}

// gatherObservations resolves the input batch from --file or --fetch.
func gatherObservations(cmd *cobra.Command, file string, fetch bool, source string) ([]model.Observation, string, error) {
	if file != "" && fetch {
		return nil, "", eris.New("land: --file and --fetch are mutually exclusive")
	}

	switch {
	case file != "":
		obs, err := fetcher.LoadFile(file)
		if err != nil {
			return nil, "", err
		}
		tag := source
		if tag == "" {
			tag = "file:" + file
		}
		return obs, tag, nil

	case fetch:
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.MaxRetries,
		})
		client := fetcher.NewSARBClient(f, cfg.Fetch.BaseURL, cfg.Fetch.Concurrency)
		obs, err := client.FetchAll(cmd.Context())
		if err != nil {
			return nil, "", err
		}
		tag := source
		if tag == "" {
			tag = "sarb_api"
		}
		return obs, tag, nil

	default:
		return nil, "", eris.New("land: one of --file or --fetch is required")
	}
}
