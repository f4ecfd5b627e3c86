package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sarbstats/econ-cli/internal/config"
	"github.com/sarbstats/econ-cli/internal/insight"
	"github.com/sarbstats/econ-cli/internal/model"
	"github.com/sarbstats/econ-cli/internal/pipeline"
	"github.com/sarbstats/econ-cli/internal/project"
	"github.com/sarbstats/econ-cli/internal/rawstore"
	"github.com/sarbstats/econ-cli/internal/store"
	"github.com/sarbstats/econ-cli/internal/validate"
	"github.com/sarbstats/econ-cli/pkg/anthropic"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Tiered indicator pipeline",
	Long:  "Runs the raw → validated → reporting batch pipeline against the warehouse.",
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}

// warehousePool creates a pgxpool.Pool from the configured database URL.
func warehousePool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "pipeline: ping database")
	}

	fmt.Println("Connected to warehouse")
	return pool, nil
}

// buildAnnotator selects the insight provider: the real Anthropic provider
// when a key is configured, otherwise the explicit null path.
func buildAnnotator(cfg *config.Config) insight.Annotator {
	if cfg.Anthropic.Key == "" {
		return insight.NullProvider{}
	}
	client := anthropic.NewClient(cfg.Anthropic.Key)
	return insight.NewAnthropicProvider(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
}

// buildRunner wires the pipeline runner from configuration.
func buildRunner(ctx context.Context, pool *pgxpool.Pool) (*pipeline.Runner, error) {
	raw := rawstore.New(pool)
	runLog := pipeline.NewRunLog(pool)

	vcfg := validate.Config{
		RollingWindow:    cfg.Pipeline.RollingWindow,
		SourceConfidence: cfg.Pipeline.SourceConfidence,
	}
	pcfg := project.Config{
		StanceAccommodativeBelow: cfg.Scoring.StanceAccommodativeBelow,
		StanceRestrictiveAbove:   cfg.Scoring.StanceRestrictiveAbove,
		InflationTargetMid:       cfg.Scoring.InflationTargetMid,
		HealthBase:               cfg.Scoring.HealthBase,
		GDPWeight:                cfg.Scoring.GDPWeight,
		InflationWeight:          cfg.Scoring.InflationWeight,
		UnemploymentWeight:       cfg.Scoring.UnemploymentWeight,
		UnemploymentOffset:       cfg.Scoring.UnemploymentOffset,
		PMIExpansion:             cfg.Scoring.PMIExpansion,
		PMIBonus:                 cfg.Scoring.PMIBonus,
		RiskMediumAbove:          cfg.Scoring.RiskMediumAbove,
		RiskHighAbove:            cfg.Scoring.RiskHighAbove,
	}

	runner := pipeline.NewRunner(pool, raw, buildAnnotator(cfg), runLog, cfg.Pipeline.Name, vcfg, pcfg)

	if cfg.Store.SQLitePath != "" {
		local, err := store.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := local.Migrate(ctx); err != nil {
			return nil, err
		}
		runner.WithExport(local)
	}

	return runner, nil
}

// parseSkipStages converts a comma-separated stage list into the skip set.
func parseSkipStages(raw string) (map[model.StageName]bool, error) {
	skip := make(map[model.StageName]bool)
	if raw == "" {
		return skip, nil
	}
	for _, s := range strings.Split(raw, ",") {
		name := model.StageName(strings.TrimSpace(s))
		switch name {
		case model.StageLand, model.StageValidate, model.StageProject, model.StageAnnotate:
			skip[name] = true
		default:
			return nil, eris.Errorf("unknown stage %q (valid: land, validate, project, annotate)", s)
		}
	}
	return skip, nil
}
