package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarbstats/econ-cli/internal/rawstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply warehouse schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := warehousePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := rawstore.Migrate(ctx, pool); err != nil {
			return err
		}

		fmt.Println("Migrations applied")
		return nil
	},
}

func init() {
	pipelineCmd.AddCommand(migrateCmd)
}
