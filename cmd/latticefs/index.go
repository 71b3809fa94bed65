package main

import (
	"fmt"

	"github.com/latticefs/core/pkg/jobs"
	"github.com/latticefs/core/pkg/types"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index <location-path>",
	Short: "Walk a registered location and submit an indexer job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, stop, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer stop()

		loc, err := findLocationByPath(e.Store, args[0])
		if err != nil {
			return err
		}

		subPath, _ := cmd.Flags().GetString("subpath")
		full, _ := cmd.Flags().GetBool("full")
		force, _ := cmd.Flags().GetBool("force")

		return submitAndWait(e.Runtime, e.Store, jobs.KindIndexer, jobs.IndexerInit{
			LocationID:   loc.ID,
			LocationPath: loc.Path,
			Rules:        loc.Rules,
			SubPath:      subPath,
			Full:         full,
		}, force)
	},
}

func init() {
	indexCmd.Flags().String("subpath", types.RootMaterializedPath, "Materialized sub-path to restrict the walk to")
	indexCmd.Flags().Bool("full", false, "Walk the whole subtree recursively instead of only the sub-path's immediate entries")
	indexCmd.Flags().Bool("force", false, "Submit even if an identical job is already queued or running")
}
