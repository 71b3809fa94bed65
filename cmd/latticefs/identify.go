package main

import (
	"github.com/latticefs/core/pkg/jobs"
	"github.com/latticefs/core/pkg/types"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <location-path>",
	Short: "Hash un-identified file_paths under a location and link them to Objects",
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
		force, _ := cmd.Flags().GetBool("force")

		return submitAndWait(e.Runtime, e.Store, jobs.KindIdentifier, jobs.IdentifierInit{
			LocationID:   loc.ID,
			LocationPath: loc.Path,
			SubPath:      subPath,
		}, force)
	},
}

func init() {
	identifyCmd.Flags().String("subpath", types.RootMaterializedPath, "Materialized sub-path to restrict identification to")
	identifyCmd.Flags().Bool("force", false, "Submit even if an identical job is already queued or running")
}
