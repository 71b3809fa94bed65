package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/latticefs/core/pkg/config"
	"github.com/latticefs/core/pkg/types"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Register a Location resource file",
	Long: `Apply a Location resource describing a filesystem root and its
indexer rules.

Example:
  latticefs apply -f location.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML Location resource to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	res, err := config.LoadLocationResource(filename)
	if err != nil {
		return err
	}

	e, stop, err := openEngine(cmd)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer stop()

	existing, err := e.Store.ListLocations()
	if err != nil {
		return fmt.Errorf("list existing locations: %w", err)
	}
	for _, loc := range existing {
		if loc.Path == res.Spec.Path {
			loc.Rules = res.Spec.IndexerRules()
			if err := e.Store.CreateLocation(loc); err != nil {
				return fmt.Errorf("update location: %w", err)
			}
			fmt.Printf("location updated: %s (id=%d, path=%s)\n", res.Metadata.Name, loc.ID, loc.Path)
			return nil
		}
	}

	id, err := e.Store.NextLocationID()
	if err != nil {
		return fmt.Errorf("allocate location id: %w", err)
	}
	loc := &types.Location{
		ID:    id,
		PubID: uuid.New(),
		Path:  res.Spec.Path,
		Rules: res.Spec.IndexerRules(),
	}
	if err := e.Store.CreateLocation(loc); err != nil {
		return fmt.Errorf("create location: %w", err)
	}
	fmt.Printf("location created: %s (id=%d, path=%s)\n", res.Metadata.Name, loc.ID, loc.Path)
	return nil
}
