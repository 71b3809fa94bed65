package main

import (
	"fmt"

	"github.com/latticefs/core/pkg/catalog"
	"github.com/latticefs/core/pkg/types"
)

// findLocationByPath resolves a registered Location by its filesystem path,
// the identity an operator types at the command line; the catalog itself
// keys locations by integer id.
func findLocationByPath(store catalog.Store, path string) (*types.Location, error) {
	locs, err := store.ListLocations()
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	for _, loc := range locs {
		if loc.Path == path {
			return loc, nil
		}
	}
	return nil, fmt.Errorf("no registered location with path %q; run `latticefs apply -f <resource.yaml>` first", path)
}
