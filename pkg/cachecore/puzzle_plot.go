package cachecore

// puzzle_plot.go implements the plot merge contract: plots have no defined
// merge operation, so puzzling is only legal when exactly one input part
// exists; anything else is Unsupported.

import "github.com/umr-dbs/mapping-cache/internal/cacheerr"

func mergePlot(parts []resolvedPart) (Artifact, error) {
	if len(parts) != 1 {
		return nil, cacheerr.New(cacheerr.Unsupported, "mergePlot", nil)
	}
	if _, ok := parts[0].artifact.(PlotArtifact); !ok {
		return nil, cacheerr.New(cacheerr.Unsupported, "mergePlot", nil)
	}
	return parts[0].artifact, nil
}
