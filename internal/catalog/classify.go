// Package catalog groups a folder listing into assets and their sidecars.
package catalog

import (
	"sort"

	"github.com/FairForge/metavault/internal/folder"
	"github.com/FairForge/metavault/internal/sidecar"
)

// Classification is the result of Classify. Every slice is sorted by name.
type Classification struct {
	Assets               []folder.Entry
	Sidecars             []folder.Entry
	AssetsMissingSidecar []folder.Entry
}

// Classify splits a flat listing into assets and sidecars. Directories are
// ignored.
func Classify(entries []folder.Entry) Classification {
	var c Classification
	owners := make(map[string]bool)

	for _, e := range entries {
		if e.IsDir {
			continue
		}
		if owner, ok := sidecar.AssetName(e.Name); ok {
			c.Sidecars = append(c.Sidecars, e)
			owners[owner] = true
			continue
		}
		c.Assets = append(c.Assets, e)
	}

	sortByName(c.Assets)
	sortByName(c.Sidecars)

	for _, a := range c.Assets {
		if !owners[a.Name] {
			c.AssetsMissingSidecar = append(c.AssetsMissingSidecar, a)
		}
	}
	return c
}

// Orphans returns sidecars whose asset is not in the listing.
func (c Classification) Orphans() []folder.Entry {
	assets := make(map[string]bool, len(c.Assets))
	for _, a := range c.Assets {
		assets[a.Name] = true
	}

	var orphans []folder.Entry
	for _, s := range c.Sidecars {
		owner, _ := sidecar.AssetName(s.Name)
		if !assets[owner] {
			orphans = append(orphans, s)
		}
	}
	return orphans
}

// Targets returns the assets a pass should visit.
func (c Classification) Targets(skipIfSidecarExists bool) []folder.Entry {
	if skipIfSidecarExists {
		return c.AssetsMissingSidecar
	}
	return c.Assets
}

func sortByName(entries []folder.Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
}
