package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/FairForge/metavault/internal/folder"
	"github.com/FairForge/metavault/internal/sidecar"
	"golang.org/x/sync/errgroup"
)

// Item is an asset with its parsed sidecar. Kind is KindEmpty when the
// asset has no sidecar yet.
type Item struct {
	Entry  folder.Entry
	Record sidecar.Record
	Kind   sidecar.ParseKind
}

// Load lists f and reads the sidecar of every asset, reading up to
// concurrency sidecars at a time. Items keep asset name order.
func Load(ctx context.Context, f folder.Folder, concurrency int) ([]Item, Classification, error) {
	entries, err := f.Entries(ctx)
	if err != nil {
		return nil, Classification{}, err
	}
	c := Classify(entries)

	if concurrency < 1 {
		concurrency = 1
	}

	items := make([]Item, len(c.Assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, a := range c.Assets {
		items[i].Entry = a
		g.Go(func() error {
			content, err := f.ReadSidecar(gctx, a.Name)
			if errors.Is(err, folder.ErrNotFound) {
				items[i].Record = sidecar.Record{}
				items[i].Kind = sidecar.KindEmpty
				return nil
			}
			if err != nil {
				return fmt.Errorf("load %s: %w", a.Name, err)
			}
			parsed := sidecar.Parse(content)
			items[i].Record = parsed.Record
			items[i].Kind = parsed.Kind
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, c, err
	}
	return items, c, nil
}
