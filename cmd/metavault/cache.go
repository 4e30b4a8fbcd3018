package main

import (
	"fmt"
	"strings"

	"github.com/FairForge/metavault/internal/batch"
	"github.com/FairForge/metavault/internal/catalog"
	"github.com/FairForge/metavault/internal/props"
	"github.com/FairForge/metavault/internal/search"
	"github.com/FairForge/metavault/internal/sidecar"
	"github.com/FairForge/metavault/internal/store"
	"github.com/spf13/cobra"
)

func thumbsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "thumbs [dir]",
		Short: "Warm the property and thumbnail cache",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := a.openFolder(ctx, firstArg(args))
			if err != nil {
				return err
			}
			entries, err := f.Entries(ctx)
			if err != nil {
				return err
			}

			s, err := store.Open(ctx, a.cfg.StoreOptions(), a.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			c := batch.NewCoalescer(s, a.logger,
				batch.WithMetrics(a.metrics),
				batch.WithOpTimeout(a.cfg.Cache.OpTimeout))
			defer c.Close()

			cache := props.NewFromCoalescer(f, c, batch.NewMemoizer(c, a.metrics), a.cfg.PropsOptions(), a.logger)
			stats, err := cache.Warm(ctx, catalog.Classify(entries).Assets, a.cfg.Cache.WarmConcurrency)
			fmt.Fprintf(cmd.OutOrStdout(), "hits: %d\ncomputed: %d\nfailed: %d\nskipped: %d\n",
				stats.Hits, stats.Computed, stats.Failed, stats.Skipped)
			return err
		},
	}
}

func searchCommand(a *app) *cobra.Command {
	var by, order string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Fuzzy search assets by name and tags, or sort them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := a.openFolder(ctx, "")
			if err != nil {
				return err
			}
			items, _, err := catalog.Load(ctx, f, a.cfg.Reconcile.LoadConcurrency)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if query := firstArg(args); query != "" {
				for _, r := range search.Search(items, query) {
					fmt.Fprintf(out, "%.3f  %s  %s\n", r.Score, r.Item.Entry.Name, strings.Join(r.Item.Record.Tags(), ","))
				}
				return nil
			}

			sortBy, err := search.ParseBy(by)
			if err != nil {
				return err
			}
			sortOrder, err := search.ParseOrder(order)
			if err != nil {
				return err
			}
			search.Sort(items, sortBy, sortOrder)
			for _, it := range items {
				fmt.Fprintln(out, it.Entry.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&by, "sort", "name", "Sort key without a query: name, size, lastModified")
	cmd.Flags().StringVar(&order, "order", "asc", "Sort order: asc or desc")
	return cmd
}

func verifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [dir]",
		Short: "Validate every sidecar and report orphans",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := a.openFolder(ctx, firstArg(args))
			if err != nil {
				return err
			}
			items, c, err := catalog.Load(ctx, f, a.cfg.Reconcile.LoadConcurrency)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			problems := 0
			for _, it := range items {
				switch it.Kind {
				case sidecar.KindEmpty:
					continue
				case sidecar.KindLegacy:
					problems++
					fmt.Fprintf(out, "legacy   %s\n", it.Entry.Name)
					continue
				}
				if err := sidecar.Validate(it.Entry.Name, it.Record); err != nil {
					problems++
					fmt.Fprintf(out, "invalid  %s: %v\n", it.Entry.Name, err)
				}
			}
			for _, o := range c.Orphans() {
				problems++
				fmt.Fprintf(out, "orphan   %s\n", o.Name)
			}

			if problems > 0 {
				return fmt.Errorf("%d problems found", problems)
			}
			fmt.Fprintf(out, "ok: %d assets, %d sidecars\n", len(c.Assets), len(c.Sidecars))
			return nil
		},
	}
}
