package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/FairForge/metavault/internal/catalog"
	"github.com/FairForge/metavault/internal/folder"
	"github.com/FairForge/metavault/internal/reconcile"
	"github.com/FairForge/metavault/internal/sidecar"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func classifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [dir]",
		Short: "List assets, sidecars and assets without a sidecar",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.openFolder(cmd.Context(), firstArg(args))
			if err != nil {
				return err
			}
			entries, err := f.Entries(cmd.Context())
			if err != nil {
				return err
			}

			c := catalog.Classify(entries)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "assets: %d\nsidecars: %d\nmissing sidecar: %d\n",
				len(c.Assets), len(c.Sidecars), len(c.AssetsMissingSidecar))
			for _, e := range c.AssetsMissingSidecar {
				fmt.Fprintf(out, "  %s\n", e.Name)
			}
			if orphans := c.Orphans(); len(orphans) > 0 {
				fmt.Fprintf(out, "orphan sidecars: %d\n", len(orphans))
				for _, e := range orphans {
					fmt.Fprintf(out, "  %s\n", e.Name)
				}
			}
			return nil
		},
	}
}

type reconcileFlags struct {
	fields          string
	skipExisting    bool
	continueOnError bool
	quiet           bool
}

func (fl *reconcileFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&fl.fields, "fields", "", `Fields to fill: "quick", "full" or a comma list`)
	cmd.Flags().BoolVar(&fl.skipExisting, "skip-existing", false, "Only visit assets without a sidecar")
	cmd.Flags().BoolVar(&fl.continueOnError, "continue-on-error", false, "Keep going after a failed asset")
	cmd.Flags().BoolVarP(&fl.quiet, "quiet", "q", false, "Do not print progress")
}

// options merges flags over the configured defaults
func (fl *reconcileFlags) options(a *app) (reconcile.Fields, reconcile.Options, error) {
	names := fl.fields
	if names == "" {
		names = a.cfg.Reconcile.Fields
	}
	fields, err := reconcile.ParseFields(names)
	if err != nil {
		return reconcile.Fields{}, reconcile.Options{}, err
	}

	opts := reconcile.Options{
		SkipIfSidecarExists: fl.skipExisting || a.cfg.Reconcile.SkipExisting,
		Policy:              reconcile.PolicyAbortOnError,
	}
	if fl.continueOnError || a.cfg.Reconcile.ContinueOnError {
		opts.Policy = reconcile.PolicyContinueOnError
	}
	return fields, opts, nil
}

func reconcileCommand(a *app) *cobra.Command {
	var fl reconcileFlags

	cmd := &cobra.Command{
		Use:   "reconcile [dir]",
		Short: "Fill missing sidecar fields for every asset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fields, opts, err := fl.options(a)
			if err != nil {
				return err
			}

			f, err := a.openFolder(ctx, firstArg(args))
			if err != nil {
				return err
			}
			tagger, err := newTagger(a.cfg.Tagging, a.metrics)
			if err != nil {
				return err
			}

			r := reconcile.New(f, tagger, a.cfg.ReconcilerConfig(), a.metrics, a.logger)
			defer r.Close()

			res, err := runPass(ctx, r, f, fields, opts, progressPrinter(cmd.OutOrStdout(), fl.quiet))
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), res)
		},
	}

	fl.bind(cmd)
	return cmd
}

func runPass(ctx context.Context, r *reconcile.Reconciler, f folder.Folder, fields reconcile.Fields, opts reconcile.Options, onProgress reconcile.ProgressFunc) (reconcile.Result, error) {
	entries, err := f.Entries(ctx)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("list folder: %w", err)
	}
	return r.Run(ctx, entries, fields, opts, onProgress), nil
}

func progressPrinter(w io.Writer, quiet bool) reconcile.ProgressFunc {
	if quiet {
		return nil
	}
	return func(p reconcile.Progress) {
		mark := " "
		if p.Written {
			mark = "*"
		}
		fmt.Fprintf(w, "[%d/%d] %s %s\n", p.Completed, p.Target, mark, p.Asset)
	}
}

// report prints the outcome of a pass. Aborted and partially failed passes
// return an error so the process exits non-zero.
func report(w io.Writer, res reconcile.Result) error {
	switch res.Status {
	case reconcile.StatusNothingToDo:
		fmt.Fprintln(w, "nothing to do")
		return nil
	case reconcile.StatusCompleted:
		fmt.Fprintf(w, "done: %d assets, %d sidecars written\n", res.Target, res.Written)
		return nil
	case reconcile.StatusPartialFailure:
		fmt.Fprintf(w, "done with failures: %d assets, %d sidecars written, %d failed\n",
			res.Target, res.Written, len(res.Failed))
		for _, e := range res.Failed {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return fmt.Errorf("%d of %d assets failed", len(res.Failed), res.Target)
	default:
		fmt.Fprintf(w, "FATAL: pass aborted after %d sidecars written\n", res.Written)
		if res.Err != nil {
			return fmt.Errorf("reconcile aborted: %w", res.Err)
		}
		return errors.New("reconcile aborted")
	}
}

func watchCommand(a *app) *cobra.Command {
	var fl reconcileFlags
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Reconcile new assets as they appear in a local folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fl.skipExisting = true
			fields, opts, err := fl.options(a)
			if err != nil {
				return err
			}

			f, err := a.openFolder(ctx, firstArg(args))
			if err != nil {
				return err
			}
			w, ok := f.(folder.Watcher)
			if !ok {
				return errors.New("watch needs a local folder")
			}
			tagger, err := newTagger(a.cfg.Tagging, a.metrics)
			if err != nil {
				return err
			}

			r := reconcile.New(f, tagger, a.cfg.ReconcilerConfig(), a.metrics, a.logger)
			defer r.Close()

			out := cmd.OutOrStdout()
			pass := func() {
				res, err := runPass(ctx, r, f, fields, opts, progressPrinter(out, fl.quiet))
				if err == nil {
					err = report(out, res)
				}
				if err != nil && ctx.Err() == nil {
					a.logger.Warn("watch pass failed", zap.Error(err))
				}
			}

			events, errs, err := w.Watch(ctx)
			if err != nil {
				return err
			}
			pass()
			return watchLoop(ctx, events, errs, debounce, pass, a.logger)
		},
	}

	fl.bind(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before a pass runs")
	return cmd
}

// watchLoop runs pass once events on assets have been quiet for debounce.
// Sidecar writes and deletions are ignored so passes do not retrigger
// themselves.
func watchLoop(ctx context.Context, events <-chan folder.WatchEvent, errs <-chan error, debounce time.Duration, pass func(), logger *zap.Logger) error {
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type == folder.WatchEventDelete || sidecar.IsSidecar(ev.Name) {
				continue
			}
			logger.Debug("asset changed",
				zap.String("asset", ev.Name),
				zap.Stringer("event", ev.Type))
			timer.Reset(debounce)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			pass()
		}
	}
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func tagsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Edit tags of selected assets",
	}
	cmd.AddCommand(tagsAddCommand(a))
	return cmd
}

func tagsAddCommand(a *app) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "add <dir> <asset>...",
		Short: "Add tags to the sidecars of the given assets",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := a.openFolder(ctx, args[0])
			if err != nil {
				return err
			}

			r := reconcile.New(f, nil, a.cfg.ReconcilerConfig(), a.metrics, a.logger)
			defer r.Close()

			res, err := r.AddTags(ctx, args[1:], tags)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tagged: %d written, %d unchanged, %d failed\n",
				res.Written, res.Unchanged, len(res.Failed))
			for _, e := range res.Failed {
				fmt.Fprintf(out, "  %s\n", e)
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d of %d assets failed", len(res.Failed), len(args)-1)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tag to add, repeatable or comma separated")
	return cmd
}
