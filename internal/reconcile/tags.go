package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/FairForge/metavault/internal/folder"
	"github.com/FairForge/metavault/internal/sidecar"
	"go.uber.org/zap"
)

// ErrNoTags is returned by AddTags when every given tag is blank
var ErrNoTags = errors.New("no tags given")

// AddTagsResult summarizes an AddTags call
type AddTagsResult struct {
	Written   int
	Unchanged int
	Failed    []*ItemError
}

// AddTags merges tags into the sidecar of every asset. The stored list
// becomes the union of existing and new tags, existing order first, without
// duplicates. Missing or unreadable sidecars are created or wrapped the
// same way a pass treats them. A failed asset does not stop the others.
func (r *Reconciler) AddTags(ctx context.Context, assets []string, tags []string) (AddTagsResult, error) {
	var res AddTagsResult

	added := unionTags(nil, tags)
	if len(added) == 0 {
		return res, ErrNoTags
	}

	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		written, ierr := r.addTags(ctx, asset, added)
		switch {
		case ierr != nil:
			r.logger.Warn("add tags failed", zap.Error(ierr))
			res.Failed = append(res.Failed, ierr)
		case written:
			res.Written++
		default:
			res.Unchanged++
		}
	}

	r.logger.Info("tags added",
		zap.Strings("tags", added),
		zap.Int("written", res.Written),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

// addTags holds the sidecar lock across the read-modify-write so it never
// interleaves with a pass committing the same sidecar.
func (r *Reconciler) addTags(ctx context.Context, asset string, added []string) (bool, *ItemError) {
	unlock := r.locks.Lock(sidecar.Name(asset))
	defer unlock()

	raw, err := r.folder.ReadSidecar(ctx, asset)
	if err != nil && !errors.Is(err, folder.ErrNotFound) {
		return false, errItem(asset, StageReadSidecar, err)
	}

	parsed := sidecar.Parse(raw)
	out := parsed.Record.Clone()
	if err := out.Set(sidecar.FieldTags, unionTags(out.Tags(), added)); err != nil {
		return false, errItem(asset, StageEncode, err)
	}
	if parsed.Kind != sidecar.KindEmpty && parsed.Record.Equal(out) {
		return false, nil
	}

	content, err := sidecar.Encode(out)
	if err != nil {
		return false, errItem(asset, StageEncode, err)
	}
	if err := r.folder.WriteSidecar(ctx, asset, content); err != nil {
		return false, errItem(asset, StageWrite, err)
	}
	return true, nil
}

// unionTags appends the trimmed, non-blank tags of added that are not in
// existing yet.
func unionTags(existing, added []string) []string {
	out := make([]string, 0, len(existing)+len(added))
	seen := make(map[string]bool, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
