// Package reconcile fills missing sidecar fields for the assets of a folder.
//
// A pass visits its targets one at a time in name order. For each asset it
// reads the sidecar (tolerating absent, empty and legacy content), computes
// only the requested fields that are absent, and writes the sidecar only
// when the merged record differs from what was read. Writes run on a
// bounded commit queue so a slow write does not hold up the next asset;
// the pass returns after every write it queued has finished.
package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/FairForge/metavault/internal/catalog"
	"github.com/FairForge/metavault/internal/derive"
	"github.com/FairForge/metavault/internal/folder"
	"github.com/FairForge/metavault/internal/metrics"
	"github.com/FairForge/metavault/internal/sidecar"
	"github.com/FairForge/metavault/internal/tagging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Policy decides what a pass does after an asset fails.
type Policy int

const (
	// PolicyAbortOnError stops the pass at the first failure.
	PolicyAbortOnError Policy = iota
	// PolicyContinueOnError records failures and keeps going.
	PolicyContinueOnError
)

func (p Policy) String() string {
	if p == PolicyContinueOnError {
		return "continue-on-error"
	}
	return "abort-on-error"
}

// Status is the outcome of a pass.
type Status int

const (
	StatusCompleted Status = iota
	StatusNothingToDo
	StatusPartialFailure
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusNothingToDo:
		return "nothing-to-do"
	case StatusPartialFailure:
		return "partial-failure"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Options control one pass
type Options struct {
	SkipIfSidecarExists bool
	Policy              Policy
}

// Progress is reported once per finished asset. Completed increases by
// exactly one between consecutive reports of a pass.
type Progress struct {
	Pass      string
	Completed int
	Target    int
	Asset     string
	Written   bool
}

// ProgressFunc receives progress reports. Calls are serialized; the
// function should return quickly.
type ProgressFunc func(Progress)

// Result summarizes a pass. Err is set only when Status is StatusAborted.
type Result struct {
	Pass      string
	Status    Status
	Target    int
	Written   int
	Satisfied int
	Failed    []*ItemError
	Err       error
}

// OK reports whether the pass finished without failures
func (r Result) OK() bool {
	return r.Status == StatusCompleted || r.Status == StatusNothingToDo
}

// Config tunes a Reconciler
type Config struct {
	CommitWorkers  int
	CommitCapacity int
	TagUploadSize  int
}

func (c *Config) applyDefaults() {
	if c.CommitWorkers <= 0 {
		c.CommitWorkers = 2
	}
	if c.CommitCapacity <= 0 {
		c.CommitCapacity = 16
	}
	if c.TagUploadSize <= 0 {
		c.TagUploadSize = 500
	}
}

// Reconciler runs passes over one folder. It is safe for concurrent passes;
// writes to the same sidecar never overlap.
type Reconciler struct {
	folder  folder.Folder
	tagger  tagging.Service
	config  Config
	queue   *CommitQueue
	locks   *folder.PathLocks
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a Reconciler. tagger may be nil when tags are never
// requested; m may be nil.
func New(f folder.Folder, tagger tagging.Service, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	cfg.applyDefaults()
	return &Reconciler{
		folder:  f,
		tagger:  tagger,
		config:  cfg,
		queue:   NewCommitQueue(cfg.CommitCapacity, cfg.CommitWorkers, logger),
		locks:   folder.NewPathLocks(),
		metrics: m,
		logger:  logger,
	}
}

// Close stops the commit workers after queued writes finish
func (r *Reconciler) Close() {
	r.queue.Close()
}

type pass struct {
	id         string
	policy     Policy
	target     int
	onProgress ProgressFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	completed int
	written   int
	satisfied int
	failed    []*ItemError
}

func (p *pass) complete(asset string, written bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.completed++
	if written {
		p.written++
	} else {
		p.satisfied++
	}
	if p.onProgress != nil {
		p.onProgress(Progress{
			Pass:      p.id,
			Completed: p.completed,
			Target:    p.target,
			Asset:     asset,
			Written:   written,
		})
	}
}

func (p *pass) fail(e *ItemError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e)
}

func (p *pass) stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.policy == PolicyAbortOnError && len(p.failed) > 0
}

// Run reconciles the assets of entries, a flat listing of one folder.
// Sidecars in the listing decide SkipIfSidecarExists and are never targets
// themselves.
func (r *Reconciler) Run(ctx context.Context, entries []folder.Entry, fields Fields, opts Options, onProgress ProgressFunc) Result {
	targets := catalog.Classify(entries).Targets(opts.SkipIfSidecarExists)
	p := &pass{
		id:         uuid.NewString(),
		policy:     opts.Policy,
		target:     len(targets),
		onProgress: onProgress,
	}
	logger := r.logger.With(zap.String("pass", p.id))

	if len(targets) == 0 {
		return r.finish(p, nil, logger)
	}

	logger.Info("reconcile started",
		zap.Int("target", len(targets)),
		zap.String("fields", fields.String()),
		zap.String("policy", opts.Policy.String()))

	var passErr error
	for _, e := range targets {
		if err := ctx.Err(); err != nil {
			passErr = err
			break
		}
		if p.stopped() {
			break
		}

		content, write, ierr := r.prepare(ctx, e, fields, logger)
		if ierr != nil {
			if err := ctx.Err(); err != nil {
				passErr = err
				break
			}
			r.metrics.IncAsset("failed")
			p.fail(ierr)
			logger.Warn("asset failed", zap.Error(ierr))
			continue
		}
		if !write {
			r.metrics.IncAsset("satisfied")
			p.complete(e.Name, false)
			continue
		}
		settled := r.commit(ctx, p, e.Name, content)
		if p.policy == PolicyAbortOnError {
			// a failed write stops the pass before the next asset is prepared
			<-settled
		}
	}

	p.wg.Wait()
	return r.finish(p, passErr, logger)
}

// commit queues the write of one sidecar. The returned channel is closed
// once the write has been accounted for.
func (r *Reconciler) commit(ctx context.Context, p *pass, asset, content string) <-chan struct{} {
	name := sidecar.Name(asset)
	settled := make(chan struct{})

	p.wg.Add(1)
	err := r.queue.Enqueue(ctx, func() error {
		unlock := r.locks.Lock(name)
		defer unlock()
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.stopped() {
			return errPassStopped
		}
		return r.folder.WriteSidecar(ctx, asset, content)
	}, func(err error) {
		defer close(settled)
		defer p.wg.Done()
		switch {
		case errors.Is(err, errPassStopped):
			return
		case err != nil:
			r.metrics.IncAsset("failed")
			p.fail(errItem(asset, StageWrite, err))
			return
		}
		r.metrics.IncAsset("written")
		p.complete(asset, true)
	})
	if err != nil {
		p.wg.Done()
		p.fail(errItem(asset, StageWrite, err))
		close(settled)
	}
	return settled
}

func (r *Reconciler) finish(p *pass, passErr error, logger *zap.Logger) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := Result{
		Pass:      p.id,
		Target:    p.target,
		Written:   p.written,
		Satisfied: p.satisfied,
		Failed:    p.failed,
	}

	switch {
	case passErr != nil:
		res.Status = StatusAborted
		res.Err = passErr
	case p.target == 0:
		res.Status = StatusNothingToDo
	case len(p.failed) > 0 && p.policy == PolicyAbortOnError:
		res.Status = StatusAborted
		res.Err = p.failed[0]
	case len(p.failed) > 0:
		res.Status = StatusPartialFailure
	default:
		res.Status = StatusCompleted
	}

	r.metrics.IncPass(res.Status.String())
	logger.Info("reconcile finished",
		zap.String("status", res.Status.String()),
		zap.Int("target", res.Target),
		zap.Int("written", res.Written),
		zap.Int("satisfied", res.Satisfied),
		zap.Int("failed", len(res.Failed)),
		zap.Error(res.Err))
	return res
}

// prepare builds the merged sidecar for e. write is false when the merged
// record equals the one read.
func (r *Reconciler) prepare(ctx context.Context, e folder.Entry, fields Fields, logger *zap.Logger) (string, bool, *ItemError) {
	raw, err := r.folder.ReadSidecar(ctx, e.Name)
	if err != nil && !errors.Is(err, folder.ErrNotFound) {
		return "", false, errItem(e.Name, StageReadSidecar, err)
	}

	parsed := sidecar.Parse(raw)
	if parsed.Kind == sidecar.KindLegacy {
		logger.Warn("keeping legacy sidecar content under oldContent",
			zap.String("asset", e.Name))
	}

	out := parsed.Record.Clone()
	if err := out.Set(sidecar.FieldName, e.Name); err != nil {
		return "", false, errItem(e.Name, StageEncode, err)
	}

	if len(fields.Missing(out)) > 0 {
		if err := ctx.Err(); err != nil {
			return "", false, errItem(e.Name, StageReadAsset, err)
		}
		data, err := r.folder.ReadAsset(ctx, e.Name)
		if err != nil {
			return "", false, errItem(e.Name, StageReadAsset, err)
		}
		if ierr := r.fill(ctx, e, data, fields, out, logger); ierr != nil {
			return "", false, ierr
		}
	}

	if parsed.Record.Equal(out) {
		return "", false, nil
	}

	if err := sidecar.Validate(e.Name, out); err != nil {
		logger.Warn("sidecar does not match schema", zap.Error(err))
	}

	content, err := sidecar.Encode(out)
	if err != nil {
		return "", false, errItem(e.Name, StageEncode, err)
	}
	return content, true, nil
}

// fill sets requested fields absent from out. Dimension and color failures
// leave the field unset for a later pass; a tag failure fails the asset.
func (r *Reconciler) fill(ctx context.Context, e folder.Entry, data []byte, fields Fields, out sidecar.Record, logger *zap.Logger) *ItemError {
	set := func(field string, v any) *ItemError {
		if _, err := out.SetIfAbsent(field, v); err != nil {
			return errItem(e.Name, StageEncode, err)
		}
		return nil
	}

	if fields.Type {
		if ierr := set(sidecar.FieldType, e.Type); ierr != nil {
			return ierr
		}
	}
	if fields.LastModified {
		if ierr := set(sidecar.FieldLastModified, e.LastModified); ierr != nil {
			return ierr
		}
	}
	if fields.Size {
		if ierr := set(sidecar.FieldSize, e.Size); ierr != nil {
			return ierr
		}
	}

	if !derive.Supported(e.Type) {
		return nil
	}

	if fields.Dimensions && !out.Has(sidecar.FieldDimensions) {
		dims, err := derive.Dimensions(data, e.Type)
		if err != nil {
			logger.Warn("dimensions unavailable", zap.String("asset", e.Name), zap.Error(err))
		} else if ierr := set(sidecar.FieldDimensions, dims); ierr != nil {
			return ierr
		}
	}

	if fields.AverageColor && !out.Has(sidecar.FieldAverageColor) {
		c, err := derive.AverageColor(data, e.Type)
		if err != nil {
			logger.Warn("average color unavailable", zap.String("asset", e.Name), zap.Error(err))
		} else if ierr := set(sidecar.FieldAverageColor, c); ierr != nil {
			return ierr
		}
	}

	if fields.Tags && !out.Has(sidecar.FieldTags) {
		if err := ctx.Err(); err != nil {
			return errItem(e.Name, StageTags, err)
		}
		labels, err := r.tag(ctx, e, data, logger)
		if err != nil {
			return errItem(e.Name, StageTags, err)
		}
		if ierr := set(sidecar.FieldTags, tagging.Descriptions(labels)); ierr != nil {
			return ierr
		}
		// older sidecars carry the whole {status, data} envelope here
		if ierr := set(sidecar.FieldTagsRaw, labels); ierr != nil {
			return ierr
		}
	}
	return nil
}

// tag uploads a downscaled copy of the image, or the original bytes when
// downscaling fails.
func (r *Reconciler) tag(ctx context.Context, e folder.Entry, data []byte, logger *zap.Logger) ([]tagging.Label, error) {
	if r.tagger == nil {
		return nil, ErrNoTagger
	}

	upload, uploadType := data, e.Type
	small, smallType, err := derive.Downscale(data, r.config.TagUploadSize, e.Type)
	if err != nil {
		logger.Debug("downscale failed, uploading original",
			zap.String("asset", e.Name),
			zap.Error(err))
	} else {
		upload, uploadType = small, smallType
	}

	labels, err := r.tagger.Tag(ctx, upload, uploadType)
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = []tagging.Label{}
	}
	return labels, nil
}
