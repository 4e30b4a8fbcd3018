package reconcile

import (
	"errors"
	"fmt"
)

// Stages an asset can fail in
const (
	StageReadSidecar = "read-sidecar"
	StageReadAsset   = "read-asset"
	StageTags        = "tags"
	StageEncode      = "encode"
	StageWrite       = "write"
)

// ErrNoTagger is returned when tags are requested without a tag service
var ErrNoTagger = errors.New("no tag service configured")

// errPassStopped skips a queued write once an abort-on-error pass has failed
var errPassStopped = errors.New("pass stopped")

// ItemError is the failure of one asset in a pass.
type ItemError struct {
	Asset string
	Stage string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Asset, e.Stage, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

func errItem(asset, stage string, err error) *ItemError {
	return &ItemError{Asset: asset, Stage: stage, Err: err}
}
