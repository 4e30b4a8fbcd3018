package sidecar

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError lists schema violations of a record.
type ValidationError struct {
	Asset  string
	Errors []string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("sidecar %s failed validation: %s", e.Asset, strings.Join(e.Errors, "; "))
}

func WrapError(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

var ErrTrailingData = errors.New("trailing data after JSON value")
