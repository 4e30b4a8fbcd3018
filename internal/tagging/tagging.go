// Package tagging turns image bytes into descriptive labels.
package tagging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FairForge/metavault/internal/metrics"
)

// Provider names
const (
	ProviderGoogle = "google"
	ProviderImagga = "imagga"
	ProviderDummy  = "dummy"
	ProviderRemote = "remote"
)

// Label is one tag with a confidence score in 0..1
type Label struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Service produces labels for an image, ordered as the provider returns them.
type Service interface {
	Tag(ctx context.Context, data []byte, mimeType string) ([]Label, error)
}

// ServiceFunc adapts a function to Service
type ServiceFunc func(ctx context.Context, data []byte, mimeType string) ([]Label, error)

func (f ServiceFunc) Tag(ctx context.Context, data []byte, mimeType string) ([]Label, error) {
	return f(ctx, data, mimeType)
}

// ErrNoCredentials is returned when a provider is used without its keys.
var ErrNoCredentials = errors.New("tag provider credentials not configured")

// ServiceError is a failed call to a tag provider.
type ServiceError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("tag service %s: status %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("tag service %s: %s", e.Provider, msg)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func errService(provider string, status int, message string, err error) error {
	return &ServiceError{Provider: provider, StatusCode: status, Message: message, Err: err}
}

// Descriptions returns the label descriptions in order. They become the
// sidecar "tags"; "tagsRaw" holds the labels themselves, not the
// {status, data} response envelope that older sidecars stored.
func Descriptions(labels []Label) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, l.Description)
	}
	return out
}

// Instrumented records latency and outcome of every call through s.
func Instrumented(s Service, provider string, m *metrics.Metrics) Service {
	return ServiceFunc(func(ctx context.Context, data []byte, mimeType string) ([]Label, error) {
		start := time.Now()
		labels, err := s.Tag(ctx, data, mimeType)
		m.ObserveTag(provider, time.Since(start).Seconds(), err)
		return labels, err
	})
}
