package tagging

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited holds calls to a Service to a token-bucket rate.
type Limited struct {
	service Service
	limiter *rate.Limiter
}

// NewLimited allows ratePerSecond calls with the given burst
func NewLimited(s Service, ratePerSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		service: s,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Tag waits for a token, then calls the wrapped service
func (l *Limited) Tag(ctx context.Context, data []byte, mimeType string) ([]Label, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.service.Tag(ctx, data, mimeType)
}
