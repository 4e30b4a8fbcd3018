package tagging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultClientTimeout bounds one call to a tag server
const DefaultClientTimeout = 120 * time.Second

// envelope is the response body of /api/identifyTags
type envelope struct {
	Status  string  `json:"status"`
	Data    []Label `json:"data,omitempty"`
	Message string  `json:"message,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Client calls a remote tag server.
type Client struct {
	Endpoint   string
	UseImagga  bool
	HTTPClient *http.Client
}

// NewClient creates a client for the tag server at endpoint
func NewClient(endpoint string, useImagga bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Client{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		UseImagga:  useImagga,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Tag posts the raw image bytes and decodes the label envelope.
func (c *Client) Tag(ctx context.Context, data []byte, mimeType string) ([]Label, error) {
	url := c.Endpoint + "/api/identifyTags"
	if c.UseImagga {
		url += "?useImagga=1"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create tag request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errService(ProviderRemote, 0, "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errService(ProviderRemote, resp.StatusCode, "", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errService(ProviderRemote, resp.StatusCode, "invalid response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || env.Status != statusSuccess {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, errService(ProviderRemote, resp.StatusCode, msg, nil)
	}
	if env.Data == nil {
		env.Data = []Label{}
	}
	return env.Data, nil
}
