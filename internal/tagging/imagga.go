package tagging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// ImaggaEndpoint is the v2 tagging URL
const ImaggaEndpoint = "https://api.imagga.com/v2/tags"

// Imagga labels images with the Imagga tagging API. Imagga reports
// confidence in 0..100; scores are normalized to 0..1.
type Imagga struct {
	APIKey     string
	APISecret  string
	Endpoint   string
	HTTPClient *http.Client
}

// NewImagga creates a provider authenticating with key and secret
func NewImagga(key, secret string, httpClient *http.Client) *Imagga {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultClientTimeout}
	}
	return &Imagga{
		APIKey:     key,
		APISecret:  secret,
		Endpoint:   ImaggaEndpoint,
		HTTPClient: httpClient,
	}
}

type imaggaResponse struct {
	Result struct {
		Tags []struct {
			Confidence float64           `json:"confidence"`
			Tag        map[string]string `json:"tag"`
		} `json:"tags"`
	} `json:"result"`
	Status struct {
		Text string `json:"text"`
		Type string `json:"type"`
	} `json:"status"`
}

func (i *Imagga) Tag(ctx context.Context, data []byte, mimeType string) ([]Label, error) {
	if i.APIKey == "" || i.APISecret == "" {
		return nil, errService(ProviderImagga, 0, "", ErrNoCredentials)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "image")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.Endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create imagga request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(i.APIKey, i.APISecret)

	resp, err := i.HTTPClient.Do(req)
	if err != nil {
		return nil, errService(ProviderImagga, 0, "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errService(ProviderImagga, resp.StatusCode, "", err)
	}

	var out imaggaResponse
	jsonErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := out.Status.Text
		if jsonErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, errService(ProviderImagga, resp.StatusCode, msg, nil)
	}
	if jsonErr != nil {
		return nil, errService(ProviderImagga, resp.StatusCode, "invalid response body", jsonErr)
	}
	if out.Status.Type == "error" {
		return nil, errService(ProviderImagga, resp.StatusCode, out.Status.Text, nil)
	}

	labels := make([]Label, 0, len(out.Result.Tags))
	for _, t := range out.Result.Tags {
		labels = append(labels, Label{Description: t.Tag["en"], Score: t.Confidence / 100})
	}
	return labels, nil
}
