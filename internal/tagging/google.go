package tagging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// GoogleVisionEndpoint is the images:annotate URL
const GoogleVisionEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// GoogleVision labels images with Cloud Vision LABEL_DETECTION.
type GoogleVision struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	HTTPClient *http.Client
}

// NewGoogleVision creates a provider using apiKey
func NewGoogleVision(apiKey string, httpClient *http.Client) *GoogleVision {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultClientTimeout}
	}
	return &GoogleVision{
		APIKey:     apiKey,
		Endpoint:   GoogleVisionEndpoint,
		MaxResults: 100,
		HTTPClient: httpClient,
	}
}

type visionFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionAnnotateRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionRequest struct {
	Requests []visionAnnotateRequest `json:"requests"`
}

type visionResponse struct {
	Responses []struct {
		LabelAnnotations []struct {
			Description string  `json:"description"`
			Score       float64 `json:"score"`
		} `json:"labelAnnotations"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (g *GoogleVision) Tag(ctx context.Context, data []byte, mimeType string) ([]Label, error) {
	if g.APIKey == "" {
		return nil, errService(ProviderGoogle, 0, "", ErrNoCredentials)
	}

	body := visionRequest{Requests: []visionAnnotateRequest{{
		Image:    visionImage{Content: base64.StdEncoding.EncodeToString(data)},
		Features: []visionFeature{{Type: "LABEL_DETECTION", MaxResults: g.MaxResults}},
	}}}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode vision request: %w", err)
	}

	endpoint := g.Endpoint + "?key=" + url.QueryEscape(g.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, errService(ProviderGoogle, 0, "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errService(ProviderGoogle, resp.StatusCode, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errService(ProviderGoogle, resp.StatusCode, string(raw), nil)
	}

	var out visionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errService(ProviderGoogle, resp.StatusCode, "invalid response body", err)
	}
	if len(out.Responses) == 0 {
		return nil, errService(ProviderGoogle, resp.StatusCode, "empty response", nil)
	}
	first := out.Responses[0]
	if first.Error != nil {
		return nil, errService(ProviderGoogle, resp.StatusCode, first.Error.Message, nil)
	}

	labels := make([]Label, 0, len(first.LabelAnnotations))
	for _, a := range first.LabelAnnotations {
		labels = append(labels, Label{Description: a.Description, Score: a.Score})
	}
	return labels, nil
}
