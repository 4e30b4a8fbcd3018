package tagging

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/FairForge/metavault/internal/metrics"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var catLabels = []Label{{Description: "cat", Score: 0.92}}

func fixed(labels []Label, err error) Service {
	return ServiceFunc(func(ctx context.Context, data []byte, mimeType string) ([]Label, error) {
		return labels, err
	})
}

func TestGoogleVision_Tag(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("POST", `=~^https://vision\.googleapis\.com/v1/images:annotate`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "secret", req.URL.Query().Get("key"))

			var body visionRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			require.Len(t, body.Requests, 1)
			assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("img")), body.Requests[0].Image.Content)
			assert.Equal(t, "LABEL_DETECTION", body.Requests[0].Features[0].Type)
			assert.Equal(t, 100, body.Requests[0].Features[0].MaxResults)

			return httpmock.NewStringResponse(http.StatusOK,
				`{"responses":[{"labelAnnotations":[{"description":"cat","score":0.92},{"description":"pet","score":0.8}]}]}`), nil
		})

	g := NewGoogleVision("secret", client)
	labels, err := g.Tag(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, []Label{{"cat", 0.92}, {"pet", 0.8}}, labels)
}

func TestGoogleVision_Errors(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	_, err := NewGoogleVision("", client).Tag(context.Background(), nil, "image/png")
	assert.ErrorIs(t, err, ErrNoCredentials)

	httpmock.RegisterResponder("POST", `=~^https://vision\.googleapis\.com`,
		httpmock.NewStringResponder(http.StatusForbidden, `{"error":{"message":"bad key"}}`))

	_, err = NewGoogleVision("k", client).Tag(context.Background(), []byte("x"), "image/png")
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ProviderGoogle, se.Provider)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}

func TestImagga_Tag(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("POST", ImaggaEndpoint,
		func(req *http.Request) (*http.Response, error) {
			user, pass, ok := req.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "key", user)
			assert.Equal(t, "secret", pass)

			file, _, err := req.FormFile("image")
			require.NoError(t, err)
			data, _ := io.ReadAll(file)
			assert.Equal(t, []byte("img"), data)

			return httpmock.NewStringResponse(http.StatusOK,
				`{"result":{"tags":[{"confidence":92,"tag":{"en":"cat"}},{"confidence":50.5,"tag":{"en":"animal"}}]},"status":{"text":"","type":"success"}}`), nil
		})

	labels, err := NewImagga("key", "secret", client).Tag(context.Background(), []byte("img"), "image/jpeg")
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, "cat", labels[0].Description)
	assert.InDelta(t, 0.92, labels[0].Score, 1e-9)
	assert.InDelta(t, 0.505, labels[1].Score, 1e-9)
}

func TestImagga_ErrorStatus(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder("POST", ImaggaEndpoint,
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"status":{"text":"invalid credentials","type":"error"}}`))

	_, err := NewImagga("key", "secret", client).Tag(context.Background(), []byte("img"), "image/jpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestDummy(t *testing.T) {
	d := NewDummy(7)
	for i := 0; i < 20; i++ {
		labels, err := d.Tag(context.Background(), nil, "image/png")
		require.NoError(t, err)
		require.NotEmpty(t, labels)
		assert.LessOrEqual(t, len(labels), 25)

		names := Descriptions(labels)
		assert.True(t, sort.StringsAreSorted(names))
		seen := map[string]bool{}
		for _, l := range labels {
			assert.False(t, seen[l.Description], "duplicate %s", l.Description)
			seen[l.Description] = true
			assert.Equal(t, 1.0, l.Score)
		}
	}

	a, _ := NewDummy(1).Tag(context.Background(), nil, "")
	b, _ := NewDummy(1).Tag(context.Background(), nil, "")
	assert.Equal(t, a, b)
}

func TestLimited(t *testing.T) {
	calls := 0
	inner := ServiceFunc(func(ctx context.Context, data []byte, mimeType string) ([]Label, error) {
		calls++
		return catLabels, nil
	})
	l := NewLimited(inner, 0.001, 1)

	_, err := l.Tag(context.Background(), nil, "image/png")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Tag(ctx, nil, "image/png")
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestInstrumented(t *testing.T) {
	m := metrics.New()
	s := Instrumented(fixed(nil, errors.New("down")), ProviderGoogle, m)
	_, err := s.Tag(context.Background(), nil, "image/png")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagRequests.WithLabelValues(ProviderGoogle, "error")))
}

func newTestServer(t *testing.T, primary, imagga Service, maxBody int64) *httptest.Server {
	t.Helper()
	s := NewServer(ServerConfig{MaxBodyBytes: maxBody}, primary, imagga, metrics.New(), zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestClientAgainstServer(t *testing.T) {
	var gotType string
	primary := ServiceFunc(func(ctx context.Context, data []byte, mimeType string) ([]Label, error) {
		gotType = mimeType
		assert.Equal(t, []byte("pixels"), data)
		return catLabels, nil
	})
	imagga := fixed([]Label{{Description: "dog", Score: 0.5}}, nil)
	ts := newTestServer(t, primary, imagga, 0)

	labels, err := NewClient(ts.URL, false, time.Second).Tag(context.Background(), []byte("pixels"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, catLabels, labels)
	assert.Equal(t, "image/jpeg", gotType)

	labels, err = NewClient(ts.URL+"/", true, time.Second).Tag(context.Background(), []byte("pixels"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "dog", labels[0].Description)
}

func TestClient_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, fixed(nil, errors.New("quota exhausted")), nil, 0)

	_, err := NewClient(ts.URL, false, time.Second).Tag(context.Background(), []byte("x"), "image/png")
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Contains(t, se.Message, "quota exhausted")

	_, err = NewClient(ts.URL, true, time.Second).Tag(context.Background(), []byte("x"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestServer_RejectsNonImage(t *testing.T) {
	ts := newTestServer(t, fixed(catLabels, nil), nil, 0)

	resp, err := http.Post(ts.URL+"/api/identifyTags", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, statusError, env.Status)
}

func TestServer_BodyLimit(t *testing.T) {
	ts := newTestServer(t, fixed(catLabels, nil), nil, 4)

	resp, err := http.Post(ts.URL+"/api/identifyTags", "image/png", strings.NewReader("too many bytes"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, fixed(catLabels, nil), nil, 0)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "metavault_http_requests_total")
}

func TestServiceError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := errService(ProviderRemote, 0, "", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "tag service remote: dial tcp: refused", err.Error())

	err = errService(ProviderImagga, 500, "boom", nil)
	assert.Equal(t, "tag service imagga: status 500: boom", err.Error())
}
