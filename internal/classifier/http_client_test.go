package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEndpoint = "http://inference.test/predict"

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func TestHTTPClient_Classify_Success(t *testing.T) {
	setupHTTPMock(t)

	var gotPaths []string
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		func(req *http.Request) (*http.Response, error) {
			var body classifyRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, "bad json"), nil
			}
			gotPaths = body.Paths
			return httpmock.NewJsonResponse(http.StatusOK, []map[string]any{
				{"filename": "/scratch/0-a.jpg", "species": "mute swan", "confidence": 0.93},
				{"filename": "/scratch/1-b.jpg", "species": "whooper swan", "confidence": 0.71},
			})
		})

	client, err := NewHTTPClient(testEndpoint, 0)
	require.NoError(t, err)

	preds, err := client.Classify(context.Background(), []string{"/scratch/0-a.jpg", "/scratch/1-b.jpg"})
	require.NoError(t, err)
	require.Len(t, preds, 2)

	assert.Equal(t, []string{"/scratch/0-a.jpg", "/scratch/1-b.jpg"}, gotPaths)
	assert.Equal(t, "/scratch/0-a.jpg", preds[0].Filename())
	assert.Equal(t, "mute swan", preds[0]["species"])
	assert.NotContains(t, preds[1].WithoutFilename(), FilenameKey)
	assert.InDelta(t, 0.71, preds[1].WithoutFilename()["confidence"], 0.001)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestHTTPClient_Classify_HTTPError(t *testing.T) {
	setupHTTPMock(t)

	tests := []struct {
		name       string
		statusCode int
	}{
		{"bad_request", http.StatusBadRequest},
		{"internal_server_error", http.StatusInternalServerError},
		{"service_unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.Reset()
			httpmock.RegisterResponder(http.MethodPost, testEndpoint,
				httpmock.NewStringResponder(tt.statusCode, `model not loaded`))

			client, err := NewHTTPClient(testEndpoint, 0)
			require.NoError(t, err)

			preds, err := client.Classify(context.Background(), []string{"/x.jpg"})
			require.Error(t, err)
			assert.Nil(t, preds)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.statusCode, statusErr.StatusCode)
			assert.Contains(t, err.Error(), "model not loaded")
		})
	}
}

func TestHTTPClient_Classify_InvalidJSON(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `{"not": "a list"}`))

	client, err := NewHTTPClient(testEndpoint, 0)
	require.NoError(t, err)

	_, err = client.Classify(context.Background(), []string{"/x.jpg"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode predictions")
}

func TestHTTPClient_Classify_MissingFilename(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewStringResponder(http.StatusOK, `[{"species": "swan"}]`))

	client, err := NewHTTPClient(testEndpoint, 0)
	require.NoError(t, err)

	_, err = client.Classify(context.Background(), []string{"/x.jpg"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), FilenameKey)
}

func TestHTTPClient_Classify_TransportError(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewErrorResponder(errors.New("connection refused")))

	client, err := NewHTTPClient(testEndpoint, 0)
	require.NoError(t, err)

	_, err = client.Classify(context.Background(), []string{"/x.jpg"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewHTTPClient_RequiresEndpoint(t *testing.T) {
	_, err := NewHTTPClient("  ", 0)
	require.Error(t, err)
}

func TestDisabled_Classify(t *testing.T) {
	_, err := Disabled{}.Classify(context.Background(), []string{"/x.jpg"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
