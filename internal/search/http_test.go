package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSearchDecodesFindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Tesla", req.Company)
		assert.Equal(t, 1, req.Context.AttemptNumber)

		w.Write([]byte(`{
			"findings": {"company":"Tesla","overview":"EV maker","key_developments":["Q2 results"]},
			"confidence": 7,
			"source": "web"
		}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, Options{}, zap.NewNop())
	res, err := p.Search(context.Background(), "Tesla", SearchContext{OriginalQuery: "Tell me about Tesla", AttemptNumber: 1})
	require.NoError(t, err)
	require.NotNil(t, res.Findings)
	assert.Equal(t, "Tesla", res.Findings.Company)
	assert.Equal(t, 7, res.Confidence)
}

func TestSearchNothingFoundIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"confidence": 0, "source": "web"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, Options{}, zap.NewNop())
	res, err := p.Search(context.Background(), "Nonexistent Co", SearchContext{AttemptNumber: 1})
	require.NoError(t, err)
	assert.Nil(t, res.Findings)
	assert.Zero(t, res.Confidence)
}

func TestSearchServerFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, Options{}, zap.NewNop())
	_, err := p.Search(context.Background(), "Tesla", SearchContext{AttemptNumber: 1})
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.IsRetryable())
}

func TestSearchRejectsOutOfRangeConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"confidence": 42, "source": "web"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, Options{}, zap.NewNop())
	_, err := p.Search(context.Background(), "Tesla", SearchContext{AttemptNumber: 1})
	require.Error(t, err)
}

func TestIsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, Options{}, zap.NewNop())
	assert.True(t, p.IsAvailable(context.Background()))

	srv.Close()
	assert.False(t, p.IsAvailable(context.Background()))
}
