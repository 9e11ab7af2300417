package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/ergo/market_chart/range", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		w.Write([]byte(`{"prices": [[1000, 1.5], [3600000, 2.5], [7200000, 3.5]]}`))
	}))
	defer srv.Close()

	s := NewService(srv.URL)
	records, err := s.Fetch(context.Background(), 1000, 8000000)
	require.NoError(t, err)

	// Datapoints at or before since are dropped.
	require.Len(t, records, 2)
	assert.Equal(t, HourlyRecord{Timestamp: 3600000, USD: 2.5}, records[0])
	assert.Equal(t, HourlyRecord{Timestamp: 7200000, USD: 3.5}, records[1])
}

func TestService_FetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewService(srv.URL)
	_, err := s.Fetch(context.Background(), 0, 1000)
	require.Error(t, err)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("nope"))
	}))
	defer bad.Close()
	_, err = NewService(bad.URL).Fetch(context.Background(), 0, 1000)
	require.Error(t, err)
}

func TestService_DefaultURL(t *testing.T) {
	s := NewService("")
	assert.Equal(t, DefaultFeedURL, s.url)
}
