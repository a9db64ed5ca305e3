package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProbe_StatusCodes(t *testing.T) {
	for _, code := range []int{200, 301, 404, 500, 503} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))

		res := New(Config{Timeout: time.Second}).Probe(context.Background(), srv.URL, 0)
		require.Equal(t, code, res.StatusCode)
		require.Empty(t, res.ErrText)
		require.Greater(t, res.Latency, time.Duration(0))

		srv.Close()
	}
}

func TestProbe_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	res := New(Config{}).Probe(context.Background(), srv.URL, 50*time.Millisecond)
	require.Zero(t, res.StatusCode)
	require.NotEmpty(t, res.ErrText)
}

func TestProbe_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := New(Config{Timeout: time.Second}).Probe(context.Background(), url, 0)
	require.Zero(t, res.StatusCode)
	require.NotEmpty(t, res.ErrText)
	require.LessOrEqual(t, len(res.ErrText), 200)
}

func TestProbe_SendsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	New(Config{UserAgent: "edgewatch-test/1.0", Timeout: time.Second}).
		Probe(context.Background(), srv.URL, 0)
	require.Equal(t, "edgewatch-test/1.0", got)
}
