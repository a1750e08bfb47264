package signaling

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const answerSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\n"

func TestPostOffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer eph_abc", r.Header.Get("Authorization"))
		require.Equal(t, "application/sdp", r.Header.Get("Content-Type"))
		require.Equal(t, "model-x", r.URL.Query().Get("model"))

		offer, _ := io.ReadAll(r.Body)
		require.Equal(t, "v=0\r\noffer", string(offer))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(answerSDP))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	answer, err := c.PostOffer(context.Background(), "eph_abc", "model-x", "v=0\r\noffer")
	require.NoError(t, err)
	require.Equal(t, answerSDP, answer)
}

func TestPostOffer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such session", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	_, err := c.PostOffer(context.Background(), "stale", "model-x", "v=0")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestPostOffer_MalformedAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"this is not sdp"}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	_, err := c.PostOffer(context.Background(), "eph_abc", "model-x", "v=0")
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed SDP answer")
}
