package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades each request and echoes text frames back, recording
// the handshake headers it saw.
func echoServer(t *testing.T, gotAuth *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotAuth = r.Header.Get("Authorization")
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		go func() {
			defer conn.Close()
			for {
				data, op, err := wsutil.ReadClientData(conn)
				if err != nil {
					return
				}
				if op == ws.OpText {
					if err := wsutil.WriteServerText(conn, data); err != nil {
						return
					}
				}
			}
		}()
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_EchoRoundtrip(t *testing.T) {
	var auth string
	srv := echoServer(t, &auth)
	defer srv.Close()

	received := make(chan []byte, 1)
	headers := http.Header{}
	headers.Add("Authorization", "Bearer ek_test")

	client, err := Connect(context.Background(), ClientConfig{
		URL:     wsURL(srv),
		Headers: headers,
		OnText: func(data []byte) error {
			frame := make([]byte, len(data))
			copy(frame, data)
			received <- frame
			return nil
		},
	})
	require.NoError(t, err)

	require.Equal(t, "Bearer ek_test", auth)

	client.WriteText([]byte(`{"type":"session.update"}`))
	select {
	case frame := <-received:
		require.JSONEq(t, `{"type":"session.update"}`, string(frame))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Close(ctx))
}

func TestClient_DoneOnServerClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		// Drop the connection immediately after the handshake.
		conn.Close()
	}))
	defer srv.Close()

	client, err := Connect(context.Background(), ClientConfig{URL: wsURL(srv)})
	require.NoError(t, err)

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done was not closed after the server dropped the connection")
	}
}

func TestClient_DialFailure(t *testing.T) {
	_, err := Connect(context.Background(), ClientConfig{
		URL:         "ws://127.0.0.1:0",
		DialTimeout: 500 * time.Millisecond,
	})
	require.Error(t, err)
}
