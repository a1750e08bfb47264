package rtassist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codewandler/rtassist-go/events"
	"github.com/gobwas/ws"
	"github.com/stretchr/testify/require"
)

func credentialHandler(counter *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if counter != nil {
			counter.Add(1)
		}
		_, _ = w.Write([]byte(`{"id":"sess_1","client_secret":{"value":"eph_abc","expires_at":1700000000}}`))
	}
}

func TestConnect_CredentialFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var states []State
	var failure *SessionError

	s := New(
		WithKey("test"),
		WithSessionEndpoint(srv.URL),
		WithHTTPClient(srv.Client()),
	)
	s.OnStateChange(func(state State) { states = append(states, state) })
	s.OnFailure(func(e *SessionError) { failure = e })

	err := s.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, StateError, s.State())
	require.Equal(t, FailureCredentialFetch, s.Err().Kind)
	require.NotNil(t, failure)
	require.True(t, failure.Fatal(), "credential failure must be surfaced with a retry affordance")
	require.Equal(t, []State{StateAcquiring, StateError}, states)
}

func TestConnect_SignalingFailure(t *testing.T) {
	var credentialFetches atomic.Int32
	sessions := httptest.NewServer(credentialHandler(&credentialFetches))
	defer sessions.Close()

	signaling := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not sdp`))
	}))
	defer signaling.Close()

	s := New(
		WithKey("test"),
		WithMode(ModeText),
		WithSessionEndpoint(sessions.URL),
		WithSignalingEndpoint(signaling.URL),
		WithICEServers(), // host candidates only, keeps gathering local
	)

	err := s.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, StateError, s.State())
	require.Equal(t, FailureSignaling, s.Err().Kind)
	require.Nil(t, s.pc, "no partial peer connection may survive a failed attempt")
	require.Nil(t, s.dc)

	// Reconnect tears down and retries with a freshly acquired credential.
	err = s.Reconnect(context.Background())
	require.Error(t, err)
	require.Equal(t, int32(2), credentialFetches.Load())
}

func TestConnect_ChannelClosedUnexpectedly(t *testing.T) {
	sessions := httptest.NewServer(credentialHandler(nil))
	defer sessions.Close()

	drop := make(chan struct{})
	wsrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		<-drop
		conn.Close()
	}))
	defer wsrv.Close()

	failures := make(chan *SessionError, 1)
	s := New(
		WithKey("test"),
		WithTransport(TransportWebSocket),
		WithSessionEndpoint(sessions.URL),
		WithWebSocketEndpoint("ws"+strings.TrimPrefix(wsrv.URL, "http")),
	)
	s.OnFailure(func(e *SessionError) { failures <- e })

	require.NoError(t, s.Connect(context.Background()))
	require.Equal(t, StateOpen, s.State())

	close(drop)

	select {
	case e := <-failures:
		require.Equal(t, FailureChannelClosed, e.Kind)
		require.True(t, e.Fatal())
	case <-time.After(2 * time.Second):
		t.Fatal("failure callback did not fire after the server dropped the connection")
	}
	require.Equal(t, StateError, s.State())
	require.Equal(t, FailureChannelClosed, s.Err().Kind)
}

func TestSend_WhileNotOpen(t *testing.T) {
	s := New(WithKey("test"))

	err := s.Send(map[string]any{"type": "response.create"})
	require.Error(t, err)
	serr := asSessionError(err)
	require.Equal(t, FailureChannelNotOpen, serr.Kind)
	require.False(t, serr.Fatal(), "sending while closed is a reported, non-fatal error")

	require.Error(t, s.SendUserMessage("hello", true))
}

func TestClose_FromIdle(t *testing.T) {
	s := New(WithKey("test"))

	require.NoError(t, s.Close())
	require.Equal(t, StateClosed, s.State())

	err := s.Send(map[string]any{"type": "response.create"})
	require.Equal(t, FailureChannelNotOpen, asSessionError(err).Kind)
}

func TestClose_ClearsPendingFunctionCalls(t *testing.T) {
	s := New(WithKey("test"))

	require.NoError(t, s.bridge.begin("call_1", "get_weather", "item_1"))
	s.bridge.appendArgs("call_1", `{"latitude":`)
	require.Equal(t, 1, s.bridge.inFlight())

	require.NoError(t, s.Close())
	require.Equal(t, 0, s.bridge.inFlight(), "argument streams must not survive teardown")

	// The same call id from the next connection is not a duplicate.
	require.NoError(t, s.bridge.begin("call_1", "get_weather", "item_2"))
}

func TestCallbackRegistrationDuringDispatch(t *testing.T) {
	s := New(WithKey("test"))

	attempt := make(chan struct{})
	inbound := make(chan []byte, 64)
	go s.eventLoop(attempt, inbound)
	defer close(attempt)

	registered := make(chan struct{})
	go func() {
		defer close(registered)
		for i := 0; i < 50; i++ {
			s.OnEvent(func(events.ServerEvent) {})
			s.OnError(func(*events.ErrorEvent) {})
			s.OnResponseDone(func(*events.ResponseDoneEvent) {})
			s.OnStateChange(func(State) {})
		}
	}()

	for i := 0; i < 50; i++ {
		inbound <- []byte(`{"type":"response.created"}`)
		inbound <- []byte(`{"type":"error","error":{"code":"x","message":"y"}}`)
		inbound <- []byte(`{"type":"response.done"}`)
	}
	<-registered
}

func TestConnect_RepeatedInitAndCleanup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(WithKey("test"), WithSessionEndpoint(srv.URL), WithHTTPClient(srv.Client()))

	for i := 0; i < 3; i++ {
		_ = s.Connect(context.Background())
		require.NoError(t, s.Close())
		require.Nil(t, s.pc)
		require.Nil(t, s.dc)
		require.Nil(t, s.ws)
		require.False(t, s.sink.bound, "audio binding guard must be rearmed by cleanup")
	}
}

func TestConnect_InvalidConfig(t *testing.T) {
	s := New(WithKey(""), WithEnvKey("RTASSIST_TEST_UNSET_KEY"))
	require.Error(t, s.Connect(context.Background()))
	require.Equal(t, StateIdle, s.State())
}
