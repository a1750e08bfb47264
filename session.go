package rtassist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/codewandler/rtassist-go/events"
	"github.com/codewandler/rtassist-go/internal/signaling"
	"github.com/codewandler/rtassist-go/internal/websocket"
	"github.com/codewandler/rtassist-go/tool"
	"github.com/pion/webrtc/v3"
)

// State is the transport manager's connection state.
type State string

const (
	StateIdle        State = "idle"
	StateAcquiring   State = "acquiring"
	StateHandshaking State = "handshaking"
	StateOpen        State = "open"
	StateClosed      State = "closed"
	StateError       State = "error"
)

// Session owns one realtime connection: credential acquisition, the peer
// connection and data channel, the serialized inbound event loop, and the
// function call bridge. A Session instance can be reconnected; every attempt
// fetches a fresh credential because stale ones fail opaquely at signaling.
type Session struct {
	config *sessionConfig
	broker *Broker
	signal *signaling.Client
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	lastErr   *SessionError
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	ws        *websocket.Client
	attempt   chan struct{} // closed when the current attempt is torn down
	inbound   chan []byte
	sessionID string

	configured         bool
	responseInProgress bool
	rateLimits         []events.RateLimit

	sink   *AudioSink
	conv   *Conversation
	bridge *bridge

	onEvent        func(events.ServerEvent)
	onError        func(*events.ErrorEvent)
	onFailure      func(*SessionError)
	onResponseDone func(*events.ResponseDoneEvent)
	onRefresh      func()
	onStateChange  func(State)
}

func New(opts ...SessionOption) *Session {
	config := &sessionConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	if config.registry == nil {
		config.registry, _ = tool.NewRegistry()
	}
	if config.httpClient == nil {
		config.httpClient = http.DefaultClient
	}

	s := &Session{
		config: config,
		logger: config.logger,
		state:  StateIdle,
		broker: NewBroker(config.sessionURL, config.apiKey, config.httpClient),
		signal: &signaling.Client{
			BaseURL:    config.signalingURL,
			HTTPClient: config.httpClient,
			Logger:     config.logger,
		},
		sink: newAudioSink(config.sampleRate, config.latency(), config.logger),
		conv: newConversation(),
	}
	s.bridge = newBridge(config.registry, s.Send, config.logger)

	return s
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that moved the session to StateError, if any.
func (s *Session) Err() *SessionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SessionID returns the server-assigned session id.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Conversation returns the session's turn log.
func (s *Session) Conversation() *Conversation {
	return s.conv
}

// Audio returns the playback-rate PCM stream of assistant audio.
func (s *Session) Audio() *AudioSink {
	return s.sink
}

// ResponseInProgress reports whether a model response is currently
// streaming.
func (s *Session) ResponseInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseInProgress
}

// RateLimits returns the most recent rate limit notification.
func (s *Session) RateLimits() []events.RateLimit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.RateLimit, len(s.rateLimits))
	copy(out, s.rateLimits)
	return out
}

// OnEvent taps every typed inbound event. Safe to call while connected; the
// event loop reads the handler under the same lock.
func (s *Session) OnEvent(h func(e events.ServerEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = h
}

// OnError receives protocol-level error events that do not terminate the
// session.
func (s *Session) OnError(h func(e *events.ErrorEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = h
}

// OnFailure receives transport-fatal failures; the caller decides whether to
// offer a reconnect.
func (s *Session) OnFailure(h func(e *SessionError)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = h
}

// OnResponseDone receives each finalized response.
func (s *Session) OnResponseDone(h func(e *events.ResponseDoneEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResponseDone = h
}

// OnRefreshRequired fires when the server signals credential or session
// expiry and the whole session must be rebuilt.
func (s *Session) OnRefreshRequired(h func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = h
}

func (s *Session) OnStateChange(h func(state State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = h
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	cb := s.onStateChange
	s.mu.Unlock()
	if cb != nil {
		cb(state)
	}
}

// fail moves the session to StateError, discarding any partially attached
// transport state.
func (s *Session) fail(serr *SessionError) {
	s.mu.Lock()
	if s.attempt != nil {
		select {
		case <-s.attempt:
		default:
			close(s.attempt)
		}
	}
	pc, dc, ws := s.pc, s.dc, s.ws
	s.pc, s.dc, s.ws = nil, nil, nil
	s.lastErr = serr
	s.state = StateError
	onState := s.onStateChange
	onFailure := s.onFailure
	s.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	if pc != nil {
		_ = pc.Close()
	}
	if ws != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = ws.Close(closeCtx)
		cancel()
	}
	s.sink.reset()

	if onState != nil {
		onState(StateError)
	}
	if onFailure != nil {
		onFailure(serr)
	}
}

func asSessionError(err error) *SessionError {
	var serr *SessionError
	if errors.As(err, &serr) {
		return serr
	}
	return &SessionError{Kind: FailureSignaling, Err: err}
}

// Connect acquires a fresh credential, performs the handshake, and starts
// the serialized event loop. A Connect while another attempt is live tears
// the old one down first; its in-flight results are discarded.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.config.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	s.mu.Lock()
	if s.state == StateAcquiring || s.state == StateHandshaking || s.state == StateOpen {
		s.mu.Unlock()
		_ = s.Close()
		s.mu.Lock()
	}

	attempt := make(chan struct{})
	inbound := make(chan []byte, 256)
	s.attempt = attempt
	s.inbound = inbound
	s.lastErr = nil
	s.sessionID = ""
	s.configured = false
	s.responseInProgress = false
	s.conv = newConversation()
	s.bridge.reset()
	s.state = StateAcquiring
	onState := s.onStateChange
	s.mu.Unlock()
	if onState != nil {
		onState(StateAcquiring)
	}

	cred, err := s.broker.Acquire(ctx, s.config.model, s.config.voice)
	if err != nil {
		serr := asSessionError(err)
		s.fail(serr)
		return serr
	}

	s.setState(StateHandshaking)

	switch s.config.transport {
	case TransportWebSocket:
		err = s.connectWebSocket(ctx, cred, attempt, inbound)
	default:
		err = s.connectWebRTC(ctx, cred, attempt, inbound)
	}
	if err != nil {
		serr := asSessionError(err)
		s.fail(serr)
		return serr
	}

	s.setState(StateOpen)

	go s.eventLoop(attempt, inbound)

	return nil
}

func (s *Session) connectWebRTC(ctx context.Context, cred *Credential, attempt chan struct{}, inbound chan []byte) error {
	iceServers := s.config.iceServers
	if iceServers == nil {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return sessionErr(FailureSignaling, fmt.Errorf("failed to create peer connection: %w", err))
	}

	// Only the first inbound audio track is ever bound; duplicates would
	// play the assistant twice.
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		if !s.sink.bindTrack(track, attempt) {
			s.logger.Debug("ignoring additional inbound audio track", slog.String("id", track.ID()))
		}
	})

	if s.config.mode == ModeTextAudio && s.config.microphone != nil {
		track, err := s.config.microphone()
		if err != nil {
			_ = pc.Close()
			return sessionErr(FailureMediaAcquisition, err)
		}
		if _, err := pc.AddTrack(track); err != nil {
			_ = pc.Close()
			return sessionErr(FailureMediaAcquisition, err)
		}
	} else {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return sessionErr(FailureSignaling, fmt.Errorf("failed to add audio transceiver: %w", err))
		}
	}

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		_ = pc.Close()
		return sessionErr(FailureSignaling, fmt.Errorf("failed to create data channel: %w", err))
	}

	dcOpen := make(chan struct{})
	dc.OnOpen(func() {
		close(dcOpen)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case <-attempt:
		case inbound <- msg.Data:
		}
	})
	dc.OnClose(func() {
		s.channelClosed(attempt)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return sessionErr(FailureSignaling, fmt.Errorf("failed to create offer: %w", err))
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return sessionErr(FailureSignaling, fmt.Errorf("failed to set local description: %w", err))
	}
	<-webrtc.GatheringCompletePromise(pc)

	answer, err := s.signal.PostOffer(ctx, cred.Secret, s.config.model, pc.LocalDescription().SDP)
	if err != nil {
		_ = pc.Close()
		return sessionErr(FailureSignaling, err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		_ = pc.Close()
		return sessionErr(FailureSignaling, fmt.Errorf("failed to set remote description: %w", err))
	}

	// Usable only once the remote description is applied AND the channel
	// reports open; the answer alone is not enough to send.
	select {
	case <-dcOpen:
	case <-ctx.Done():
		_ = pc.Close()
		return sessionErr(FailureSignaling, ctx.Err())
	}

	s.mu.Lock()
	s.pc = pc
	s.dc = dc
	s.mu.Unlock()

	return nil
}

func (s *Session) connectWebSocket(ctx context.Context, cred *Credential, attempt chan struct{}, inbound chan []byte) error {
	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+cred.Secret)
	headers.Add("OpenAI-Beta", "realtime=v1")

	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:     fmt.Sprintf("%s?model=%s", s.config.wsURL, s.config.model),
		Headers: headers,
		Logger:  s.logger,
		OnText: func(data []byte) error {
			frame := make([]byte, len(data))
			copy(frame, data)
			select {
			case <-attempt:
			case inbound <- frame:
			}
			return nil
		},
	})
	if err != nil {
		return sessionErr(FailureSignaling, err)
	}

	go func() {
		select {
		case <-attempt:
		case <-ws.Done():
			s.channelClosed(attempt)
		}
	}()

	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()

	return nil
}

// channelClosed handles unexpected transport termination for the given
// attempt. Deliberate teardown closes the attempt channel first, so this is
// a no-op then.
func (s *Session) channelClosed(attempt chan struct{}) {
	select {
	case <-attempt:
		return
	default:
	}

	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.fail(sessionErrf(FailureChannelClosed, "data channel closed unexpectedly"))
}

// eventLoop processes inbound frames strictly in delivery order. Later
// deltas depend on accumulation state built by earlier ones, so there is
// exactly one of these per attempt and no concurrent handler execution.
func (s *Session) eventLoop(attempt chan struct{}, inbound chan []byte) {
	for {
		select {
		case <-attempt:
			return
		case raw := <-inbound:
			evt, err := events.ParseServer(raw)
			if err != nil {
				// One malformed frame must not kill the session.
				s.logger.Warn("dropping malformed inbound frame", slog.Any("err", err))
				continue
			}
			s.handleEvent(evt)
		}
	}
}

// Send serializes and sends a client event. Sending while the channel is
// not open fails with a reported, non-fatal error instead of queueing.
func (s *Session) Send(evt any) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateOpen {
		state := s.state
		s.mu.Unlock()
		return sessionErrf(FailureChannelNotOpen, "cannot send while session is %s", state)
	}
	dc, ws := s.dc, s.ws
	s.mu.Unlock()

	switch {
	case dc != nil:
		return dc.Send(data)
	case ws != nil:
		ws.WriteText(data)
		return nil
	default:
		return sessionErrf(FailureChannelNotOpen, "no transport attached")
	}
}

// SendUserMessage appends a user text message and optionally requests a
// response.
func (s *Session) SendUserMessage(text string, respond bool) error {
	err := s.Send(events.ConversationItemCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeConversationItemCreate),
		Item: events.ConversationItem{
			ID:   events.NewItemID(),
			Type: string(ItemMessage),
			Role: "user",
			Content: []events.ConversationItemContent{
				{Type: "input_text", Text: text},
			},
		},
	})
	if err != nil {
		return err
	}

	if respond {
		return s.CreateResponse()
	}
	return nil
}

func (s *Session) CreateResponseWithPayload(p events.ResponseCreatePayload) error {
	return s.Send(events.ResponseCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeResponseCreate),
		Response:  p,
	})
}

func (s *Session) CreateResponse() error {
	return s.CreateResponseWithPayload(events.ResponseCreatePayload{})
}

// Close tears the session down: releases the peer connection, clears channel
// references, detaches the audio sink, and rearms the track binding guard.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.attempt != nil {
		select {
		case <-s.attempt:
		default:
			close(s.attempt)
		}
	}
	pc, dc, ws := s.pc, s.dc, s.ws
	s.pc, s.dc, s.ws = nil, nil, nil
	s.state = StateClosed
	onState := s.onStateChange
	s.mu.Unlock()

	var err error
	if dc != nil {
		err = errors.Join(err, dc.Close())
	}
	if pc != nil {
		err = errors.Join(err, pc.Close())
	}
	if ws != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = ws.Close(closeCtx)
		cancel()
	}
	s.sink.reset()
	s.bridge.reset()

	if onState != nil {
		onState(StateClosed)
	}
	return err
}

// Reconnect performs a full teardown followed by a fresh connection attempt
// with a newly acquired credential.
func (s *Session) Reconnect(ctx context.Context) error {
	_ = s.Close()
	return s.Connect(ctx)
}
