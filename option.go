package rtassist

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/codewandler/rtassist-go/tool"
	"github.com/pion/webrtc/v3"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"
)

// Mode selects the session's operating modalities.
type Mode string

const (
	ModeText      Mode = "text"
	ModeTextAudio Mode = "text+audio"
)

// Transport selects how the session reaches the realtime endpoint.
type Transport string

const (
	TransportWebRTC    Transport = "webrtc"
	TransportWebSocket Transport = "websocket"
)

// MicrophoneProvider yields the local capture track for audio mode. A
// provider error is treated as a media acquisition denial.
type MicrophoneProvider func() (*webrtc.TrackLocalStaticRTP, error)

type sessionConfig struct {
	model        string
	apiKey       string
	instruction  string
	voice        string
	temperature  float64
	speed        float64
	mode         Mode
	transport    Transport
	sessionURL   string
	signalingURL string
	wsURL        string
	httpClient   *http.Client
	logger       *slog.Logger
	registry     *tool.Registry
	microphone   MicrophoneProvider
	iceServers   []webrtc.ICEServer
	sampleRate   int
	latencyMS    int
}

func (c *sessionConfig) latency() time.Duration {
	return time.Duration(c.latencyMS) * time.Millisecond
}

func (c *sessionConfig) validate() error {
	if c.apiKey == "" {
		return fmt.Errorf("missing api key")
	}
	if c.transport != TransportWebRTC && c.transport != TransportWebSocket {
		return fmt.Errorf("unknown transport %q", c.transport)
	}
	return nil
}

func (c *sessionConfig) modalities() []string {
	if c.mode == ModeTextAudio {
		return []string{"text", "audio"}
	}
	return []string{"text"}
}

type SessionOption func(*sessionConfig)

// WithCapabilities sets the registry of functions exposed to the model.
func WithCapabilities(r *tool.Registry) SessionOption {
	return func(c *sessionConfig) {
		c.registry = r
	}
}

func WithVoice(voice string) SessionOption {
	return func(c *sessionConfig) {
		c.voice = voice
	}
}

func WithMode(mode Mode) SessionOption {
	return func(c *sessionConfig) {
		c.mode = mode
	}
}

func WithTransport(t Transport) SessionOption {
	return func(c *sessionConfig) {
		c.transport = t
	}
}

// WithMicrophone sets the local capture provider used in audio mode.
func WithMicrophone(p MicrophoneProvider) SessionOption {
	return func(c *sessionConfig) {
		c.microphone = p
	}
}

// WithICEServers sets the ICE servers for the peer connection. Calling it
// with no arguments disables STUN entirely (host candidates only).
func WithICEServers(servers ...webrtc.ICEServer) SessionOption {
	return func(c *sessionConfig) {
		c.iceServers = append([]webrtc.ICEServer{}, servers...)
	}
}

// WithSessionEndpoint sets the backend URL that issues ephemeral credentials.
func WithSessionEndpoint(url string) SessionOption {
	return func(c *sessionConfig) {
		c.sessionURL = url
	}
}

// WithSignalingEndpoint sets the SDP offer/answer URL.
func WithSignalingEndpoint(url string) SessionOption {
	return func(c *sessionConfig) {
		c.signalingURL = url
	}
}

func WithWebSocketEndpoint(url string) SessionOption {
	return func(c *sessionConfig) {
		c.wsURL = url
	}
}

func WithHTTPClient(client *http.Client) SessionOption {
	return func(c *sessionConfig) {
		c.httpClient = client
	}
}

func WithSpeed(speed float64) SessionOption {
	return func(c *sessionConfig) {
		c.speed = speed
	}
}

func WithSampleRate(sr int) SessionOption {
	return func(c *sessionConfig) {
		c.sampleRate = sr
	}
}

func WithLogger(logger *slog.Logger) SessionOption {
	return func(c *sessionConfig) {
		c.logger = logger
	}
}

func WithDefaultLogger() SessionOption {
	return WithLogger(slog.Default())
}

func WithTemperature(temperature float64) SessionOption {
	return func(c *sessionConfig) {
		c.temperature = temperature
	}
}

func WithModel(model string) SessionOption {
	return func(c *sessionConfig) {
		c.model = model
	}
}

func WithKey(apiKey string) SessionOption {
	return func(c *sessionConfig) {
		c.apiKey = apiKey
	}
}

func WithEnvKey(vars ...string) SessionOption {
	return func(c *sessionConfig) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				c.apiKey = k
				return
			}
		}
	}
}

func WithOptions(opts ...SessionOption) SessionOption {
	return func(c *sessionConfig) {
		for _, opt := range opts {
			opt(c)
		}
	}
}

func withDefaults() SessionOption {
	return WithOptions(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithVoice("coral"),
		WithInstruction("You are an assistant widget and help the user."),
		WithTemperature(0.7),
		WithSpeed(1.0),
		WithMode(ModeTextAudio),
		WithTransport(TransportWebRTC),
		WithSampleRate(24_000),
		WithLatency(200),
		WithModel("gpt-4o-realtime-preview-2025-06-03"),
		WithSessionEndpoint("https://api.openai.com/v1/realtime/sessions"),
		WithSignalingEndpoint("https://api.openai.com/v1/realtime"),
		WithWebSocketEndpoint("wss://api.openai.com/v1/realtime"),
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong),
	)
}

func WithInstruction(instruction string) SessionOption {
	return func(c *sessionConfig) {
		c.instruction = instruction
	}
}

// WithLatency sets the audio chunking latency in milliseconds.
func WithLatency(latencyMS int) SessionOption {
	return func(c *sessionConfig) {
		c.latencyMS = latencyMS
	}
}
