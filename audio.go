package rtassist

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/smallnest/ringbuffer"
)

func chunkSize(sampleRate int, d time.Duration, bytesPerSample, channels int) int {
	frames := int(float64(sampleRate) * d.Seconds())
	return frames * bytesPerSample * channels
}

// FixedChunkReader re-chunks an underlying reader into fixed-size reads so
// playback consumers always receive whole audio frames.
type FixedChunkReader struct {
	r    io.Reader
	buf  []byte
	size int
	eof  bool
}

func NewFixedChunkReader(r io.Reader, size int) *FixedChunkReader {
	return &FixedChunkReader{
		r:    r,
		size: size,
		buf:  make([]byte, 0, size*2),
	}
}

func (f *FixedChunkReader) Read(p []byte) (int, error) {
	if len(p) < f.size {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", f.size)
	}

	for len(f.buf) < f.size && !f.eof {
		tmp := make([]byte, f.size)
		n, err := f.r.Read(tmp)
		if n > 0 {
			f.buf = append(f.buf, tmp[:n]...)
		}
		if err == io.EOF {
			f.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(f.buf) == 0 && f.eof {
		return 0, io.EOF
	}

	n := f.size
	if len(f.buf) < n {
		n = len(f.buf)
	}
	copy(p, f.buf[:n])
	f.buf = f.buf[n:]

	return n, nil
}

// modelSampleRate is the PCM rate the realtime endpoint speaks.
const modelSampleRate = 24_000

// trackSource is the subset of webrtc.TrackRemote the sink consumes.
type trackSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// AudioSink receives assistant audio from two sources that are kept on
// separate streams: base64 PCM deltas off the data channel, resampled to the
// playback rate and read via Reader, and raw payloads off the remote WebRTC
// track (encoded frames, Opus as negotiated), read via TrackReader. The two
// encodings never share a buffer. At most one remote track is ever bound per
// session lifetime; later tracks are ignored so audio is never played twice.
type AudioSink struct {
	mu       sync.Mutex
	bound    bool
	buffer   *ringbuffer.RingBuffer
	trackBuf *ringbuffer.RingBuffer
	out      io.Reader
	in       io.Writer
	logger   *slog.Logger
}

func newAudioSink(playbackRate int, latency time.Duration, logger *slog.Logger) *AudioSink {
	size := chunkSize(modelSampleRate, 60*time.Second, 2, 1) * 2
	buffer := ringbuffer.New(size).SetBlocking(true)

	return &AudioSink{
		buffer:   buffer,
		trackBuf: ringbuffer.New(size).SetBlocking(true),
		out:      NewFixedChunkReader(buffer, chunkSize(playbackRate, latency, 2, 1)),
		in: &ResampleWriter{
			Sink:     buffer,
			FromRate: modelSampleRate,
			ToRate:   playbackRate,
		},
		logger: logger,
	}
}

// Reader returns the playback-rate PCM stream fed by data channel deltas.
func (s *AudioSink) Reader() io.Reader {
	return s.out
}

// TrackReader returns the remote track's payload stream, frame for frame as
// received. Decoding is the consumer's concern.
func (s *AudioSink) TrackReader() io.Reader {
	return s.trackBuf
}

// WritePCM feeds model-rate PCM into the sink.
func (s *AudioSink) WritePCM(pcm []byte) error {
	_, err := s.in.Write(pcm)
	return err
}

// Clear drops any buffered, not-yet-played audio on both streams.
func (s *AudioSink) Clear() {
	s.buffer.Reset()
	s.trackBuf.Reset()
}

// bindTrack attaches the remote track to the sink. The first call per
// session wins; every later call is a no-op returning false.
func (s *AudioSink) bindTrack(track trackSource, done <-chan struct{}) bool {
	s.mu.Lock()
	if s.bound {
		s.mu.Unlock()
		return false
	}
	s.bound = true
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}

			pkt, _, err := track.ReadRTP()
			if err != nil {
				s.logger.Debug("remote track read ended", slog.Any("err", err))
				return
			}
			if _, err := s.trackBuf.Write(pkt.Payload); err != nil {
				s.logger.Error("failed to write track payload to sink", slog.Any("err", err))
				return
			}
		}
	}()

	return true
}

// reset clears the buffer and rearms the track binding guard so the next
// session can bind fresh media.
func (s *AudioSink) reset() {
	s.mu.Lock()
	s.bound = false
	s.mu.Unlock()
	s.buffer.Reset()
	s.trackBuf.Reset()
}

// MicrophoneTrack pairs a local RTP track with the packetization state
// needed to stream capture audio to the peer.
type MicrophoneTrack struct {
	track     *webrtc.TrackLocalStaticRTP
	ssrc      uint32
	seq       uint16
	timestamp uint32
}

// NewMicrophoneTrack creates an Opus local track suitable for
// WithMicrophone providers.
func NewMicrophoneTrack(id string) (*MicrophoneTrack, *webrtc.TrackLocalStaticRTP, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		id,
	)
	if err != nil {
		return nil, nil, err
	}
	return &MicrophoneTrack{track: track, ssrc: rand.Uint32()}, track, nil
}

// WriteFrame sends one encoded audio frame spanning the given number of
// samples.
func (m *MicrophoneTrack) WriteFrame(frame []byte, samples uint32) error {
	m.seq++
	m.timestamp += samples

	return m.track.WriteRTP(&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: m.seq,
			Timestamp:      m.timestamp,
			SSRC:           m.ssrc,
		},
		Payload: frame,
	})
}
