package rtassist

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

// fakeTrack serves a fixed sequence of RTP payloads, then EOF.
type fakeTrack struct {
	payloads [][]byte
	pos      int
}

func (f *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if f.pos >= len(f.payloads) {
		return nil, nil, io.EOF
	}
	p := f.payloads[f.pos]
	f.pos++
	return &rtp.Packet{Payload: p}, nil, nil
}

func TestChunkSize(t *testing.T) {
	// 24kHz mono 16-bit at 20ms: 480 frames * 2 bytes.
	require.Equal(t, 960, chunkSize(24_000, 20*time.Millisecond, 2, 1))
	require.Equal(t, 1920, chunkSize(48_000, 20*time.Millisecond, 2, 1))
}

func TestFixedChunkReader_WholeChunks(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{0xAB}, 10))
	r := NewFixedChunkReader(src, 4)

	buf := make([]byte, 4)

	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	n, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	// Trailing partial chunk is still delivered once the source is drained.
	n, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = r.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestFixedChunkReader_SmallBuffer(t *testing.T) {
	r := NewFixedChunkReader(bytes.NewReader(make([]byte, 8)), 4)

	_, err := r.Read(make([]byte, 2))
	require.Error(t, err)
}

func TestResamplePCM_IdenticalRates(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}

	out, err := ResamplePCM(pcm, 24_000, 24_000)
	require.NoError(t, err)
	require.Equal(t, pcm, out)
}

func TestResamplePCM_Upsample(t *testing.T) {
	// One second of silence at 24kHz should come out near one second at 48kHz.
	in := make([]byte, 24_000*2)

	out, err := ResamplePCM(in, 24_000, 48_000)
	require.NoError(t, err)
	require.InDelta(t, 48_000*2, len(out), 48_000*2*0.01)
}

func TestResampleWriter_ReportsInputLength(t *testing.T) {
	var sink bytes.Buffer
	w := &ResampleWriter{Sink: &sink, FromRate: 24_000, ToRate: 48_000}

	in := make([]byte, 2400*2)
	n, err := w.Write(in)
	require.NoError(t, err)
	require.Equal(t, len(in), n, "Write must report input bytes consumed, not output bytes produced")
	require.Greater(t, sink.Len(), len(in))
}

func TestAudioSink_WriteThenRead(t *testing.T) {
	sink := newAudioSink(modelSampleRate, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	chunk := chunkSize(modelSampleRate, 20*time.Millisecond, 2, 1)
	pcm := bytes.Repeat([]byte{0x7F, 0x00}, chunk) // two chunks worth
	require.NoError(t, sink.WritePCM(pcm))

	buf := make([]byte, chunk)
	n, err := sink.Reader().Read(buf)
	require.NoError(t, err)
	require.Equal(t, chunk, n)
	require.Equal(t, pcm[:chunk], buf)
}

func TestAudioSink_ClearDropsBufferedAudio(t *testing.T) {
	sink := newAudioSink(modelSampleRate, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, sink.WritePCM(make([]byte, 4096)))
	sink.Clear()
	require.Equal(t, 0, sink.buffer.Length())
}

func TestAudioSink_TrackBindingFirstWins(t *testing.T) {
	sink := newAudioSink(modelSampleRate, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	done := make(chan struct{})
	defer close(done)

	track := &fakeTrack{payloads: [][]byte{[]byte("frame-one"), []byte("frame-two")}}
	require.True(t, sink.bindTrack(track, done))
	require.False(t, sink.bindTrack(&fakeTrack{}, done), "only the first track may bind")

	want := "frame-oneframe-two"
	got := make([]byte, 0, len(want))
	buf := make([]byte, len(want))
	for len(got) < len(want) {
		n, err := sink.TrackReader().Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, want, string(got))
}

func TestAudioSink_TrackPayloadsStayOffPCMStream(t *testing.T) {
	sink := newAudioSink(modelSampleRate, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	done := make(chan struct{})
	defer close(done)

	require.True(t, sink.bindTrack(&fakeTrack{payloads: [][]byte{[]byte("encoded")}}, done))
	require.Eventually(t, func() bool {
		return sink.trackBuf.Length() == len("encoded")
	}, time.Second, 5*time.Millisecond)

	// Data channel PCM lands on the playback stream, never next to the
	// encoded track frames.
	require.NoError(t, sink.WritePCM(make([]byte, 960)))
	require.Equal(t, len("encoded"), sink.trackBuf.Length())
	require.Equal(t, 960, sink.buffer.Length())
}

func TestAudioSink_ResetRearmsBindingGuard(t *testing.T) {
	sink := newAudioSink(modelSampleRate, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sink.mu.Lock()
	sink.bound = true
	sink.mu.Unlock()

	sink.reset()
	require.False(t, sink.bound)
}

func TestMicrophoneTrack_New(t *testing.T) {
	mic, track, err := NewMicrophoneTrack("widget-mic")
	require.NoError(t, err)
	require.NotNil(t, track)
	require.NotZero(t, mic.ssrc)
}
