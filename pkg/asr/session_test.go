package asr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/harunnryd/asrstream/pkg/audio"
	"github.com/harunnryd/asrstream/pkg/errorsx"
	"github.com/harunnryd/asrstream/pkg/metrics"
	"github.com/harunnryd/asrstream/pkg/protocol"
	"github.com/harunnryd/asrstream/pkg/transports"
	"github.com/harunnryd/asrstream/pkg/transports/mock"
	"github.com/harunnryd/asrstream/pkg/transports/websocket"
)

func testOptions() Options {
	return Options{
		Format:          audio.DefaultFormat,
		SegmentDuration: 250 * time.Millisecond,
		Request:         DefaultRequestOptions(),
		User:            UserInfo{UID: "test"},
	}
}

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	c, err := NewClient(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// oneSecondSilence is 1s of 16 kHz 16-bit mono zero samples.
func oneSecondSilence() []byte {
	return make([]byte, audio.DefaultFormat.BytesPerSecond())
}

// replyOnTerminal answers the terminal audio frame with the given frames.
func replyOnTerminal(t *testing.T, replies ...[]byte) func([]byte) [][]byte {
	return func(frame []byte) [][]byte {
		req, err := protocol.DecodeRequest(frame)
		if err != nil {
			t.Errorf("server decode: %v", err)
			return nil
		}
		if req.Sequence.IsTerminal() {
			return replies
		}
		return nil
	}
}

func TestTranscribeSilenceIsEmptyResult(t *testing.T) {
	tr := mock.New()
	tr.OnSend = replyOnTerminal(t,
		fullResponse(t, `{"text":""}`, false),
		serverFrame(t, protocol.ServerFrame{Type: protocol.MessageFullServerResponse, HasSequence: true, Sequence: protocol.Terminal(6), Terminal: true}),
	)
	c := newTestClient(t, testOptions())

	text, err := c.Transcribe(context.Background(), tr, oneSecondSilence())
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got text=%q err=%v", text, err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonEmptyResult) {
		t.Fatalf("expected empty_result reason, got %s", errorsx.Reason(err))
	}
	if tr.Closes() != 1 {
		t.Fatalf("expected exactly one close, got %d", tr.Closes())
	}
}

func TestTranscribeFinalTextWins(t *testing.T) {
	tr := mock.New()
	tr.OnSend = replyOnTerminal(t,
		fullResponse(t, `{"text":"你好"}`, false),
		fullResponse(t, `{"text":"你好，世界"}`, true),
	)
	opts := testOptions()
	var mu sync.Mutex
	var partials []string
	opts.OnPartial = func(s string) {
		mu.Lock()
		partials = append(partials, s)
		mu.Unlock()
	}
	obs := metrics.NewMemoryObserver()
	opts.Observer = obs
	c := newTestClient(t, opts)

	text, err := c.Transcribe(context.Background(), tr, oneSecondSilence())
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "你好，世界" {
		t.Fatalf("expected final transcript, got %q", text)
	}
	mu.Lock()
	if len(partials) != 2 || partials[0] != "你好" {
		t.Fatalf("unexpected partials %v", partials)
	}
	mu.Unlock()

	sent := tr.Sent()
	// config + 4 segments of 250ms
	if len(sent) != 5 {
		t.Fatalf("expected 5 frames sent, got %d", len(sent))
	}
	var audioBytes int
	for i, frame := range sent {
		req, err := protocol.DecodeRequest(frame)
		if err != nil {
			t.Fatalf("decode sent frame %d: %v", i, err)
		}
		want := int32(i + 1)
		if i == len(sent)-1 {
			want = -want
		}
		if req.Sequence.Int32() != want {
			t.Fatalf("frame %d: expected seq %d, got %d", i, want, req.Sequence)
		}
		if i > 0 {
			audioBytes += len(req.Payload)
		}
	}
	if audioBytes != len(oneSecondSilence()) {
		t.Fatalf("expected all audio delivered, got %d bytes", audioBytes)
	}
	if obs.Count(metrics.EventFrameSent) != 5 || obs.Count(metrics.EventFrameReceived) != 2 {
		t.Fatalf("unexpected frame metrics sent=%d received=%d", obs.Count(metrics.EventFrameSent), obs.Count(metrics.EventFrameReceived))
	}
	if obs.Count(metrics.EventSessionCompleted) != 1 || obs.Count(metrics.EventPartialResult) != 2 {
		t.Fatalf("unexpected session metrics %v", obs.Events())
	}
	if tr.Closes() != 1 {
		t.Fatalf("expected exactly one close, got %d", tr.Closes())
	}
}

func TestTranscribeRemoteError(t *testing.T) {
	tr := mock.New()
	tr.OnSend = func(frame []byte) [][]byte {
		req, err := protocol.DecodeRequest(frame)
		if err != nil || req.Sequence != 1 {
			return nil
		}
		return [][]byte{
			errorResponse(t, 450, `{"message":"invalid audio format"}`),
			fullResponse(t, `{"text":"should not be seen"}`, true),
		}
	}
	opts := testOptions()
	var partials int
	opts.OnPartial = func(string) { partials++ }
	c := newTestClient(t, opts)

	start := time.Now()
	_, err := c.Transcribe(context.Background(), tr, oneSecondSilence())
	var remote *protocol.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if remote.Code != 450 || remote.Message != "invalid audio format" {
		t.Fatalf("unexpected remote error %+v", remote)
	}
	if !errorsx.HasReason(err, errorsx.ReasonRemote) {
		t.Fatalf("expected remote reason, got %s", errorsx.Reason(err))
	}
	if partials != 0 {
		t.Fatalf("expected receive loop to stop at the error frame")
	}
	if elapsed := time.Since(start); elapsed > 600*time.Millisecond {
		t.Fatalf("expected sender aborted promptly, took %s", elapsed)
	}
	if tr.Closes() != 1 {
		t.Fatalf("expected exactly one close, got %d", tr.Closes())
	}
}

func TestTranscribeRemoteErrorBeforeHangup(t *testing.T) {
	for i := 0; i < 50; i++ {
		tr := mock.New()
		var sends int
		var once sync.Once
		// The server rejects the stream on the first audio frame and hangs up,
		// so the next send fails on a closed connection.
		tr.OnSend = func(frame []byte) [][]byte {
			sends++
			if sends == 2 {
				once.Do(func() {
					tr.Push(errorResponse(t, 450, `{"message":"invalid audio format"}`))
					tr.SendErr = transports.ErrClosed
				})
			}
			return nil
		}
		opts := testOptions()
		opts.SegmentDuration = 20 * time.Millisecond
		c := newTestClient(t, opts)

		_, err := c.Transcribe(context.Background(), tr, make([]byte, audio.DefaultFormat.BytesPerSecond()/10))
		var remote *protocol.RemoteError
		if !errors.As(err, &remote) || remote.Code != 450 {
			t.Fatalf("run %d: expected remote error 450, got %v", i, err)
		}
		if !errorsx.HasReason(err, errorsx.ReasonRemote) {
			t.Fatalf("run %d: expected remote reason, got %s", i, errorsx.Reason(err))
		}
	}
}

func TestTranscribePacesAudioFrames(t *testing.T) {
	const segment = 100 * time.Millisecond
	tr := mock.New()
	var mu sync.Mutex
	var stamps []time.Time
	terminalReply := replyOnTerminal(t, fullResponse(t, `{"text":"paced"}`, true))
	tr.OnSend = func(frame []byte) [][]byte {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return terminalReply(frame)
	}
	opts := testOptions()
	opts.SegmentDuration = segment
	c := newTestClient(t, opts)

	// 500ms of audio is five 100ms segments.
	pcm := make([]byte, audio.DefaultFormat.BytesPerSecond()/2)
	text, err := c.Transcribe(context.Background(), tr, pcm)
	finished := time.Now()
	if err != nil || text != "paced" {
		t.Fatalf("transcribe: text=%q err=%v", text, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stamps) != 6 {
		t.Fatalf("expected config + 5 audio frames, got %d", len(stamps))
	}
	if gap := stamps[1].Sub(stamps[0]); gap >= segment/2 {
		t.Fatalf("expected no pause after the config frame, got %s", gap)
	}
	for i := 2; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < segment {
			t.Fatalf("expected at least %s between audio frames %d and %d, got %s", segment, i-1, i, gap)
		}
	}
	if span := stamps[5].Sub(stamps[1]); span < 4*segment {
		t.Fatalf("expected at least %s from first to terminal audio frame, got %s", 4*segment, span)
	}
	if tail := finished.Sub(stamps[5]); tail >= segment/2 {
		t.Fatalf("expected no pause after the terminal frame, got %s", tail)
	}
}

func TestTranscribeSendFailureAborts(t *testing.T) {
	tr := mock.New()
	tr.SendErr = errors.New("broken pipe")
	c := newTestClient(t, testOptions())

	_, err := c.Transcribe(context.Background(), tr, oneSecondSilence())
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("expected send failure surfaced, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonTransport) {
		t.Fatalf("expected transport reason, got %s", errorsx.Reason(err))
	}
	if tr.Closes() != 1 {
		t.Fatalf("expected exactly one close, got %d", tr.Closes())
	}
}

func TestTranscribePeerClose(t *testing.T) {
	tr := mock.New()
	tr.OnSend = func(frame []byte) [][]byte {
		go tr.Close()
		return nil
	}
	c := newTestClient(t, testOptions())

	_, err := c.Transcribe(context.Background(), tr, oneSecondSilence())
	if !errors.Is(err, transports.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonTransport) {
		t.Fatalf("expected transport reason, got %s", errorsx.Reason(err))
	}
}

func TestTranscribeMalformedResponse(t *testing.T) {
	tr := mock.New()
	tr.Push([]byte{0x11, 0x90, 0x11})
	c := newTestClient(t, testOptions())

	_, err := c.Transcribe(context.Background(), tr, oneSecondSilence())
	if !errors.Is(err, protocol.ErrMalformedFrame) || !errorsx.HasReason(err, errorsx.ReasonProtocol) {
		t.Fatalf("expected protocol failure, got %v", err)
	}
}

func TestTranscribeCallerCancel(t *testing.T) {
	tr := mock.New()
	c := newTestClient(t, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := c.Transcribe(ctx, tr, oneSecondSilence())
	if !errors.Is(err, context.Canceled) || !errorsx.HasReason(err, errorsx.ReasonCanceled) {
		t.Fatalf("expected canceled session, got %v", err)
	}
	if tr.Closes() != 1 {
		t.Fatalf("expected exactly one close, got %d", tr.Closes())
	}
}

func TestTranscribeValidatesBeforeDial(t *testing.T) {
	tr := mock.New()
	c := newTestClient(t, testOptions())
	if _, err := c.Transcribe(context.Background(), nil, oneSecondSilence()); !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig for nil dialer, got %v", err)
	}
	_, err := c.Transcribe(context.Background(), tr, nil)
	if !errors.Is(err, audio.ErrMalformedAudio) || !errorsx.HasReason(err, errorsx.ReasonInput) {
		t.Fatalf("expected input error for empty audio, got %v", err)
	}
	if tr.Dials() != 0 {
		t.Fatalf("expected no dial, got %d", tr.Dials())
	}

	opts := testOptions()
	opts.SegmentDuration = 0
	if _, err := NewClient(opts); !errors.Is(err, ErrMissingConfig) || !errorsx.HasReason(err, errorsx.ReasonConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	opts = testOptions()
	opts.Request.ModelName = ""
	if _, err := NewClient(opts); !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig for model name, got %v", err)
	}
	opts = testOptions()
	opts.Format.Channels = 0
	if _, err := NewClient(opts); !errors.Is(err, audio.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestTranscribeDialFailure(t *testing.T) {
	tr := mock.New()
	tr.DialErr = errors.New("connection refused")
	c := newTestClient(t, testOptions())
	_, err := c.Transcribe(context.Background(), tr, oneSecondSilence())
	if !errorsx.HasReason(err, errorsx.ReasonTransport) {
		t.Fatalf("expected transport reason, got %v", err)
	}
	if tr.Closes() != 0 {
		t.Fatalf("expected no close without a connection")
	}
}

// fakeService plays the recognition service over a real websocket.
func fakeService(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var received int
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			req, err := protocol.DecodeRequest(data)
			if err != nil {
				t.Errorf("service decode: %v", err)
				return
			}
			if req.Header.MessageType == protocol.MessageAudioOnlyRequest {
				received += len(req.Payload)
			}
			text := `{"result":{"text":"hello"}}`
			if req.Sequence.IsTerminal() {
				text = `{"result":{"text":"hello world","utterances":[{"text":"hello world"}]}}`
			}
			reply, err := protocol.EncodeServerFrame(protocol.ServerFrame{
				Type:        protocol.MessageFullServerResponse,
				HasSequence: true,
				Sequence:    req.Sequence,
				Terminal:    req.Sequence.IsTerminal(),
				Payload:     []byte(text),
			})
			if err != nil {
				t.Errorf("service encode: %v", err)
				return
			}
			if err := conn.WriteMessage(gws.BinaryMessage, reply); err != nil {
				return
			}
			if req.Sequence.IsTerminal() {
				if received != audio.DefaultFormat.BytesPerSecond()/2 {
					t.Errorf("service received %d audio bytes", received)
				}
				_, _, _ = conn.ReadMessage()
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribeOverWebsocket(t *testing.T) {
	srv := fakeService(t)
	dialer := websocket.NewDialer(websocket.Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	opts := testOptions()
	opts.SegmentDuration = 100 * time.Millisecond
	c := newTestClient(t, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	text, err := c.Transcribe(ctx, dialer, make([]byte, audio.DefaultFormat.BytesPerSecond()/2))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("expected hello world, got %q", text)
	}
}
