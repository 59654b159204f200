// Package asr runs streaming recognition sessions: it builds the request
// frames, paces audio onto a duplex connection and reduces the server's
// partial results into a final transcript.
package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/asrstream/pkg/audio"
	"github.com/harunnryd/asrstream/pkg/errorsx"
	"github.com/harunnryd/asrstream/pkg/logging"
	"github.com/harunnryd/asrstream/pkg/metrics"
	"github.com/harunnryd/asrstream/pkg/protocol"
	"github.com/harunnryd/asrstream/pkg/redact"
	"github.com/harunnryd/asrstream/pkg/transports"
)

var (
	// ErrMissingConfig is returned before dialing when a required setting is absent.
	ErrMissingConfig = errors.New("missing configuration")
	// ErrEmptyResult is returned when a session completes without any text.
	ErrEmptyResult = errors.New("empty recognition result")
)

// DefaultSegmentDuration is the audio length carried by one frame.
const DefaultSegmentDuration = 200 * time.Millisecond

type Options struct {
	Format audio.Format
	// SegmentDuration is both the audio length of one frame and the pause
	// between non-terminal frames.
	SegmentDuration time.Duration
	Request         RequestOptions
	User            UserInfo

	Logger   *slog.Logger
	Observer metrics.Observer
	// OnPartial observes every transcript replacement. It runs on the
	// receive goroutine and must not block.
	OnPartial func(text string)
}

func (o Options) Validate() error {
	if o.SegmentDuration <= 0 {
		return errorsx.Wrapf(ErrMissingConfig, errorsx.ReasonConfig, "segment duration %s", o.SegmentDuration)
	}
	if o.Request.ModelName == "" {
		return errorsx.Wrapf(ErrMissingConfig, errorsx.ReasonConfig, "request model name")
	}
	if err := o.Format.Validate(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonInput)
	}
	return nil
}

// Client runs recognition sessions. A Client holds no per-session state
// and may be shared.
type Client struct {
	opts Options
	log  *slog.Logger
	obs  metrics.Observer
}

func NewClient(opts Options) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	obs := opts.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Client{
		opts: opts,
		log:  logging.NewComponentLogger(opts.Logger, "asr"),
		obs:  obs,
	}, nil
}

// Transcribe streams pcm over one connection from dialer and returns the
// final transcript. The connection is closed before Transcribe returns.
func (c *Client) Transcribe(ctx context.Context, dialer transports.Dialer, pcm []byte) (string, error) {
	if dialer == nil {
		return "", errorsx.Wrapf(ErrMissingConfig, errorsx.ReasonConfig, "dialer")
	}
	if len(pcm) == 0 {
		return "", errorsx.Wrap(fmt.Errorf("%w: no audio samples", audio.ErrMalformedAudio), errorsx.ReasonInput)
	}

	sessionID := uuid.NewString()
	log := c.log.With(slog.String(metrics.TagSessionID, sessionID))
	start := time.Now()
	log.Info("asr_session_started",
		slog.Int("bytes", len(pcm)),
		slog.Duration("audio", c.opts.Format.Duration(len(pcm))),
		slog.Int("sample_rate", c.opts.Format.SampleRate),
	)

	text, err := c.session(ctx, dialer, pcm, sessionID, log)
	elapsed := time.Since(start)
	if err != nil {
		reason := errorsx.Reason(err)
		log.Warn("asr_session_failed", slog.String("reason", string(reason)), slog.Any("error", err), slog.Duration("elapsed", elapsed))
		metrics.Record(c.obs, metrics.EventSessionFailed, elapsed.Seconds(), map[string]string{
			metrics.TagSessionID: sessionID,
			metrics.TagReason:    string(reason),
		})
		return "", err
	}
	log.Info("asr_session_completed", slog.String("text", redact.Text(text)), slog.Duration("elapsed", elapsed))
	metrics.Record(c.obs, metrics.EventSessionCompleted, elapsed.Seconds(), map[string]string{
		metrics.TagSessionID: sessionID,
	})
	return text, nil
}

func (c *Client) session(ctx context.Context, dialer transports.Dialer, pcm []byte, sessionID string, log *slog.Logger) (string, error) {
	conn, err := dialer.Dial(ctx)
	if err != nil {
		return "", classify(ctx, fmt.Errorf("dial: %w", err))
	}
	if rr, ok := conn.(transports.ReadyReporter); ok {
		attrs := []any{}
		for k, v := range rr.ReadyFields() {
			attrs = append(attrs, slog.Any(k, v))
		}
		log.Info("asr_session_connected", attrs...)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() {
			if err := conn.Close(); err != nil {
				log.Debug("asr_close_failed", slog.Any("error", err))
			}
		})
	}
	defer closeConn()
	// Cancelling the session unblocks whichever side is waiting on the wire.
	stop := context.AfterFunc(sessCtx, closeConn)
	defer stop()

	transcript := &Transcript{}
	receiver := NewReceiver(transcript)
	receiver.OnFrame = func(frame []byte) {
		c.recordFrame(metrics.EventFrameReceived, frame, sessionID)
	}
	receiver.OnPartial = func(text string) {
		log.Debug("asr_partial_result", slog.String("text", redact.Text(text)))
		metrics.Record(c.obs, metrics.EventPartialResult, 1, map[string]string{metrics.TagSessionID: sessionID})
		if c.opts.OnPartial != nil {
			c.opts.OnPartial(text)
		}
	}
	builder := NewBuilder(c.opts.Format, c.opts.Request, c.opts.User)
	log.Debug("asr_request_built", slog.String("reqid", builder.RequestID()))

	sendDone := make(chan error, 1)
	recvDone := make(chan error, 1)
	go func() { sendDone <- c.send(sessCtx, conn, builder, pcm, sessionID, log) }()
	go func() { recvDone <- receiver.Run(sessCtx, conn) }()

	select {
	case err := <-recvDone:
		cancel()
		<-sendDone
		if err != nil {
			return "", classify(ctx, err)
		}
	case err := <-sendDone:
		if err != nil {
			// Let the receiver drain what the server sent before it hung up.
			closeConn()
			recvErr := <-recvDone
			cancel()
			if serverFailure(recvErr) {
				return "", classify(ctx, recvErr)
			}
			return "", classify(ctx, err)
		}
		if err := <-recvDone; err != nil {
			return "", classify(ctx, err)
		}
	}

	log.Debug("asr_receive_finished", slog.Int("frames", receiver.Frames()), slog.Int("updates", transcript.Updates()))
	text, err := transcript.Final()
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonEmptyResult)
	}
	return text, nil
}

func (c *Client) send(ctx context.Context, conn transports.Duplex, b *Builder, pcm []byte, sessionID string, log *slog.Logger) error {
	frame, err := b.ConfigFrame()
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonProtocol)
	}
	if err := c.write(ctx, conn, frame, sessionID); err != nil {
		return err
	}

	seg := audio.NewSegmenter(pcm, audio.SegmentSize(c.opts.Format, c.opts.SegmentDuration))
	log.Debug("asr_audio_segmented", slog.Int("segments", seg.Count()))
	for {
		segment, ok := seg.Next()
		if !ok {
			return nil
		}
		last := seg.Remaining() == 0
		frame, err := b.AudioFrame(segment, last)
		if err != nil {
			return errorsx.Wrap(err, errorsx.ReasonProtocol)
		}
		if err := c.write(ctx, conn, frame, sessionID); err != nil {
			return err
		}
		if last {
			log.Debug("asr_audio_finished", slog.Int("frames", int(b.Next()-1)))
			return nil
		}
		if err := pace(ctx, c.opts.SegmentDuration); err != nil {
			return err
		}
	}
}

func (c *Client) write(ctx context.Context, conn transports.Duplex, frame []byte, sessionID string) error {
	if err := conn.Send(ctx, frame); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	c.recordFrame(metrics.EventFrameSent, frame, sessionID)
	return nil
}

func (c *Client) recordFrame(name string, frame []byte, sessionID string) {
	tags := map[string]string{metrics.TagSessionID: sessionID}
	if h, err := protocol.DecodeHeader(frame); err == nil {
		tags[metrics.TagMessageType] = h.MessageType.String()
	}
	metrics.Record(c.obs, name, float64(len(frame)), tags)
}

// pace waits d, returning early only when ctx ends.
func pace(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serverFailure reports whether err came from the server's frames rather
// than from the connection itself.
func serverFailure(err error) bool {
	var remote *protocol.RemoteError
	return errors.As(err, &remote) || errors.Is(err, protocol.ErrMalformedFrame)
}

// classify attaches the failure class to a session error. A cancelled
// caller context takes precedence over whatever the wire reported.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errorsx.Wrap(fmt.Errorf("%w: %v", ctx.Err(), err), errorsx.ReasonCanceled)
	}
	var remote *protocol.RemoteError
	switch {
	case errors.As(err, &remote):
		return errorsx.Wrap(err, errorsx.ReasonRemote)
	case errors.Is(err, protocol.ErrMalformedFrame):
		return errorsx.Wrap(err, errorsx.ReasonProtocol)
	default:
		return errorsx.Wrap(err, errorsx.ReasonTransport)
	}
}
