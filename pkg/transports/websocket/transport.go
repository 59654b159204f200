package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/asrstream/pkg/configutil"
	"github.com/harunnryd/asrstream/pkg/logging"
	"github.com/harunnryd/asrstream/pkg/redact"
	"github.com/harunnryd/asrstream/pkg/resilience"
	"github.com/harunnryd/asrstream/pkg/transports"
)

// LogIDHeader is the response header the service uses to identify a
// connection in its own logs.
const LogIDHeader = "X-Tt-Logid"

const closeGracePeriod = time.Second

// Config holds websocket connection settings. Header carries the
// handshake headers (credentials, connect id) and is not decoded from
// settings maps.
type Config struct {
	URL                string      `mapstructure:"url"`
	HandshakeTimeoutMS int         `mapstructure:"handshake_timeout_ms"`
	DialRetries        int         `mapstructure:"dial_retries"`
	DialBackoffMS      int         `mapstructure:"dial_backoff_ms"`
	ReadLimit          int64       `mapstructure:"read_limit"`
	EnableCompression  bool        `mapstructure:"enable_compression"`
	Header             http.Header `mapstructure:"-"`
}

// SettingsSchema lists the keys accepted by DecodeConfig.
var SettingsSchema = configutil.Schema{
	Required: []string{"url"},
	Optional: []string{"handshake_timeout_ms", "dial_retries", "dial_backoff_ms", "read_limit", "enable_compression"},
}

// DecodeConfig builds a Config from a free-form settings map.
func DecodeConfig(settings map[string]any) (Config, error) {
	if err := configutil.ValidateSettings(settings, SettingsSchema); err != nil {
		return Config{}, fmt.Errorf("websocket settings: %w", err)
	}
	var cfg Config
	if err := configutil.DecodeSettings(settings, &cfg); err != nil {
		return Config{}, fmt.Errorf("websocket settings: %w", err)
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeoutMS <= 0 {
		c.HandshakeTimeoutMS = 10000
	}
	if c.DialBackoffMS <= 0 {
		c.DialBackoffMS = 200
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 8 << 20
	}
	return c
}

// Dialer opens websocket connections to the recognition endpoint.
type Dialer struct {
	cfg    Config
	dialer websocket.Dialer
	policy resilience.RetryPolicy
	logger *slog.Logger
}

func NewDialer(cfg Config) *Dialer {
	cfg = cfg.withDefaults()
	return &Dialer{
		cfg: cfg,
		dialer: websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  time.Duration(cfg.HandshakeTimeoutMS) * time.Millisecond,
			EnableCompression: cfg.EnableCompression,
		},
		policy: resilience.NewRetryPolicy(cfg.DialRetries, time.Duration(cfg.DialBackoffMS)*time.Millisecond),
		logger: logging.NewComponentLogger(slog.Default(), "websocket_transport"),
	}
}

// Dial performs the handshake, retrying handshake failures per the
// configured policy. Once connected nothing is retried.
func (d *Dialer) Dial(ctx context.Context) (transports.Duplex, error) {
	if d.cfg.URL == "" {
		return nil, errors.New("websocket url is required")
	}
	d.logger.Debug("websocket_dialing",
		slog.String("url", d.cfg.URL),
		slog.Any("headers", redact.Header(d.cfg.Header)))

	var conn *websocket.Conn
	var resp *http.Response
	err := d.policy.Do(ctx, func() error {
		var err error
		conn, resp, err = d.dialer.DialContext(ctx, d.cfg.URL, d.cfg.Header)
		if err != nil && resp != nil {
			if resp.StatusCode == http.StatusTooManyRequests {
				return resilience.RateLimitError{Provider: "asr", Message: resp.Status}
			}
			return fmt.Errorf("handshake %s: %w", resp.Status, err)
		}
		return err
	})
	if err != nil {
		d.logger.Error("websocket_dial_failed",
			slog.String("url", d.cfg.URL),
			slog.String("error", err.Error()))
		return nil, err
	}

	conn.SetReadLimit(d.cfg.ReadLimit)
	c := &Conn{conn: conn}
	if resp != nil {
		c.logID = resp.Header.Get(LogIDHeader)
	}
	d.logger.Info("websocket_connected",
		slog.String("url", d.cfg.URL),
		slog.String("log_id", c.logID))
	return c, nil
}

// Conn is one established websocket connection. Gorilla allows one
// concurrent reader and one concurrent writer; the session uses exactly one
// of each, and Close goes through the concurrency-safe control path.
type Conn struct {
	conn   *websocket.Conn
	logID  string
	closed atomic.Bool
	once   sync.Once
}

func (c *Conn) Send(ctx context.Context, frame []byte) error {
	if c.closed.Load() {
		return transports.ErrClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return c.mapErr(err)
	}
	return nil
}

// Receive returns the next binary message. Text messages are not part of
// the protocol and are skipped.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	for {
		if c.closed.Load() {
			return nil, transports.ErrClosed
		}
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, c.mapErr(err)
		}
		if mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		err = c.conn.Close()
	})
	return err
}

// ReadyFields reports the server log id when the handshake returned one.
func (c *Conn) ReadyFields() map[string]any {
	return map[string]any{"log_id": c.logID}
}

func (c *Conn) mapErr(err error) error {
	if c.closed.Load() {
		return transports.ErrClosed
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return fmt.Errorf("%w: peer closed with code %d %q", transports.ErrClosed, ce.Code, ce.Text)
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return transports.ErrClosed
	}
	return err
}

var (
	_ transports.Dialer        = (*Dialer)(nil)
	_ transports.Duplex        = (*Conn)(nil)
	_ transports.ReadyReporter = (*Conn)(nil)
)
