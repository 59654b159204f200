package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/harunnryd/asrstream/pkg/asr"
	"github.com/harunnryd/asrstream/pkg/audio"
	"github.com/harunnryd/asrstream/pkg/configutil"
	"github.com/harunnryd/asrstream/pkg/errorsx"
	"github.com/harunnryd/asrstream/pkg/transports/websocket"
)

// Auth headers expected by the recognition gateway.
const (
	HeaderAppKey     = "X-Api-App-Key"
	HeaderAccessKey  = "X-Api-Access-Key"
	HeaderResourceID = "X-Api-Resource-Id"
	HeaderConnectID  = "X-Api-Connect-Id"
)

const EnvPrefix = "ASR"

type Config struct {
	Environment      string             `mapstructure:"environment"`
	LogLevel         string             `mapstructure:"log_level"`
	LogFormat        string             `mapstructure:"log_format"`
	SessionTimeoutMS int                `mapstructure:"session_timeout_ms"`
	Auth             AuthConfig         `mapstructure:"auth"`
	Transports       TransportsConfig   `mapstructure:"transports"`
	Audio            AudioConfig        `mapstructure:"audio"`
	Request          asr.RequestOptions `mapstructure:"request"`
	User             asr.UserInfo       `mapstructure:"user"`
	Metrics          MetricsConfig      `mapstructure:"metrics"`
	Privacy          PrivacyConfig      `mapstructure:"privacy"`
}

type AuthConfig struct {
	AppKey     string `mapstructure:"app_key"`
	AccessKey  string `mapstructure:"access_key"`
	ResourceID string `mapstructure:"resource_id"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type AudioConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
	Bits       int `mapstructure:"bits"`
	Channels   int `mapstructure:"channels"`
	SegmentMS  int `mapstructure:"segment_ms"`
}

type MetricsConfig struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	JSONLPath   string `mapstructure:"jsonl_path"`
	AsyncBuffer int    `mapstructure:"async_buffer"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// Load reads a YAML file at path. An empty path loads defaults and
// environment overrides only.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfig, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfig, "unmarshal")
	}
	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.Wrapf(err, errorsx.ReasonConfig, "validate config")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := asr.DefaultRequestOptions()
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("session_timeout_ms", 0)
	v.SetDefault("auth.app_key", "")
	v.SetDefault("auth.access_key", "")
	v.SetDefault("auth.resource_id", "volc.bigasr.sauc.duration")
	v.SetDefault("transports.provider", "websocket")
	v.SetDefault("audio.sample_rate", audio.DefaultFormat.SampleRate)
	v.SetDefault("audio.bits", audio.DefaultFormat.BitsPerSample)
	v.SetDefault("audio.channels", audio.DefaultFormat.Channels)
	v.SetDefault("audio.segment_ms", int(asr.DefaultSegmentDuration/time.Millisecond))
	v.SetDefault("request.model_name", def.ModelName)
	v.SetDefault("request.enable_itn", def.EnableITN)
	v.SetDefault("request.enable_punc", def.EnablePunctuation)
	v.SetDefault("request.enable_ddc", def.EnableDDC)
	v.SetDefault("request.show_utterances", def.ShowUtterances)
	v.SetDefault("request.result_type", def.ResultType)
	v.SetDefault("request.language", "")
	v.SetDefault("user.uid", "asrstream")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.jsonl_path", "")
	v.SetDefault("metrics.async_buffer", 256)
	v.SetDefault("privacy.redact_pii", false)
}

// Validate fails with asr.ErrMissingConfig for absent required settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.AppKey) == "" {
		return missing("auth.app_key is required")
	}
	if strings.TrimSpace(c.Auth.AccessKey) == "" {
		return missing("auth.access_key is required")
	}
	if strings.TrimSpace(c.Transports.Provider) != "websocket" {
		return fmt.Errorf("transports.provider %q is not supported", c.Transports.Provider)
	}
	if _, err := websocket.DecodeConfig(c.Transports.Settings); err != nil {
		var se *configutil.SettingsError
		if errors.As(err, &se) && len(se.Missing) > 0 {
			return missing("transports.settings: %v", err)
		}
		return fmt.Errorf("transports.settings: %w", err)
	}
	if err := configutil.RequirePositive(c.Audio.SegmentMS, "audio.segment_ms"); err != nil {
		return err
	}
	if err := c.AudioFormat().Validate(); err != nil {
		return err
	}
	if err := configutil.RequireString(c.Request.ModelName, "request.model_name"); err != nil {
		return missing("%v", err)
	}
	return nil
}

func (c Config) AudioFormat() audio.Format {
	return audio.Format{SampleRate: c.Audio.SampleRate, BitsPerSample: c.Audio.Bits, Channels: c.Audio.Channels}
}

func (c Config) SegmentDuration() time.Duration {
	return time.Duration(c.Audio.SegmentMS) * time.Millisecond
}

func (c Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMS) * time.Millisecond
}

// Header returns the handshake headers for one connection. Each call mints
// a fresh connect id.
func (c Config) Header() http.Header {
	h := http.Header{}
	h.Set(HeaderAppKey, c.Auth.AppKey)
	h.Set(HeaderAccessKey, c.Auth.AccessKey)
	h.Set(HeaderResourceID, c.Auth.ResourceID)
	h.Set(HeaderConnectID, uuid.NewString())
	return h
}

// WebsocketConfig decodes the transport settings and attaches the auth headers.
func (c Config) WebsocketConfig() (websocket.Config, error) {
	wc, err := websocket.DecodeConfig(c.Transports.Settings)
	if err != nil {
		return websocket.Config{}, errorsx.Wrap(err, errorsx.ReasonConfig)
	}
	wc.Header = c.Header()
	return wc, nil
}

// ClientOptions maps the file settings onto asr.Options. Logger, Observer
// and OnPartial are left for the caller.
func (c Config) ClientOptions() asr.Options {
	return asr.Options{
		Format:          c.AudioFormat(),
		SegmentDuration: c.SegmentDuration(),
		Request:         c.Request,
		User:            c.User,
	}
}

func missing(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{asr.ErrMissingConfig}, args...)...)
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Transports.Settings = configutil.ExpandSettings(cfg.Transports.Settings)
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	}
}
