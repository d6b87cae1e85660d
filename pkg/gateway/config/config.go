package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vango-go/resilios/pkg/core/live"
)

type PayPalMode string

const (
	PayPalSandbox PayPalMode = "sandbox"
	PayPalLive    PayPalMode = "live"
)

type Config struct {
	Addr string

	// PublicOrigin is where the web client is served; checkout return URLs live under it.
	PublicOrigin string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	TrustProxyHeaders bool

	DatabaseURL string
	RedisURL    string // empty => quota is counted from stored messages

	GeminiAPIKey         string
	GeminiModel          string
	GeminiThinkingBudget int

	StripeSecretKey     string
	StripeWebhookSecret string

	PayPalClientID string
	PayPalSecret   string
	PayPalMode     PayPalMode

	TrialDays         int
	FreeChatsPerDay   int
	MonthlyPriceCents int64
	HistoryLimit      int

	JWTSecret string
	TokenTTL  time.Duration

	WorkOSAPIKey   string
	WorkOSClientID string

	MediaDir  string
	MascotDir string

	LogFile   string
	LogFormat string

	MaxBodyBytes       int64
	MaxAttachmentBytes int64

	// In-memory limits (per principal).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int

	// Live WebSocket mode (/v1/live).
	LiveConnectDelay        time.Duration
	LiveSpeakingDuration    time.Duration
	LiveStickerDuration     time.Duration
	LiveVisualizerFPS       int
	LiveMaxSessions         int
	LiveMaxJSONMessageBytes int64
	LiveHandshakeTimeout    time.Duration
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
	UpstreamTimeout     time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("resilios_addr", ":8000")
	v.SetDefault("public_origin", "http://localhost:5173")
	v.SetDefault("resilios_cors_origins", "")
	v.SetDefault("resilios_trust_proxy_headers", false)
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("gemini_thinking_budget", 8192)
	v.SetDefault("stripe_secret_key", "")
	v.SetDefault("stripe_webhook_secret", "")
	v.SetDefault("paypal_client_id", "")
	v.SetDefault("paypal_secret", "")
	v.SetDefault("paypal_mode", string(PayPalSandbox))
	v.SetDefault("trial_days", 7)
	v.SetDefault("free_chats_per_day", 100)
	v.SetDefault("monthly_price_cents", 499)
	v.SetDefault("resilios_history_limit", 200)
	v.SetDefault("resilios_jwt_secret", "")
	v.SetDefault("resilios_token_ttl", 30*24*time.Hour)
	v.SetDefault("workos_api_key", "")
	v.SetDefault("workos_client_id", "")
	v.SetDefault("resilios_media_dir", "media")
	v.SetDefault("resilios_mascot_dir", "media/mascots")
	v.SetDefault("resilios_log_file", "")
	v.SetDefault("resilios_log_format", "text")
	v.SetDefault("resilios_max_body_bytes", 32<<20)       // 32 MiB, base64 attachments inflate by 4/3
	v.SetDefault("resilios_max_attachment_bytes", 20<<20) // 20 MiB decoded
	v.SetDefault("resilios_rate_limit_rps", 2.0)
	v.SetDefault("resilios_rate_limit_burst", 10)
	v.SetDefault("resilios_max_concurrent_requests", 4)
	v.SetDefault("resilios_live_connect_delay", 700*time.Millisecond)
	v.SetDefault("resilios_live_speaking_duration", 3*time.Second)
	v.SetDefault("resilios_live_sticker_duration", 3500*time.Millisecond)
	v.SetDefault("resilios_live_fps", 30)
	v.SetDefault("resilios_live_max_sessions", 2)
	v.SetDefault("resilios_live_max_json_message_bytes", 64*1024)
	v.SetDefault("resilios_live_handshake_timeout", 5*time.Second)
	v.SetDefault("resilios_live_ws_ping_interval", 20*time.Second)
	v.SetDefault("resilios_live_ws_write_timeout", 5*time.Second)
	v.SetDefault("resilios_read_header_timeout", 10*time.Second)
	v.SetDefault("resilios_read_timeout", 60*time.Second)
	v.SetDefault("resilios_handler_timeout", 2*time.Minute)
	v.SetDefault("resilios_shutdown_grace_period", 30*time.Second)
	v.SetDefault("resilios_upstream_timeout", 90*time.Second)
}

// Load reads configuration from the environment, optionally layered over the
// file named by RESILIOS_CONFIG.
func Load() (Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("resilios_config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:                       strings.TrimSpace(v.GetString("resilios_addr")),
		PublicOrigin:               strings.TrimRight(strings.TrimSpace(v.GetString("public_origin")), "/"),
		CORSAllowedOrigins:         make(map[string]struct{}),
		TrustProxyHeaders:          v.GetBool("resilios_trust_proxy_headers"),
		DatabaseURL:                strings.TrimSpace(v.GetString("database_url")),
		RedisURL:                   strings.TrimSpace(v.GetString("redis_url")),
		GeminiAPIKey:               strings.TrimSpace(v.GetString("gemini_api_key")),
		GeminiModel:                strings.TrimSpace(v.GetString("gemini_model")),
		GeminiThinkingBudget:       v.GetInt("gemini_thinking_budget"),
		StripeSecretKey:            strings.TrimSpace(v.GetString("stripe_secret_key")),
		StripeWebhookSecret:        strings.TrimSpace(v.GetString("stripe_webhook_secret")),
		PayPalClientID:             strings.TrimSpace(v.GetString("paypal_client_id")),
		PayPalSecret:               strings.TrimSpace(v.GetString("paypal_secret")),
		PayPalMode:                 PayPalMode(strings.ToLower(strings.TrimSpace(v.GetString("paypal_mode")))),
		TrialDays:                  v.GetInt("trial_days"),
		FreeChatsPerDay:            v.GetInt("free_chats_per_day"),
		MonthlyPriceCents:          v.GetInt64("monthly_price_cents"),
		HistoryLimit:               v.GetInt("resilios_history_limit"),
		JWTSecret:                  v.GetString("resilios_jwt_secret"),
		TokenTTL:                   v.GetDuration("resilios_token_ttl"),
		WorkOSAPIKey:               strings.TrimSpace(v.GetString("workos_api_key")),
		WorkOSClientID:             strings.TrimSpace(v.GetString("workos_client_id")),
		MediaDir:                   strings.TrimSpace(v.GetString("resilios_media_dir")),
		MascotDir:                  strings.TrimSpace(v.GetString("resilios_mascot_dir")),
		LogFile:                    strings.TrimSpace(v.GetString("resilios_log_file")),
		LogFormat:                  strings.ToLower(strings.TrimSpace(v.GetString("resilios_log_format"))),
		MaxBodyBytes:               v.GetInt64("resilios_max_body_bytes"),
		MaxAttachmentBytes:         v.GetInt64("resilios_max_attachment_bytes"),
		LimitRPS:                   v.GetFloat64("resilios_rate_limit_rps"),
		LimitBurst:                 v.GetInt("resilios_rate_limit_burst"),
		LimitMaxConcurrentRequests: v.GetInt("resilios_max_concurrent_requests"),
		LiveConnectDelay:           v.GetDuration("resilios_live_connect_delay"),
		LiveSpeakingDuration:       v.GetDuration("resilios_live_speaking_duration"),
		LiveStickerDuration:        v.GetDuration("resilios_live_sticker_duration"),
		LiveVisualizerFPS:          v.GetInt("resilios_live_fps"),
		LiveMaxSessions:            v.GetInt("resilios_live_max_sessions"),
		LiveMaxJSONMessageBytes:    v.GetInt64("resilios_live_max_json_message_bytes"),
		LiveHandshakeTimeout:       v.GetDuration("resilios_live_handshake_timeout"),
		LiveWSPingInterval:         v.GetDuration("resilios_live_ws_ping_interval"),
		LiveWSWriteTimeout:         v.GetDuration("resilios_live_ws_write_timeout"),
		ReadHeaderTimeout:          v.GetDuration("resilios_read_header_timeout"),
		ReadTimeout:                v.GetDuration("resilios_read_timeout"),
		HandlerTimeout:             v.GetDuration("resilios_handler_timeout"),
		ShutdownGracePeriod:        v.GetDuration("resilios_shutdown_grace_period"),
		UpstreamTimeout:            v.GetDuration("resilios_upstream_timeout"),
	}

	for _, origin := range splitCSV(v.GetString("resilios_cors_origins")) {
		cfg.CORSAllowedOrigins[strings.TrimRight(origin, "/")] = struct{}{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot produce a working server.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("RESILIOS_ADDR must not be empty")
	}
	if c.PublicOrigin == "" {
		return errors.New("PUBLIC_ORIGIN must not be empty")
	}
	if c.GeminiModel == "" {
		return errors.New("GEMINI_MODEL must not be empty")
	}
	if c.GeminiThinkingBudget < 0 {
		return errors.New("GEMINI_THINKING_BUDGET must be >= 0")
	}
	switch c.PayPalMode {
	case PayPalSandbox, PayPalLive:
	default:
		return fmt.Errorf("PAYPAL_MODE must be %q or %q", PayPalSandbox, PayPalLive)
	}
	if c.TrialDays < 0 {
		return errors.New("TRIAL_DAYS must be >= 0")
	}
	if c.FreeChatsPerDay <= 0 {
		return errors.New("FREE_CHATS_PER_DAY must be > 0")
	}
	if c.MonthlyPriceCents <= 0 {
		return errors.New("MONTHLY_PRICE_CENTS must be > 0")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("RESILIOS_HISTORY_LIMIT must be > 0")
	}
	if c.TokenTTL <= 0 {
		return errors.New("RESILIOS_TOKEN_TTL must be > 0")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("RESILIOS_MAX_BODY_BYTES must be > 0")
	}
	if c.MaxAttachmentBytes <= 0 {
		return errors.New("RESILIOS_MAX_ATTACHMENT_BYTES must be > 0")
	}
	if c.MaxAttachmentBytes > c.MaxBodyBytes {
		return errors.New("RESILIOS_MAX_ATTACHMENT_BYTES must be <= RESILIOS_MAX_BODY_BYTES")
	}
	if c.LimitRPS < 0 || c.LimitBurst < 0 || c.LimitMaxConcurrentRequests < 0 {
		return errors.New("rate limits must be >= 0")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.New(`RESILIOS_LOG_FORMAT must be "text" or "json"`)
	}
	if c.LiveVisualizerFPS <= 0 {
		return errors.New("RESILIOS_LIVE_FPS must be > 0")
	}
	if c.LiveMaxSessions <= 0 {
		return errors.New("RESILIOS_LIVE_MAX_SESSIONS must be > 0")
	}
	if c.LiveMaxJSONMessageBytes <= 0 {
		return errors.New("RESILIOS_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if c.LiveHandshakeTimeout <= 0 || c.LiveWSPingInterval <= 0 || c.LiveWSWriteTimeout <= 0 {
		return errors.New("live websocket timeouts must be > 0")
	}
	if err := c.Live().Validate(); err != nil {
		return fmt.Errorf("live: %w", err)
	}
	if c.ReadHeaderTimeout <= 0 || c.ReadTimeout <= 0 || c.HandlerTimeout <= 0 {
		return errors.New("timeouts must be > 0")
	}
	if c.ShutdownGracePeriod <= 0 {
		return errors.New("RESILIOS_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if c.UpstreamTimeout <= 0 {
		return errors.New("RESILIOS_UPSTREAM_TIMEOUT must be > 0")
	}
	return nil
}

// Live returns the controller configuration for /v1/live sessions.
func (c Config) Live() live.Config {
	cfg := live.DefaultConfig()
	cfg.ConnectDelay = c.LiveConnectDelay
	cfg.SpeakingDuration = c.LiveSpeakingDuration
	cfg.StickerDuration = c.LiveStickerDuration
	cfg.Visualizer.FPS = c.LiveVisualizerFPS
	return cfg
}

func (c Config) HasGemini() bool { return c.GeminiAPIKey != "" }

func (c Config) HasStripe() bool { return c.StripeSecretKey != "" }

func (c Config) HasPayPal() bool { return c.PayPalClientID != "" && c.PayPalSecret != "" }

func (c Config) HasWorkOS() bool { return c.WorkOSAPIKey != "" && c.WorkOSClientID != "" }

// PayPalBaseURL selects the REST host for the configured PayPal mode.
func (c Config) PayPalBaseURL() string {
	if c.PayPalMode == PayPalLive {
		return "https://api-m.paypal.com"
	}
	return "https://api-m.sandbox.paypal.com"
}

// MonthlyPrice is the subscription price in dollars.
func (c Config) MonthlyPrice() float64 {
	return float64(c.MonthlyPriceCents) / 100
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
