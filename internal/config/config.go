package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Backend API
	APIBaseURL     string
	APIToken       string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	MaxUploadBytes int

	// Backend selection
	DataBackend   string
	DataDirectory string

	// Client-side caching
	CategoryTTL      time.Duration
	OverviewCacheTTL time.Duration

	// Audio capture and playback
	FFmpegPath    string
	FFplayPath    string
	InputFormat   string
	InputDevice   string
	SampleRate    int
	WaveformWidth int
	WaveformFPS   int

	// Offline outbox
	OutboxDBPath  string
	SyncBatchSize int
	SyncInterval  time.Duration
	MaxRetries    int

	// AMQP notifications (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Presentation
	Language string
	Currency string
	LogLevel string
}

func Load() *Config {
	format, device := defaultInput()
	cfg := &Config{
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8080"),
		APIToken:       getEnv("API_TOKEN", ""),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
		UploadTimeout:  getEnvDuration("UPLOAD_TIMEOUT", 2*time.Minute),
		MaxUploadBytes: getEnvInt("MAX_UPLOAD_BYTES", 10<<20),

		DataBackend:   getEnv("DATA_BACKEND", "http"),
		DataDirectory: getEnv("DATA_DIRECTORY", "data"),

		CategoryTTL:      getEnvDuration("CATEGORY_TTL", 5*time.Minute),
		OverviewCacheTTL: getEnvDuration("OVERVIEW_CACHE_TTL", time.Minute),

		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		FFplayPath:    getEnv("FFPLAY_PATH", "ffplay"),
		InputFormat:   getEnv("AUDIO_INPUT_FORMAT", format),
		InputDevice:   getEnv("AUDIO_INPUT_DEVICE", device),
		SampleRate:    getEnvInt("AUDIO_SAMPLE_RATE", 16000),
		WaveformWidth: getEnvInt("WAVEFORM_WIDTH", 72),
		WaveformFPS:   getEnvInt("WAVEFORM_FPS", 20),

		OutboxDBPath:  getEnv("OUTBOX_DB_PATH", "./data/outbox.db"),
		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		MaxRetries:    getEnvInt("SYNC_MAX_RETRIES", 5),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spese"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_submitted"),

		Language: getEnv("SPESE_LANG", "en"),
		Currency: getEnv("SPESE_CURRENCY", "EUR"),
		LogLevel: getEnv("LOG_LEVEL", "warn"),
	}

	return cfg
}

// defaultInput picks the ffmpeg capture device for the current platform
func defaultInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

// OutboxEnabled reports whether failed uploads can be queued locally
func (c *Config) OutboxEnabled() bool {
	return c.OutboxDBPath != ""
}

// AMQPEnabled reports whether submission notifications are published
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate data backend
	validBackends := []string{"http", "memory"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate API base URL if backend is http
	if c.DataBackend == "http" {
		if c.APIBaseURL == "" {
			errors = append(errors, "API base URL cannot be empty when using http backend")
		} else if parsedURL, err := url.Parse(c.APIBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid API base URL '%s': %v", c.APIBaseURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		} else if parsedURL.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid API base URL '%s': missing host", c.APIBaseURL))
		}
	}

	if c.RequestTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}
	if c.UploadTimeout < c.RequestTimeout {
		errors = append(errors, fmt.Sprintf("invalid upload timeout %v: must be at least the request timeout %v", c.UploadTimeout, c.RequestTimeout))
	}
	if c.MaxUploadBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be at least 1024 bytes", c.MaxUploadBytes))
	}

	if c.CategoryTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid category TTL %v: must not be negative", c.CategoryTTL))
	}
	if c.OverviewCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid overview cache TTL %v: must not be negative", c.OverviewCacheTTL))
	}

	// Validate audio settings
	if c.SampleRate < 8000 || c.SampleRate > 96000 {
		errors = append(errors, fmt.Sprintf("invalid sample rate %d: must be between 8000 and 96000", c.SampleRate))
	}
	if c.WaveformWidth < 8 || c.WaveformWidth > 4096 {
		errors = append(errors, fmt.Sprintf("invalid waveform width %d: must be between 8 and 4096", c.WaveformWidth))
	}
	if c.WaveformFPS < 1 || c.WaveformFPS > 120 {
		errors = append(errors, fmt.Sprintf("invalid waveform fps %d: must be between 1 and 120", c.WaveformFPS))
	}

	// Validate outbox directory if enabled
	if c.OutboxEnabled() {
		dir := filepath.Dir(c.OutboxDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create outbox database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate worker configuration
	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}
	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.MaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid max retries %d: must be at least 1", c.MaxRetries))
	}

	// Validate AMQP URL if provided
	if c.AMQPEnabled() {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(c.Currency) != 3 {
		errors = append(errors, fmt.Sprintf("invalid currency '%s': must be a 3-letter ISO 4217 code", c.Currency))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
